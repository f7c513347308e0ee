package probe

import (
	"context"

	"go.uber.org/zap"

	"boardtest-go/types"
	"boardtest-go/x/mathx"
)

const vmonOwner = "vmon"

// VoltageNames is the default whitelist of monitor pins.
var VoltageNames = []string{"VOLTAGE_MONITOR", "BATTERY"}

// ADC conversion constants: 3.3 V reference over a 16-bit range.
const (
	VRef    = 3.3
	ADCSpan = 1 << 16
)

type VoltageOptions struct {
	Names []string
}

// RunVoltage samples each monitor pin once, prints the voltage and asks
// the operator to check the values against a multimeter.
func RunVoltage(ctx context.Context, env *Env, opt VoltageOptions) types.Result {
	env = env.withDefaults()
	want := opt.Names
	if len(want) == 0 {
		want = VoltageNames
	}
	pins := env.lookup(want...)
	if len(pins) == 0 {
		env.Con.Println("No battery monitor pins found")
		return types.NA()
	}
	tested := names(pins)
	defer env.release(vmonOwner)

	env.Log.Debug("probe start", zap.String("probe", vmonOwner), zap.Strings("pins", tested))
	listed(env, "Voltage monitor pins found:", pins)
	for _, p := range pins {
		ain, err := env.Reg.ClaimAnalog(vmonOwner, p)
		if err != nil {
			return env.acquireFailed(vmonOwner, tested, err)
		}
		raw, err := ain.Get()
		if rerr := env.Reg.ReleaseLine(vmonOwner, p.Line); rerr != nil {
			env.Log.Warn("release failed", zap.String("probe", vmonOwner), zap.Error(rerr))
		}
		if err != nil {
			env.Log.Info("adc read failed", zap.String("probe", vmonOwner), zap.String("pin", p.Name), zap.Error(err))
			env.Con.Printf("FAIL: could not sample %s\n", p.Name)
			return env.finish(vmonOwner, types.Result{Verdict: types.Fail, Pins: tested})
		}
		env.Con.Printf("%s: %.2f V\n", p.Name, Volts(raw))
	}
	env.Con.Println()
	env.Con.Println("Use a multimeter to verify these voltages.")
	env.Con.Println("Note that some battery monitor pins might have onboard voltage dividers.")
	ok := env.Con.Confirm(ctx, "Do the values look reasonable?")
	return env.finish(vmonOwner, types.Result{Verdict: types.VerdictOf(ok), Pins: tested})
}

// Volts converts a 16-bit sample to volts.
func Volts(raw uint16) float64 {
	return mathx.Clamp(float64(raw)*VRef/ADCSpan, 0, VRef)
}

// Voltage binds RunVoltage to options.
type Voltage struct{ Opts VoltageOptions }

func (Voltage) Name() string { return "Voltage Monitor" }
func (p Voltage) Run(ctx context.Context, env *Env) types.Result {
	return RunVoltage(ctx, env, p.Opts)
}
