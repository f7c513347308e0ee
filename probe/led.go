package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"boardtest-go/board"
	"boardtest-go/console"
	"boardtest-go/types"
)

const ledOwner = "led"

// LEDNames is the default whitelist of onboard LED pin names.
var LEDNames = []string{
	"L", "LED", "BUILTIN_LED", "LED1", "LED2", "LED3", "LED4",
	"RED_LED", "YELLOW_LED", "GREEN_LED", "BLUE_LED",
}

// LEDMode selects how several LEDs are exercised.
type LEDMode uint8

const (
	// LEDLockstep blinks every LED together.
	LEDLockstep LEDMode = iota
	// LEDCycle blinks one LED at a time, claiming and releasing its pin
	// around each blink.
	LEDCycle
)

func (m LEDMode) String() string {
	if m == LEDCycle {
		return "cycle"
	}
	return "lockstep"
}

// ParseLEDMode accepts "lockstep" or "cycle".
func ParseLEDMode(s string) (LEDMode, error) {
	switch s {
	case "", "lockstep":
		return LEDLockstep, nil
	case "cycle":
		return LEDCycle, nil
	}
	return 0, fmt.Errorf("unknown led mode %q", s)
}

type LEDOptions struct {
	Names  []string // whitelist override
	Mode   LEDMode
	Toggle Toggle
}

// RunLED blinks the onboard LEDs and asks the operator to confirm.
func RunLED(ctx context.Context, env *Env, opt LEDOptions) types.Result {
	env = env.withDefaults()
	want := opt.Names
	if len(want) == 0 {
		want = LEDNames
	}
	pins := env.lookup(want...)
	if len(pins) == 0 {
		env.Con.Println("No LED pins found")
		return types.NA()
	}
	defer env.release(ledOwner)

	env.Log.Debug("probe start", zap.String("probe", ledOwner),
		zap.Stringer("mode", opt.Mode), zap.Strings("pins", names(pins)))
	listed(env, "LEDs found:", pins)
	if opt.Mode == LEDCycle {
		return env.finish(ledOwner, cycleLEDs(ctx, env, pins, opt.Toggle))
	}
	return env.finish(ledOwner, lockstep(ctx, env, ledOwner, pins, opt.Toggle))
}

// cycleLEDs walks the LEDs in turn. Each blink claims the pin, drives it
// high for On then low for Off, and releases it before the next LED.
func cycleLEDs(ctx context.Context, env *Env, pins []board.Pin, t Toggle) types.Result {
	t = t.norm()
	tested := names(pins)
	pins = uniqueLines(pins)
	env.Con.Println("Are the pins listed above toggling? [y/n]")
	for i := 0; ; i = (i + 1) % len(pins) {
		p := pins[i]
		dp, err := env.Reg.ClaimDigital(ledOwner, p)
		if err == nil {
			err = dp.ConfigureOutput(true)
		}
		if err != nil {
			return env.acquireFailed(ledOwner, tested, err)
		}
		ans, done, err := holdFor(ctx, env, t.On, t.Poll)
		if !done && err == nil {
			dp.Set(false)
			ans, done, err = holdFor(ctx, env, t.Off, t.Poll)
		}
		dp.Set(false)
		if rerr := env.Reg.ReleaseLine(ledOwner, p.Line); rerr != nil {
			env.Log.Warn("release failed", zap.String("probe", ledOwner), zap.Error(rerr))
		}
		if err != nil {
			return types.Result{Verdict: types.Fail, Pins: tested}
		}
		if done {
			return types.Result{Verdict: types.VerdictOf(console.IsYes(ans)), Pins: tested}
		}
	}
}

// holdFor polls the operator for d. done is true once an answer arrives.
func holdFor(ctx context.Context, env *Env, d, poll time.Duration) (string, bool, error) {
	start := env.Clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		if ans, done := env.Con.Poll(); done {
			return ans, true, nil
		}
		if env.Clock.Now().Sub(start) >= d {
			return "", false, nil
		}
		env.Clock.Sleep(poll)
	}
}

// LED binds RunLED to options.
type LED struct{ Opts LEDOptions }

func (LED) Name() string { return "LED" }
func (p LED) Run(ctx context.Context, env *Env) types.Result {
	return RunLED(ctx, env, p.Opts)
}
