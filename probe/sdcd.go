package probe

import (
	"cmp"
	"context"

	"go.uber.org/zap"

	"boardtest-go/errcode"
	"boardtest-go/hal"
	"boardtest-go/types"
)

const sdcdOwner = "sdcd"

type SDCDOptions struct {
	Pin string // default SD_CD
}

// RunSDCD checks the card-detect switch. The line is pulled up and reads
// low while a card is seated. Backends without pull resistors fall back to
// a plain input and rely on an external pull-up.
func RunSDCD(ctx context.Context, env *Env, opt SDCDOptions) types.Result {
	env = env.withDefaults()
	name := cmp.Or(opt.Pin, "SD_CD")
	p, ok := env.Dir.Lookup(name)
	if !ok {
		env.Con.Println("No CD pin found")
		return types.NA()
	}
	tested := []string{name}
	defer env.release(sdcdOwner)

	env.Log.Debug("probe start", zap.String("probe", sdcdOwner), zap.String("pin", name))
	cd, err := env.Reg.ClaimDigital(sdcdOwner, p)
	if err == nil {
		err = cd.ConfigureInput(hal.PullUp)
		if errcode.Of(err) == errcode.Unsupported {
			env.Log.Warn("no internal pull-up", zap.String("probe", sdcdOwner), zap.String("pin", name), zap.Error(err))
			env.Con.Printf("%s has no internal pull-up; fit an external pull-up resistor.\n", name)
			err = cd.ConfigureInput(hal.PullNone)
		}
	}
	if err != nil {
		return env.acquireFailed(sdcdOwner, tested, err)
	}

	env.Con.Printf("Connect %s to CD pin on SD card holder.\n", name)
	env.Con.Println("Insert SD card into holder.")
	if err := env.Con.WaitEnter(ctx, "Press enter to continue.\n"); err != nil {
		return types.Result{Verdict: types.Fail, Pins: tested}
	}
	if cd.Get() {
		env.Con.Println("Error: Card not detected")
		return env.finish(sdcdOwner, types.Result{Verdict: types.Fail, Pins: tested})
	}

	if err := env.Con.WaitEnter(ctx, "Card detected. Remove card and press enter to continue.\n"); err != nil {
		return types.Result{Verdict: types.Fail, Pins: tested}
	}
	if !cd.Get() {
		env.Con.Println("Error: Card detected")
		return env.finish(sdcdOwner, types.Result{Verdict: types.Fail, Pins: tested})
	}
	env.Con.Println("Card removed")
	return env.finish(sdcdOwner, types.Result{Verdict: types.Pass, Pins: tested})
}

// SDCD binds RunSDCD to options.
type SDCD struct{ Opts SDCDOptions }

func (SDCD) Name() string { return "SD Card Detect" }
func (p SDCD) Run(ctx context.Context, env *Env) types.Result {
	return RunSDCD(ctx, env, p.Opts)
}
