package probe

import (
	"context"

	"go.uber.org/zap"

	"boardtest-go/board"
	"boardtest-go/types"
)

const gpioOwner = "gpio"

// GPIOOptions selects the pins to toggle. An empty Pins list means every
// A<n> pin followed by every D<n> pin, in directory order.
type GPIOOptions struct {
	Pins   []string
	Toggle Toggle
}

// RunGPIO toggles the numbered header pins and asks the operator whether
// they blink.
func RunGPIO(ctx context.Context, env *Env, opt GPIOOptions) types.Result {
	env = env.withDefaults()
	pins := gpioPins(env.Dir, opt.Pins)
	if len(pins) == 0 {
		env.Con.Println("No GPIO pins found")
		return types.NA()
	}
	defer env.release(gpioOwner)

	env.Log.Debug("probe start", zap.String("probe", gpioOwner), zap.Strings("pins", names(pins)))
	listed(env, "GPIO pins found:", pins)
	return env.finish(gpioOwner, lockstep(ctx, env, gpioOwner, pins, opt.Toggle))
}

func gpioPins(d *board.Directory, override []string) []board.Pin {
	var pins []board.Pin
	if len(override) > 0 {
		for _, n := range d.Present(override...) {
			p, _ := d.Lookup(n)
			pins = append(pins, p)
		}
	} else {
		pins = append(d.Family(board.FamilyAnalog), d.Family(board.FamilyDigital)...)
	}
	return pins
}

// GPIO binds RunGPIO to options.
type GPIO struct{ Opts GPIOOptions }

func (GPIO) Name() string { return "GPIO" }
func (p GPIO) Run(ctx context.Context, env *Env) types.Result {
	return RunGPIO(ctx, env, p.Opts)
}
