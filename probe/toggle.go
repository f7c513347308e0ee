package probe

import (
	"cmp"
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"boardtest-go/board"
	"boardtest-go/console"
	"boardtest-go/hal"
	"boardtest-go/types"
)

// Toggle is the blink cadence used while waiting for the operator.
type Toggle struct {
	On   time.Duration
	Off  time.Duration
	Poll time.Duration // idle between input checks
}

// DefaultToggle blinks at 200 ms on, 200 ms off.
var DefaultToggle = Toggle{On: 200 * time.Millisecond, Off: 200 * time.Millisecond, Poll: 5 * time.Millisecond}

func (t Toggle) norm() Toggle {
	return Toggle{
		On:   cmp.Or(t.On, DefaultToggle.On),
		Off:  cmp.Or(t.Off, DefaultToggle.Off),
		Poll: cmp.Or(t.Poll, DefaultToggle.Poll),
	}
}

// toggleWait drives set with alternating levels, starting low, until the
// operator answers. The on and off phases are timed independently.
func toggleWait(ctx context.Context, env *Env, t Toggle, set func(bool)) (string, error) {
	t = t.norm()
	clk := env.Clock
	level := false
	set(level)
	stamp := clk.Now()
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hold := t.Off
		if level {
			hold = t.On
		}
		if now := clk.Now(); now.Sub(stamp) >= hold {
			level = !level
			stamp = now
			set(level)
		}
		if ans, done := env.Con.Poll(); done {
			return ans, nil
		}
		clk.Sleep(t.Poll)
	}
}

// lockstep claims every line once as a low output, toggles them together
// until the operator answers, and maps the answer to a verdict. Every name
// in pins is reported, including aliases of a line claimed under another
// name.
func lockstep(ctx context.Context, env *Env, owner string, pins []board.Pin, t Toggle) types.Result {
	tested := names(pins)
	lines := uniqueLines(pins)
	outs := make([]hal.DigitalPin, 0, len(lines))
	for _, p := range lines {
		dp, err := env.Reg.ClaimDigital(owner, p)
		if err == nil {
			err = dp.ConfigureOutput(false)
		}
		if err != nil {
			return env.acquireFailed(owner, tested, err)
		}
		outs = append(outs, dp)
	}

	env.Con.Println("Are the pins listed above toggling? [y/n]")
	ans, err := toggleWait(ctx, env, t, func(v bool) {
		for _, dp := range outs {
			dp.Set(v)
		}
	})
	for _, dp := range outs {
		dp.Set(false)
	}
	if err != nil {
		env.Log.Info("toggle interrupted", zap.String("probe", owner), zap.Error(err))
		return types.Result{Verdict: types.Fail, Pins: tested}
	}
	return types.Result{Verdict: types.VerdictOf(console.IsYes(ans)), Pins: tested}
}

// uniqueLines drops pins whose line is already used by an earlier pin.
func uniqueLines(pins []board.Pin) []board.Pin {
	seen := make(map[string]bool, len(pins))
	out := pins[:0:0]
	for _, p := range pins {
		if seen[p.Line] {
			continue
		}
		seen[p.Line] = true
		out = append(out, p)
	}
	return out
}

func listed(env *Env, title string, pins []board.Pin) {
	env.Con.Printf("%s %s\n\n", title, strings.Join(names(pins), " "))
}
