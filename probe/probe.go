// Package probe holds the per-peripheral test protocols. Each protocol
// matches its role pins against the board directory, claims handles from
// the registry, runs a fixed interaction with the operator, releases
// everything it claimed and returns a verdict with the pins it exercised.
package probe

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"boardtest-go/board"
	"boardtest-go/console"
	"boardtest-go/errcode"
	"boardtest-go/hal"
	"boardtest-go/types"
	"boardtest-go/x/timex"
)

// Env is what every protocol runs against.
type Env struct {
	Dir   *board.Directory
	Reg   *hal.Registry
	Con   *console.Console
	Clock timex.Clock
	Rand  *rand.Rand
	Log   *zap.Logger
}

// Probe is one named test protocol with its options bound.
type Probe interface {
	Name() string
	Run(ctx context.Context, env *Env) types.Result
}

func (e *Env) withDefaults() *Env {
	c := *e
	if c.Clock == nil {
		c.Clock = timex.System
	}
	if c.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		c.Rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	return &c
}

// release frees everything owner holds and logs, but never surfaces,
// close errors.
func (e *Env) release(owner string) {
	if err := e.Reg.Release(owner); err != nil {
		e.Log.Warn("release failed", zap.String("probe", owner), zap.Error(err))
	}
}

// lookup resolves names against the directory in argument order, skipping
// absent names.
func (e *Env) lookup(names ...string) []board.Pin {
	var out []board.Pin
	for _, n := range e.Dir.Present(names...) {
		p, _ := e.Dir.Lookup(n)
		out = append(out, p)
	}
	return out
}

// acquireFailed reports a claim error as a FAIL for pins.
func (e *Env) acquireFailed(owner string, pins []string, err error) types.Result {
	e.Log.Warn("acquire failed", zap.String("probe", owner), zap.Error(err))
	e.Con.Printf("FAIL: could not open %s: %v\n", owner, err)
	return types.Result{Verdict: types.Fail, Pins: pins}
}

func (e *Env) finish(owner string, r types.Result) types.Result {
	e.Log.Debug("probe done", zap.String("probe", owner),
		zap.String("verdict", string(r.Verdict)), zap.Strings("pins", r.Pins))
	return r
}

// mismatch logs a readback that differs from what was written.
func (e *Env) mismatch(owner string, cycle int, addr, wrote, read byte) {
	err := &errcode.E{C: errcode.Mismatch, Op: owner, Msg: fmt.Sprintf("addr %#x: wrote %#x, read %#x", addr, wrote, read)}
	e.Log.Info("readback mismatch", zap.String("probe", owner), zap.Int("cycle", cycle), zap.Error(err))
}

func names(pins []board.Pin) []string {
	out := make([]string, len(pins))
	for i, p := range pins {
		out[i] = p.Name
	}
	return out
}
