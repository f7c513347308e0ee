package timex

import (
	"sync"
	"time"
)

// Clock is the time source used by polling loops. Injected so that loops can
// be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// System is the wall clock.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manual clock. Sleep advances the clock instantly.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

// NewFake returns a Fake starting at t.
func NewFake(t time.Time) *Fake { return &Fake{now: t} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) { f.Advance(d) }

// Advance moves the clock forward by d (negative values are ignored).
func (f *Fake) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.slept += d
	f.mu.Unlock()
}

// Slept returns the total duration passed to Sleep/Advance.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// Deadline reports whether now is at or past start+d on c.
func Deadline(c Clock, start time.Time, d time.Duration) bool {
	return !c.Now().Before(start.Add(d))
}
