package suite

import (
	"boardtest-go/board"
	"boardtest-go/types"
)

// Entry is one completed test.
type Entry struct {
	Name   string
	Result types.Result
}

// Tally accumulates results in run order and the pins they touched.
type Tally struct {
	entries []Entry
	touched []string
	seen    map[string]bool
}

func NewTally() *Tally {
	return &Tally{seen: make(map[string]bool)}
}

// Add records r under name. Touched pins are kept in first-touch order.
func (t *Tally) Add(name string, r types.Result) {
	t.entries = append(t.entries, Entry{Name: name, Result: r})
	for _, p := range r.Pins {
		if !t.seen[p] {
			t.seen[p] = true
			t.touched = append(t.touched, p)
		}
	}
}

// Entries returns the results in run order.
func (t *Tally) Entries() []Entry { return append([]Entry(nil), t.entries...) }

// Verdict returns the verdict recorded for name.
func (t *Tally) Verdict(name string) (types.Verdict, bool) {
	for _, e := range t.entries {
		if e.Name == name {
			return e.Result.Verdict, true
		}
	}
	return "", false
}

// Touched lists every pin any test reported, in first-touch order.
func (t *Tally) Touched() []string { return append([]string(nil), t.touched...) }

// Partition splits the directory into tested pins (first-touch order) and
// untested pins (directory order). Together they cover the directory
// exactly once. Touched names outside the directory are ignored.
func (t *Tally) Partition(d *board.Directory) (tested, untested []string) {
	for _, p := range t.touched {
		if d.Has(p) {
			tested = append(tested, p)
		}
	}
	for _, n := range d.Names() {
		if !t.seen[n] {
			untested = append(untested, n)
		}
	}
	return tested, untested
}

// Counts returns how many tests passed, failed and were not applicable.
func (t *Tally) Counts() (pass, fail, na int) {
	for _, e := range t.entries {
		switch e.Result.Verdict {
		case types.Pass:
			pass++
		case types.Fail:
			fail++
		default:
			na++
		}
	}
	return
}
