package types

// Verdict is the outcome of one test protocol run.
type Verdict string

const (
	Pass          Verdict = "PASS"
	Fail          Verdict = "FAIL"
	NotApplicable Verdict = "N/A"
)

// VerdictOf maps a boolean outcome to Pass/Fail.
func VerdictOf(ok bool) Verdict {
	if ok {
		return Pass
	}
	return Fail
}

// Result is what a protocol returns: the verdict and the pins it exercised,
// in the order they were touched. Pins is empty for NotApplicable.
type Result struct {
	Verdict Verdict
	Pins    []string
}

// NA is the result for a board that lacks the required pins.
func NA() Result { return Result{Verdict: NotApplicable} }

// Passed reports whether r is a PASS.
func (r Result) Passed() bool { return r.Verdict == Pass }
