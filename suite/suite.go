// Package suite runs every test protocol once, in a fixed order, and prints
// the results with the tested/untested pin split.
package suite

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"boardtest-go/probe"
)

// Phase is the orchestrator state.
type Phase uint8

const (
	PhaseInit Phase = iota
	PhaseRunning
	PhaseReport
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseRunning:
		return "running"
	case PhaseReport:
		return "report"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Options carries per-protocol settings for the default sequence.
type Options struct {
	LED     probe.LEDOptions
	GPIO    probe.GPIOOptions
	Voltage probe.VoltageOptions
	UART    probe.UARTOptions
	SPI     probe.SPIOptions
	I2C     probe.I2COptions
	SDCD    probe.SDCDOptions
}

// Default is the standard order: LED, GPIO, Voltage Monitor, UART, SPI,
// I2C, SD Card Detect.
func Default(o Options) []probe.Probe {
	return []probe.Probe{
		probe.LED{Opts: o.LED},
		probe.GPIO{Opts: o.GPIO},
		probe.Voltage{Opts: o.Voltage},
		probe.UART{Opts: o.UART},
		probe.SPI{Opts: o.SPI},
		probe.I2C{Opts: o.I2C},
		probe.SDCD{Opts: o.SDCD},
	}
}

// Suite sequences probes. Every probe runs exactly once regardless of
// earlier verdicts.
type Suite struct {
	probes []probe.Probe
	phase  Phase

	// OnPhase, when set, observes every phase transition.
	OnPhase func(Phase)
}

func New(probes ...probe.Probe) *Suite {
	return &Suite{probes: probes}
}

func (s *Suite) Phase() Phase { return s.phase }

func (s *Suite) enter(p Phase) {
	s.phase = p
	if s.OnPhase != nil {
		s.OnPhase(p)
	}
}

// Run executes the sequence and prints the report. A cancelled context
// still runs the remaining probes, which then fail fast.
func (s *Suite) Run(ctx context.Context, env *probe.Env) *Tally {
	log := env.Log
	if log == nil {
		log = zap.NewNop()
	}
	s.enter(PhaseInit)
	tally := NewTally()
	Banner(env.Con, env.Dir)

	s.enter(PhaseRunning)
	for _, p := range s.probes {
		title := p.Name() + " Test"
		env.Con.Printf("@)}---^-----  %s  -----^---{(@\n\n", strings.ToUpper(title))
		res := p.Run(ctx, env)
		tally.Add(title, res)
		env.Con.Println()
		env.Con.Println(env.Con.Verdict(res.Verdict))
		env.Con.Println()
		log.Info("test finished", zap.String("test", title), zap.String("verdict", string(res.Verdict)))
	}

	s.enter(PhaseReport)
	Report(env.Con, env.Dir, tally)
	s.enter(PhaseDone)
	return tally
}
