// Command boardtest walks an operator through interactive checks of a
// board's LEDs, GPIO, voltage monitor, UART, SPI, I²C and SD card-detect
// pins, then reports which pins were exercised.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"boardtest-go/config"
	"boardtest-go/console"
	"boardtest-go/hal"
	"boardtest-go/probe"
	"boardtest-go/suite"
	"boardtest-go/x/timex"
)

// app carries the persistent flags and the per-invocation logger.
type app struct {
	cfgPath string
	backend string
	verbose bool
	noColor bool
	seed    uint64

	logger *zap.Logger
	runID  string

	// clock is swapped in tests.
	clock timex.Clock
}

func newRootCmd() *cobra.Command {
	a := &app{clock: timex.System}
	root := &cobra.Command{
		Use:   "boardtest",
		Short: "Interactive board bring-up test suite",
		Long: `boardtest runs the LED, GPIO, voltage monitor, UART, SPI, I2C and
SD card-detect tests against a board and reports the pins that were and were
not exercised.

Run without a subcommand to execute the whole suite.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSuite(cmd, func(o suite.Options) []probe.Probe { return suite.Default(o) })
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", "", "YAML board description")
	pf.StringVar(&a.backend, "board", config.BackendSim, "Backend: sim, linux or mcp2221a")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable coloured verdicts")
	pf.Uint64Var(&a.seed, "seed", 0, "Seed for generated test data (0 picks one)")

	root.AddCommand(
		&cobra.Command{
			Use:   "suite",
			Short: "Run every test in the standard order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runSuite(cmd, func(o suite.Options) []probe.Probe { return suite.Default(o) })
			},
		},
		a.ledCmd(), a.gpioCmd(), a.vmonCmd(), a.uartCmd(), a.spiCmd(), a.i2cCmd(), a.sdcdCmd(),
		a.pinsCmd(), a.portsCmd(), a.configCmd(),
	)
	return root
}

func (a *app) initLogger() error {
	var cfg zap.Config
	if a.verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.runID = uuid.NewString()
	a.logger = l.With(zap.String("run_id", a.runID))
	return nil
}

// loadConfig reads --config, applies --board and fills in the backend's
// built-in board when neither names one.
func (a *app) loadConfig(cmd *cobra.Command) (*config.File, error) {
	f := config.Default()
	if a.cfgPath != "" {
		var err error
		if f, err = config.Load(a.cfgPath); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("board") || a.cfgPath == "" {
		f.Backend = a.backend
		if a.cfgPath == "" {
			f.Board = defaultBoard[a.backend]
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Log.Level != "" && !a.verbose {
		lvl, err := zap.ParseAtomicLevel(f.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("config: log level: %w", err)
		}
		a.logger = a.logger.WithOptions(zap.IncreaseLevel(lvl))
	}
	return f, nil
}

// session is everything one command needs to run probes.
type session struct {
	cfg *config.File
	env *probe.Env
	reg *hal.Registry
}

func (s *session) Close() error { return s.reg.Close() }

func (a *app) open(cmd *cobra.Command) (*session, error) {
	f, err := a.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir, err := f.Directory()
	if err != nil {
		return nil, err
	}
	prov, err := openBackend(f, a.logger)
	if err != nil {
		return nil, err
	}
	reg := hal.NewRegistry(prov, a.logger)

	out := cmd.OutOrStdout()
	con := console.New(out, console.NewReaderSource(cmd.InOrStdin()))
	con.SetColor(!a.noColor && isTerminal(out))

	seed := a.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	a.logger.Info("session open",
		zap.String("backend", prov.Name()),
		zap.String("board", dir.Name()),
		zap.Int("pins", dir.Len()),
		zap.Uint64("seed", seed))

	return &session{
		cfg: f,
		reg: reg,
		env: &probe.Env{
			Dir:   dir,
			Reg:   reg,
			Con:   con,
			Clock: a.clock,
			Rand:  rand.New(rand.NewPCG(seed, seed>>1|1)),
			Log:   a.logger,
		},
	}, nil
}

// runSuite runs the probes chosen by pick through the orchestrator so that
// single tests get the same heading and report as the full suite.
func (a *app) runSuite(cmd *cobra.Command, pick func(suite.Options) []probe.Probe) error {
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Warn("release on exit", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	tally := suite.New(pick(s.cfg.SuiteOptions())...).Run(ctx, s.env)
	pass, fail, na := tally.Counts()
	a.logger.Info("run complete", zap.Int("pass", pass), zap.Int("fail", fail), zap.Int("na", na))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
