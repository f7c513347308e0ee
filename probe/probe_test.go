package probe_test

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"boardtest-go/board"
	"boardtest-go/console"
	"boardtest-go/hal"
	"boardtest-go/hal/simhal"
	"boardtest-go/probe"
	"boardtest-go/types"
	"boardtest-go/x/timex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rig struct {
	sim    *simhal.Sim
	reg    *hal.Registry
	script *console.Script
	out    *bytes.Buffer
	clk    *timex.Fake
	env    *probe.Env
}

func newRig(t *testing.T, dir *board.Directory, answers ...string) *rig {
	t.Helper()
	r := &rig{
		sim:    simhal.New(),
		script: console.NewScript(answers...),
		out:    &bytes.Buffer{},
		clk:    timex.NewFake(time.Unix(1_700_000_000, 0)),
	}
	r.reg = hal.NewRegistry(r.sim, nil)
	r.env = &probe.Env{
		Dir:   dir,
		Reg:   r.reg,
		Con:   console.New(r.out, r.script),
		Clock: r.clk,
		Rand:  rand.New(rand.NewPCG(1, 2)),
	}
	return r
}

// assertClean checks that nothing is left claimed or open.
func (r *rig) assertClean(t *testing.T) {
	t.Helper()
	assert.Zero(t, r.reg.InUse(), "registry still holds lines")
	assert.Zero(t, r.sim.Outstanding(), "backend handles left open")
}

// strictProvider fails the test if anything is opened.
type strictProvider struct{ t *testing.T }

func (p strictProvider) Name() string { return "strict" }
func (p strictProvider) OpenDigital(pin board.Pin) (hal.DigitalPin, error) {
	p.t.Errorf("unexpected digital open of %s", pin.Name)
	return nil, nil
}
func (p strictProvider) OpenAnalog(pin board.Pin) (hal.AnalogPin, error) {
	p.t.Errorf("unexpected analog open of %s", pin.Name)
	return nil, nil
}
func (p strictProvider) OpenI2C(sda, scl board.Pin) (hal.I2C, error) {
	p.t.Errorf("unexpected i2c open")
	return nil, nil
}
func (p strictProvider) OpenSPI(sck, sdo, sdi board.Pin, cfg hal.SPIConfig) (hal.SPI, error) {
	p.t.Errorf("unexpected spi open")
	return nil, nil
}
func (p strictProvider) OpenSerial(tx, rx board.Pin, baud uint32) (hal.SerialPort, error) {
	p.t.Errorf("unexpected serial open")
	return nil, nil
}

func allProbes() []probe.Probe {
	return []probe.Probe{
		probe.LED{}, probe.GPIO{}, probe.Voltage{}, probe.UART{},
		probe.SPI{}, probe.I2C{}, probe.SDCD{},
	}
}

func TestAbsentPinsAreNotApplicable(t *testing.T) {
	dirs := map[string]*board.Directory{
		"empty":     board.FromNames(),
		"unrelated": board.FromNames("NEOPIXEL", "BUTTON", "AREF", "DAC", "A", "D", "Dx", "A+1"),
		"half":      board.FromNames("SDA", "TX", "MOSI"),
	}
	for name, d := range dirs {
		t.Run(name, func(t *testing.T) {
			script := console.NewScript("y", "y", "y")
			env := &probe.Env{
				Dir:   d,
				Reg:   hal.NewRegistry(strictProvider{t}, nil),
				Con:   console.New(&bytes.Buffer{}, script),
				Clock: timex.NewFake(time.Unix(0, 0)),
			}
			for _, p := range allProbes() {
				res := p.Run(context.Background(), env)
				assert.Equal(t, types.NotApplicable, res.Verdict, p.Name())
				assert.Empty(t, res.Pins, p.Name())
			}
			assert.Equal(t, 3, script.Remaining(), "no prompt should be answered")
		})
	}
}

func TestGPIO_PassAfterToggling(t *testing.T) {
	r := newRig(t, board.Feather())
	r.script.PushAfter(100, "y")

	res := probe.RunGPIO(context.Background(), r.env, probe.GPIOOptions{})
	require.Equal(t, types.Pass, res.Verdict)
	assert.Equal(t, []string{
		"A0", "A1", "A2", "A3", "A4", "A5",
		"D2", "D5", "D6", "D9", "D10", "D11", "D12", "D13",
	}, res.Pins)
	assert.GreaterOrEqual(t, r.sim.Pin("A0").Edges(), 2)
	assert.Equal(t, r.sim.Pin("A0").Edges(), r.sim.Pin("D13").Edges(), "pins move in lockstep")
	assert.Contains(t, r.out.String(), "GPIO pins found: A0 A1")
	r.assertClean(t)
}

func TestGPIO_IndependentOnOffTimers(t *testing.T) {
	r := newRig(t, board.FromNames("D1"))
	r.script.PushAfter(40, "y")

	opt := probe.GPIOOptions{Toggle: probe.Toggle{On: 50 * time.Millisecond, Off: 150 * time.Millisecond, Poll: 10 * time.Millisecond}}
	res := probe.RunGPIO(context.Background(), r.env, opt)
	require.Equal(t, types.Pass, res.Verdict)
	// low until 150ms, high until 200ms, low until 350ms, high until 400ms
	assert.Equal(t, []bool{true, false, true, false}, r.sim.Pin("D1").History())
	assert.Equal(t, 400*time.Millisecond, r.clk.Slept())
}

func TestGPIO_NegativeAnswers(t *testing.T) {
	for _, answers := range [][]string{{"n"}, {""}, {"Y"}, nil} {
		r := newRig(t, board.FromNames("D1", "D2"), answers...)
		res := probe.RunGPIO(context.Background(), r.env, probe.GPIOOptions{})
		assert.Equal(t, types.Fail, res.Verdict, "answers %q", answers)
		assert.Equal(t, []string{"D1", "D2"}, res.Pins)
		r.assertClean(t)
	}
}

func TestGPIO_OverrideAndAliases(t *testing.T) {
	r := newRig(t, board.Feather(), "y")
	res := probe.RunGPIO(context.Background(), r.env, probe.GPIOOptions{Pins: []string{"D13", "LED", "NOPE", "SD_CD"}})
	assert.Equal(t, types.Pass, res.Verdict)
	assert.Equal(t, []string{"D13", "LED", "SD_CD"}, res.Pins, "LED shares D13's line and is reported too")
	r.assertClean(t)
}

func TestGPIO_AliasedLineClaimedOnceReportedTwice(t *testing.T) {
	dir, err := board.New("alias", []board.Pin{
		{Name: "A0", Line: "14", Caps: board.CapDigital | board.CapAnalog},
		{Name: "D13", Line: "13", Caps: board.CapDigital},
		{Name: "D14", Line: "14", Caps: board.CapDigital},
	})
	require.NoError(t, err)
	r := newRig(t, dir, "y")

	res := probe.RunGPIO(context.Background(), r.env, probe.GPIOOptions{})
	assert.Equal(t, types.Pass, res.Verdict)
	assert.Equal(t, []string{"A0", "D13", "D14"}, res.Pins)
	assert.Equal(t, 2, r.sim.Opens("digital"), "line 14 opened once")
	r.assertClean(t)
}

func TestGPIO_AcquireFailureIsFail(t *testing.T) {
	r := newRig(t, board.FromNames("D1", "D2"), "y")
	_, err := r.reg.ClaimDigital("other", mustPin(t, r.env.Dir, "D2"))
	require.NoError(t, err)

	res := probe.RunGPIO(context.Background(), r.env, probe.GPIOOptions{})
	assert.Equal(t, types.Fail, res.Verdict)
	assert.Equal(t, 1, r.script.Remaining(), "operator never asked")
	owner, _ := r.reg.Owner("D2")
	assert.Equal(t, "other", owner, "foreign claim untouched")
	_, held := r.reg.Owner("D1")
	assert.False(t, held, "partial claim released")
}

func TestGPIO_Cancelled(t *testing.T) {
	r := newRig(t, board.FromNames("D1"))
	r.script.PushAfter(1_000_000, "y")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := probe.RunGPIO(ctx, r.env, probe.GPIOOptions{})
	assert.Equal(t, types.Fail, res.Verdict)
	r.assertClean(t)
}

func mustPin(t *testing.T, d *board.Directory, name string) board.Pin {
	t.Helper()
	p, ok := d.Lookup(name)
	require.True(t, ok, name)
	return p
}

func TestLED_Lockstep(t *testing.T) {
	r := newRig(t, board.Feather())
	r.script.PushAfter(60, "y")
	res := probe.RunLED(context.Background(), r.env, probe.LEDOptions{})
	assert.Equal(t, types.Pass, res.Verdict)
	assert.Equal(t, []string{"LED"}, res.Pins)
	assert.Positive(t, r.sim.Pin("D13").Edges())
	r.assertClean(t)
}

func ledBoard(t *testing.T) *board.Directory {
	d, err := board.New("leds", []board.Pin{{Name: "BLUE_LED"}, {Name: "RED_LED"}, {Name: "GREEN_LED"}})
	require.NoError(t, err)
	return d
}

func TestLED_CycleClaimsPerBlink(t *testing.T) {
	r := newRig(t, ledBoard(t))
	// each blink is 11 polls on + 11 polls off; answer lands in the third
	r.script.PushAfter(50, "y")

	opt := probe.LEDOptions{Mode: probe.LEDCycle, Toggle: probe.Toggle{On: 100 * time.Millisecond, Off: 100 * time.Millisecond, Poll: 10 * time.Millisecond}}
	res := probe.RunLED(context.Background(), r.env, opt)
	require.Equal(t, types.Pass, res.Verdict)
	assert.Equal(t, []string{"RED_LED", "GREEN_LED", "BLUE_LED"}, res.Pins)
	assert.Equal(t, 3, r.sim.Opens("digital"))
	assert.Equal(t, []bool{false}, r.sim.Pin("RED_LED").History())
	assert.Equal(t, []bool{false}, r.sim.Pin("GREEN_LED").History())
	r.assertClean(t)
}

func TestLED_CycleWrapsAround(t *testing.T) {
	r := newRig(t, ledBoard(t))
	r.script.PushAfter(70, "n")

	opt := probe.LEDOptions{Mode: probe.LEDCycle, Toggle: probe.Toggle{On: 100 * time.Millisecond, Off: 100 * time.Millisecond, Poll: 10 * time.Millisecond}}
	res := probe.RunLED(context.Background(), r.env, opt)
	assert.Equal(t, types.Fail, res.Verdict)
	assert.Equal(t, 4, r.sim.Opens("digital"))
	r.assertClean(t)
}

func TestParseLEDMode(t *testing.T) {
	m, err := probe.ParseLEDMode("cycle")
	require.NoError(t, err)
	assert.Equal(t, probe.LEDCycle, m)
	m, err = probe.ParseLEDMode("")
	require.NoError(t, err)
	assert.Equal(t, probe.LEDLockstep, m)
	_, err = probe.ParseLEDMode("disco")
	assert.Error(t, err)
}
