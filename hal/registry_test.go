package hal_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/hal"
	"boardtest-go/hal/simhal"
)

func pin(t *testing.T, d *board.Directory, name string) board.Pin {
	t.Helper()
	p, ok := d.Lookup(name)
	if !ok {
		t.Fatalf("no pin %q", name)
	}
	return p
}

func TestRegistry_ClaimAndRelease(t *testing.T) {
	sim := simhal.New()
	reg := hal.NewRegistry(sim, nil)
	d := board.Feather()

	dp, err := reg.ClaimDigital("gpio", pin(t, d, "D5"))
	require.NoError(t, err)
	require.NoError(t, dp.ConfigureOutput(true))
	assert.True(t, sim.Pin("D5").Level())

	owner, ok := reg.Owner("D5")
	assert.True(t, ok)
	assert.Equal(t, "gpio", owner)

	require.NoError(t, reg.Release("gpio"))
	_, ok = reg.Owner("D5")
	assert.False(t, ok)
	assert.Equal(t, 0, sim.Outstanding())
	assert.False(t, sim.Pin("D5").IsOutput(), "released line should be an input again")
}

func TestRegistry_SecondOwnerRejected(t *testing.T) {
	sim := simhal.New()
	reg := hal.NewRegistry(sim, nil)
	d := board.Feather()

	if _, err := reg.ClaimDigital("a", pin(t, d, "D13")); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// LED aliases D13.
	_, err := reg.ClaimDigital("b", pin(t, d, "LED"))
	if !errcode.Is(err, errcode.PinInUse) {
		t.Fatalf("want pin_in_use, got %v", err)
	}
	if sim.Opens("digital") != 1 {
		t.Fatalf("backend opened %d pins, want 1", sim.Opens("digital"))
	}

	_ = reg.Release("a")
	if _, err := reg.ClaimDigital("b", pin(t, d, "LED")); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestRegistry_CapabilityChecked(t *testing.T) {
	reg := hal.NewRegistry(simhal.New(), nil)
	d := board.Feather()

	_, err := reg.ClaimAnalog("v", pin(t, d, "D5"))
	assert.True(t, errcode.Is(err, errcode.Unsupported), "got %v", err)

	_, err = reg.ClaimI2C("i2c", pin(t, d, "SDA"), pin(t, d, "D5"))
	assert.True(t, errcode.Is(err, errcode.Unsupported), "got %v", err)
	assert.Zero(t, reg.InUse(), "failed claim must not hold lines")

	_, err = reg.ClaimI2C("i2c", pin(t, d, "SDA"), pin(t, d, "SDA"))
	assert.True(t, errcode.Is(err, errcode.InvalidParams), "got %v", err)

	_, err = reg.ClaimDigital("x", board.Pin{})
	assert.True(t, errcode.Is(err, errcode.UnknownPin), "got %v", err)
}

func TestRegistry_BackendErrorWrapped(t *testing.T) {
	sim := simhal.New()
	sim.FailOpen("uart", errors.New("port busy"))
	reg := hal.NewRegistry(sim, nil)
	d := board.Feather()

	_, err := reg.ClaimSerial("uart", pin(t, d, "TX"), pin(t, d, "RX"), 9600)
	require.Error(t, err)
	assert.Equal(t, errcode.Error, errcode.Of(err))
	assert.Contains(t, err.Error(), "port busy")
	assert.Zero(t, reg.InUse())
}

func TestRegistry_ReleaseClosesAllInReverse(t *testing.T) {
	sim := simhal.New()
	reg := hal.NewRegistry(sim, nil)
	d := board.Feather()

	_, err := reg.ClaimDigital("spi", pin(t, d, "D2"))
	require.NoError(t, err)
	_, err = reg.ClaimSPI("spi", pin(t, d, "SCK"), pin(t, d, "MOSI"), pin(t, d, "MISO"), hal.SPIConfig{Hz: 100_000})
	require.NoError(t, err)
	assert.Equal(t, []string{"D2", "SCK", "MOSI", "MISO"}, reg.Held("spi"))
	assert.Equal(t, 2, sim.Outstanding())

	require.NoError(t, reg.Release("spi"))
	assert.Zero(t, sim.Outstanding())
	assert.Empty(t, reg.Held("spi"))
	// releasing twice is harmless
	require.NoError(t, reg.Release("spi"))
}

func TestRegistry_ReleaseLine(t *testing.T) {
	sim := simhal.New()
	reg := hal.NewRegistry(sim, nil)
	d := board.Feather()

	_, err := reg.ClaimDigital("led", pin(t, d, "D13"))
	require.NoError(t, err)
	_, err = reg.ClaimDigital("led", pin(t, d, "D12"))
	require.NoError(t, err)

	require.NoError(t, reg.ReleaseLine("led", "D13"))
	assert.Equal(t, []string{"D12"}, reg.Held("led"))
	assert.Equal(t, 1, sim.Outstanding())
	require.NoError(t, reg.ReleaseLine("led", "nope"))
}

func TestI2CBus_TryLock(t *testing.T) {
	reg := hal.NewRegistry(simhal.New(), nil)
	d := board.Feather()

	bus, err := reg.ClaimI2C("i2c", pin(t, d, "SDA"), pin(t, d, "SCL"))
	require.NoError(t, err)
	require.True(t, bus.TryLock())
	assert.False(t, bus.TryLock(), "lock is not reentrant")
	bus.Unlock()
	bus.Unlock()
	assert.True(t, bus.TryLock())

	// release drops a lock left held
	require.NoError(t, reg.Release("i2c"))
	assert.True(t, bus.TryLock())
}

func TestRegistry_CloseReleasesEveryone(t *testing.T) {
	sim := simhal.New()
	reg := hal.NewRegistry(sim, nil)
	d := board.Feather()

	_, _ = reg.ClaimDigital("a", pin(t, d, "D5"))
	_, _ = reg.ClaimAnalog("b", pin(t, d, "A0"))
	require.NoError(t, reg.Close())
	assert.Zero(t, reg.InUse())
	assert.Zero(t, sim.Outstanding())
}
