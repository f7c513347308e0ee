package probe_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/probe"
	"boardtest-go/types"
)

func TestI2C_PassAfterTenCycles(t *testing.T) {
	r := newRig(t, board.Feather(), "")
	res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{})

	require.Equal(t, types.Pass, res.Verdict)
	assert.Equal(t, []string{"SDA", "SCL"}, res.Pins)
	assert.Equal(t, 10, r.sim.EEPROM.Writes())
	assert.Equal(t, 10, r.sim.EEPROM.Reads())
	assert.Equal(t, 30, r.sim.EEPROM.Polls(), "write cycle waited out every time")
	r.assertClean(t)
}

func TestI2C_MismatchStopsImmediately(t *testing.T) {
	r := newRig(t, board.Feather(), "")
	r.sim.EEPROM.CorruptRead = 3
	core, logs := observer.New(zap.InfoLevel)
	r.env.Log = zap.New(core)

	res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{})
	assert.Equal(t, types.Fail, res.Verdict)
	assert.Equal(t, 3, r.sim.EEPROM.Writes(), "no cycles after the mismatch")
	assert.Contains(t, r.out.String(), "FAIL: Data does not match")

	entries := logs.FilterMessage("readback mismatch").All()
	require.Len(t, entries, 1)
	err, ok := entries[0].ContextMap()["error"]
	require.True(t, ok)
	assert.Contains(t, err, string(errcode.Mismatch))
	r.assertClean(t)
}

func TestI2C_BusFaults(t *testing.T) {
	t.Run("write nack", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		r.sim.EEPROM.FailWrite = 2
		res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{})
		assert.Equal(t, types.Fail, res.Verdict)
		assert.Equal(t, 1, r.sim.EEPROM.Reads())
		r.assertClean(t)
	})
	t.Run("absent", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		r.sim.EEPROM.Absent = true
		res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{})
		assert.Equal(t, types.Fail, res.Verdict)
		assert.Contains(t, r.out.String(), "FAIL: I2C could not communicate")
		r.assertClean(t)
	})
	t.Run("wrong address", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{Addr: 0x51})
		assert.Equal(t, types.Fail, res.Verdict)
	})
	t.Run("stuck busy", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		r.sim.EEPROM.BusyPolls = 1 << 20
		res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{})
		assert.Equal(t, types.Fail, res.Verdict)
		assert.Equal(t, 1, r.sim.EEPROM.Writes())
		assert.GreaterOrEqual(t, r.clk.Slept(), time.Second)
		r.assertClean(t)
	})
}

func TestI2C_NeedsBothPins(t *testing.T) {
	r := newRig(t, board.FromNames("SDA"), "")
	res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{})
	assert.Equal(t, types.NotApplicable, res.Verdict)
	assert.Equal(t, 1, r.script.Remaining())
}

func TestI2C_RolePinOverride(t *testing.T) {
	d, err := board.New("alt", []board.Pin{
		{Name: "SDA1", Caps: board.CapDigital | board.CapI2C},
		{Name: "SCL1", Caps: board.CapDigital | board.CapI2C},
	})
	require.NoError(t, err)
	r := newRig(t, d, "")
	res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{SDA: "SDA1", SCL: "SCL1", Cycles: 3})
	assert.Equal(t, types.Pass, res.Verdict)
	assert.Equal(t, []string{"SDA1", "SCL1"}, res.Pins)
	assert.Equal(t, 3, r.sim.EEPROM.Writes())
}

func TestI2C_BusWithoutCapabilityFails(t *testing.T) {
	r := newRig(t, board.FromNames("SDA", "SCL"), "")
	res := probe.RunI2C(context.Background(), r.env, probe.I2COptions{})
	assert.Equal(t, types.Fail, res.Verdict)
	assert.Contains(t, r.out.String(), "unsupported")
	r.assertClean(t)
}

func TestUART_LoopbackPassesForManyPayloads(t *testing.T) {
	for seed := uint64(0); seed < 25; seed++ {
		r := newRig(t, board.Feather(), "")
		r.env.Rand = rand.New(rand.NewPCG(seed, seed*7+1))
		res := probe.RunUART(context.Background(), r.env, probe.UARTOptions{})
		require.Equal(t, types.Pass, res.Verdict, "seed %d", seed)
		assert.Equal(t, []string{"TX", "RX"}, res.Pins)

		sent := r.sim.UART.Written()
		require.Len(t, sent, 40)
		for _, b := range sent {
			require.True(t, b >= 0x21 && b <= 0x7E, "byte %#x outside printable range", b)
		}
		r.assertClean(t)
	}
}

func TestUART_Faults(t *testing.T) {
	short := probe.UARTOptions{ReadTimeout: 20 * time.Millisecond}
	t.Run("short", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		r.sim.UART.Drop = 1
		assert.Equal(t, types.Fail, probe.RunUART(context.Background(), r.env, short).Verdict)
		r.assertClean(t)
	})
	t.Run("corrupt", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		r.sim.UART.Corrupt = true
		assert.Equal(t, types.Fail, probe.RunUART(context.Background(), r.env, short).Verdict)
	})
	t.Run("no jumper", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		r.sim.UART.Bridged = false
		assert.Equal(t, types.Fail, probe.RunUART(context.Background(), r.env, short).Verdict)
	})
	t.Run("stale input discarded", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		r.sim.UART.Inject([]byte("noise"))
		assert.Equal(t, types.Pass, probe.RunUART(context.Background(), r.env, short).Verdict)
	})
	t.Run("open error", func(t *testing.T) {
		r := newRig(t, board.Feather(), "")
		r.sim.FailOpen("uart", errors.New("no such device"))
		assert.Equal(t, types.Fail, probe.RunUART(context.Background(), r.env, short).Verdict)
		r.assertClean(t)
	})
}

func TestSPI_Pass(t *testing.T) {
	r := newRig(t, board.Feather(), "")
	res := probe.RunSPI(context.Background(), r.env, probe.SPIOptions{})
	require.Equal(t, types.Pass, res.Verdict)
	assert.Equal(t, []string{"MOSI", "MISO", "SCK", "D2"}, res.Pins)
	assert.Equal(t, 10, r.sim.SPIROM.Writes())
	assert.False(t, r.sim.Pin("D2").IsOutput(), "chip select released")
	r.assertClean(t)
}

func TestSPI_MismatchStops(t *testing.T) {
	r := newRig(t, board.Feather(), "")
	r.sim.SPIROM.CorruptRead = 2
	res := probe.RunSPI(context.Background(), r.env, probe.SPIOptions{})
	assert.Equal(t, types.Fail, res.Verdict)
	assert.Equal(t, 2, r.sim.SPIROM.Writes())
	r.assertClean(t)
}

func TestSPI_WrongChipSelectTimesOut(t *testing.T) {
	r := newRig(t, board.Feather(), "")
	res := probe.RunSPI(context.Background(), r.env, probe.SPIOptions{CS: "D5"})
	assert.Equal(t, types.Fail, res.Verdict)
	assert.Zero(t, r.sim.SPIROM.Writes())
	assert.Equal(t, []string{"MOSI", "MISO", "SCK", "D5"}, res.Pins)
	r.assertClean(t)
}

func TestSPI_PartialBusFails(t *testing.T) {
	r := newRig(t, board.FromNames("MOSI", "D2"), "")
	res := probe.RunSPI(context.Background(), r.env, probe.SPIOptions{})
	assert.Equal(t, types.Fail, res.Verdict)
	assert.Equal(t, []string{"MOSI", "D2"}, res.Pins, "only pins on the board")
	assert.Zero(t, r.sim.TotalOpens())
}
