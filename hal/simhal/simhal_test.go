package simhal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/hal"
)

func testPin() board.Pin { return board.Pin{Name: "X", Line: "X"} }

func TestEEPROM_WriteCycleNACKs(t *testing.T) {
	e := NewEEPROM(0x50)
	e.BusyPolls = 2

	require.NoError(t, e.Tx(0x50, []byte{0x10, 0xAB}, nil))
	for i := 0; i < 2; i++ {
		err := e.Tx(0x50, []byte{0x10}, nil)
		if !errcode.Is(err, errcode.NACK) {
			t.Fatalf("poll %d: want nack, got %v", i, err)
		}
	}
	require.NoError(t, e.Tx(0x50, []byte{0x10}, nil))

	r := make([]byte, 1)
	require.NoError(t, e.Tx(0x50, []byte{0x10}, r))
	assert.Equal(t, byte(0xAB), r[0])
	assert.Equal(t, 1, e.Writes())
	assert.Equal(t, 1, e.Reads())
	assert.Equal(t, 2, e.Polls())
}

func TestEEPROM_WrongAddressNACKs(t *testing.T) {
	e := NewEEPROM(0x50)
	assert.True(t, errcode.Is(e.Tx(0x51, []byte{0}, nil), errcode.NACK))
	e.Absent = true
	assert.True(t, errcode.Is(e.Tx(0x50, []byte{0}, nil), errcode.NACK))
}

func TestEEPROM_CorruptRead(t *testing.T) {
	e := NewEEPROM(0x50)
	e.BusyPolls = 0
	e.CorruptRead = 1
	require.NoError(t, e.Tx(0x50, []byte{3, 0x0F}, nil))
	r := make([]byte, 1)
	require.NoError(t, e.Tx(0x50, []byte{3}, r))
	assert.Equal(t, byte(0xF0), r[0])
	assert.Equal(t, byte(0x0F), e.Peek(3))
}

func TestSPIEEPROM_Frames(t *testing.T) {
	s := New()
	cs := s.Pin("D2")
	e := s.SPIROM

	// deselected: nothing answers
	require.NoError(t, cs.ConfigureOutput(true))
	r := make([]byte, 2)
	require.NoError(t, e.Tx([]byte{opRDSR, 0}, r))
	assert.Equal(t, []byte{0xFF, 0xFF}, r)

	cs.Set(false)
	require.NoError(t, e.Tx([]byte{opWRITE, 7, 0x5A}, nil))
	assert.Zero(t, e.Writes(), "write without WREN is ignored")

	require.NoError(t, e.Tx([]byte{opWREN}, nil))
	require.NoError(t, e.Tx([]byte{opWRITE, 7, 0x5A}, nil))
	assert.Equal(t, 1, e.Writes())

	for i := 0; i < 2; i++ {
		require.NoError(t, e.Tx([]byte{opRDSR, 0}, r))
		assert.Equal(t, byte(statusWIP), r[1]&statusWIP, "status read %d", i)
	}
	require.NoError(t, e.Tx([]byte{opRDSR, 0}, r))
	assert.Zero(t, r[1]&(statusWIP|statusWEL))

	rd := make([]byte, 3)
	require.NoError(t, e.Tx([]byte{opREAD, 7, 0}, rd))
	assert.Equal(t, byte(0x5A), rd[2])
}

func TestLoopback_Faults(t *testing.T) {
	s := New()
	p, err := s.OpenSerial(testPin(), testPin(), 9600)
	require.NoError(t, err)

	s.UART.Inject([]byte("stale"))
	require.NoError(t, p.Discard())
	assert.Zero(t, s.UART.Pending())

	s.UART.Drop = 2
	_, _ = p.Write([]byte("abcd"))
	buf := make([]byte, 8)
	n, err := p.RecvSomeContext(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(buf[:n]))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.RecvSomeContext(ctx, buf)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPin_InputSources(t *testing.T) {
	p := New().Pin("SD_CD")
	require.NoError(t, p.ConfigureInput(hal.PullUp))
	assert.True(t, p.Get(), "pull-up reads high when floating")
	p.Drive(false)
	assert.False(t, p.Get())
	p.Queue(true)
	assert.True(t, p.Get())
	assert.False(t, p.Get())
	p.Float()
	assert.True(t, p.Get())
}

func TestOpenCounters(t *testing.T) {
	s := New()
	d, err := s.OpenDigital(testPin())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Outstanding())
	require.NoError(t, d.(interface{ Close() error }).Close())
	require.NoError(t, d.(interface{ Close() error }).Close())
	assert.Zero(t, s.Outstanding())
	assert.Equal(t, 1, s.TotalOpens())
}
