package rp2hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"boardtest-go/errcode"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stallingBus holds each transaction until gate closes, then fills r.
type stallingBus struct {
	gate     chan struct{}
	finished chan struct{}
	writes   [][]byte
}

func (b *stallingBus) Tx(addr uint16, w, r []byte) error {
	<-b.gate
	b.writes = append(b.writes, w)
	for i := range r {
		r[i] = 0xAA
	}
	b.finished <- struct{}{}
	return nil
}

func TestI2CWorker_TimedOutReadLeavesCallerBuffer(t *testing.T) {
	hw := &stallingBus{gate: make(chan struct{}), finished: make(chan struct{}, 2)}
	closes := 0
	bus := &driversI2C{o: newI2COwner(hw, func() { closes++ }), timeout: 20 * time.Millisecond}

	w := []byte{0x10}
	r := make([]byte, 2)
	err := bus.Tx(0x50, w, r)
	assert.Equal(t, errcode.Timeout, errcode.Of(err))

	w[0] = 0x99
	close(hw.gate)
	<-hw.finished
	assert.Equal(t, []byte{0, 0}, r, "abandoned read must not land in the caller's buffer")
	assert.Equal(t, []byte{0x10}, hw.writes[0], "worker wrote the bytes as they were at call time")

	require.NoError(t, bus.Tx(0x50, []byte{0x20}, r))
	<-hw.finished
	assert.Equal(t, []byte{0xAA, 0xAA}, r)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.Equal(t, 1, closes)
}
