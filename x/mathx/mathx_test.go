package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 0, 3))
	assert.Equal(t, 0, Clamp(-1, 3, 0))
	assert.Equal(t, 1.5, Clamp(1.5, 0, 3.3))
	assert.True(t, Between(2, 3, 1))
	assert.False(t, Between(4, 1, 3))
}

func TestWiden(t *testing.T) {
	cases := []struct {
		v    uint16
		bits uint
		want uint16
	}{
		{0, 10, 0},
		{1023, 10, 0xFFFF},
		{512, 10, 0x8020},
		{4095, 12, 0xFFFF},
		{0x800, 12, 0x8008},
		{5000, 12, 0xFFFF},
		{0x1234, 16, 0x1234},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Widen(c.v, c.bits), "Widen(%d, %d)", c.v, c.bits)
	}
	assert.Equal(t, uint16(0), Widen(uint8(7), 0))
}

func TestDivRound(t *testing.T) {
	assert.Equal(t, uint32(117), DivRound(uint32(12000000), 102564))
	assert.Equal(t, uint8(0), DivRound(uint8(9), 0))
	assert.Equal(t, uint(3), DivRound(uint(5), 2))
}
