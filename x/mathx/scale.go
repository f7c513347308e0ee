package mathx

import "golang.org/x/exp/constraints"

// Widen rescales an n-bit converter reading to the full 16-bit range by
// shifting left and replicating the top bits into the vacated low bits, so
// the native maximum maps to 0xFFFF. Readings wider than the native width
// are clamped first.
func Widen[T constraints.Unsigned](v T, bits uint) uint16 {
	if bits == 0 {
		return 0
	}
	if bits >= 16 {
		return uint16(Clamp(uint64(v), 0, 0xFFFF))
	}
	top := uint64(1)<<bits - 1
	x := Clamp(uint64(v), 0, top)
	out := x << (16 - bits)
	for s := bits; s < 16; s += bits {
		out |= x << (16 - bits) >> s
	}
	return uint16(out)
}

// DivRound returns a/b rounded to nearest for positive operands. A zero
// divisor yields zero.
func DivRound[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}
