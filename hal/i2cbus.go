package hal

import "sync"

// I2CBus is a claimed I²C bus. Transactions require the caller to hold the
// bus lock, taken with TryLock.
type I2CBus struct {
	bus    I2C
	mu     sync.Mutex
	locked bool
}

func newI2CBus(b I2C) *I2CBus { return &I2CBus{bus: b} }

// TryLock takes the bus lock without blocking.
func (b *I2CBus) TryLock() bool {
	if !b.mu.TryLock() {
		return false
	}
	b.locked = true
	return true
}

// Unlock releases the bus lock. Unlocking an unlocked bus is a no-op.
func (b *I2CBus) Unlock() {
	if !b.locked {
		return
	}
	b.locked = false
	b.mu.Unlock()
}

// Tx performs one combined write/read transaction.
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	return b.bus.Tx(addr, w, r)
}

// Ensure compile-time conformance with drivers.I2C.
var _ I2C = (*I2CBus)(nil)
