package simhal

import (
	"sync"

	"boardtest-go/errcode"
)

// EEPROM emulates a 256-byte AT24-family part. After a write it NACKs the
// next BusyPolls transactions, as the real part does during its internal
// write cycle.
type EEPROM struct {
	mu   sync.Mutex
	Addr uint16
	mem  [256]byte
	ptr  byte
	busy int

	// BusyPolls is how many transactions NACK after each write.
	BusyPolls int
	// CorruptRead, when > 0, flips the data of that read (1-based).
	CorruptRead int
	// FailWrite, when > 0, NACKs that data write (1-based).
	FailWrite int
	// Absent makes every transaction NACK.
	Absent bool

	writes int
	reads  int
	polls  int
}

func NewEEPROM(addr uint16) *EEPROM {
	return &EEPROM{Addr: addr, BusyPolls: 3}
}

func nack(op string) error {
	return &errcode.E{C: errcode.NACK, Op: op}
}

// Tx implements the drivers.I2C transaction shape. A write of two or more
// bytes stores data at w[0]; a one-byte write only sets the pointer.
func (e *EEPROM) Tx(addr uint16, w, r []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Absent || addr != e.Addr {
		return nack("i2c tx")
	}
	if e.busy > 0 {
		e.busy--
		e.polls++
		return nack("i2c tx")
	}
	switch {
	case len(w) >= 2:
		e.writes++
		if e.FailWrite > 0 && e.writes == e.FailWrite {
			return nack("i2c write")
		}
		a := w[0]
		for _, b := range w[1:] {
			e.mem[a] = b
			a++
		}
		e.ptr = a
		e.busy = e.BusyPolls
	case len(w) == 1:
		e.ptr = w[0]
	}
	if len(r) > 0 {
		e.reads++
		for i := range r {
			r[i] = e.mem[e.ptr]
			e.ptr++
		}
		if e.CorruptRead > 0 && e.reads == e.CorruptRead {
			r[0] ^= 0xFF
		}
	}
	return nil
}

// Writes counts data writes accepted or attempted.
func (e *EEPROM) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}

// Reads counts read transactions.
func (e *EEPROM) Reads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reads
}

// Polls counts transactions refused while busy.
func (e *EEPROM) Polls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.polls
}

// Peek returns the stored byte at a.
func (e *EEPROM) Peek(a byte) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem[a]
}

// Reset clears counters and the write cycle; memory is kept.
func (e *EEPROM) Reset() {
	e.mu.Lock()
	e.writes, e.reads, e.polls, e.busy = 0, 0, 0, 0
	e.mu.Unlock()
}

// 25AA040A instruction set.
const (
	opWRSR  = 0x01
	opWRITE = 0x02
	opREAD  = 0x03
	opWRDI  = 0x04
	opRDSR  = 0x05
	opWREN  = 0x06

	statusWIP = 0x01
	statusWEL = 0x02
)

// SPIEEPROM emulates a Microchip 25AA040A. One Tx is one chip-select
// frame. When CS names a line the part only answers while that line is an
// output driven low.
type SPIEEPROM struct {
	mu     sync.Mutex
	sim    *Sim
	CS     string
	mem    [512]byte
	status byte
	busy   int

	// BusyPolls is how many status reads report WIP after a write.
	BusyPolls int
	// CorruptRead, when > 0, flips the data of that READ (1-based).
	CorruptRead int
	// Absent makes MISO float high.
	Absent bool

	writes int
	reads  int
}

func (e *SPIEEPROM) selected() bool {
	if e.CS == "" || e.sim == nil {
		return true
	}
	p := e.sim.Pin(e.CS)
	return p.IsOutput() && !p.Level()
}

// Tx shifts one frame. r, when non-nil, receives one byte per clocked byte.
func (e *SPIEEPROM) Tx(w, r []byte) error {
	n := max(len(w), len(r))
	for i := range r {
		r[i] = 0xFF
	}
	if n == 0 || len(w) == 0 {
		return nil
	}
	sel := e.selected()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Absent || !sel {
		return nil
	}
	put := func(i int, b byte) {
		if i < len(r) {
			r[i] = b
		}
	}
	op := w[0]
	a8 := uint16(op&0x08) << 5
	switch op &^ 0x08 {
	case opWREN:
		if e.status&statusWIP == 0 {
			e.status |= statusWEL
		}
	case opWRDI:
		e.status &^= statusWEL
	case opRDSR:
		for i := 1; i < n; i++ {
			put(i, e.status)
		}
		if e.busy > 0 {
			e.busy--
			if e.busy == 0 {
				e.status &^= statusWIP
			}
		}
	case opWRSR:
		// block-protect bits are ignored
	case opWRITE:
		if len(w) < 3 || e.status&statusWEL == 0 || e.status&statusWIP != 0 {
			return nil
		}
		e.writes++
		a := a8 | uint16(w[1])
		for _, b := range w[2:] {
			e.mem[a&0x1FF] = b
			a++
		}
		e.status = e.status&^statusWEL | statusWIP
		e.busy = e.BusyPolls
		if e.busy == 0 {
			e.status &^= statusWIP
		}
	case opREAD:
		if len(w) < 2 || e.status&statusWIP != 0 {
			return nil
		}
		e.reads++
		a := a8 | uint16(w[1])
		for i := 2; i < n; i++ {
			b := e.mem[a&0x1FF]
			if i == 2 && e.CorruptRead > 0 && e.reads == e.CorruptRead {
				b ^= 0xFF
			}
			put(i, b)
			a++
		}
	}
	return nil
}

func (e *SPIEEPROM) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}

func (e *SPIEEPROM) Reads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reads
}
