// Package simhal is an in-process backend: pins hold levels, an AT24-style
// EEPROM answers on the I²C bus, a 25AA040A answers on SPI, and the UART
// loops TX back to RX when bridged.
package simhal

import (
	"sync"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/hal"
)

// Sim implements hal.Provider.
type Sim struct {
	mu    sync.Mutex
	pins  map[string]*Pin
	adc   map[string]uint16
	fail  map[string]error
	opens map[string]int
	open  int

	EEPROM *EEPROM
	SPIROM *SPIEEPROM
	UART   *Loopback
}

// New returns a simulator with an EEPROM at 0x50, a SPI EEPROM selected by
// line "D2" and a bridged loopback UART.
func New() *Sim {
	s := &Sim{
		pins:  make(map[string]*Pin),
		adc:   make(map[string]uint16),
		fail:  make(map[string]error),
		opens: make(map[string]int),
	}
	s.EEPROM = NewEEPROM(0x50)
	s.SPIROM = &SPIEEPROM{sim: s, CS: "D2", BusyPolls: 2}
	s.UART = &Loopback{Bridged: true}
	return s
}

func (s *Sim) Name() string { return "sim" }

// Pin returns the stable simulated pin for line.
func (s *Sim) Pin(line string) *Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinLocked(line)
}

func (s *Sim) pinLocked(line string) *Pin {
	p, ok := s.pins[line]
	if !ok {
		p = &Pin{line: line}
		s.pins[line] = p
	}
	return p
}

// SetADC sets the raw 16-bit sample returned for line.
func (s *Sim) SetADC(line string, raw uint16) {
	s.mu.Lock()
	s.adc[line] = raw
	s.mu.Unlock()
}

// FailOpen makes every later Open of kind ("digital", "analog", "i2c",
// "spi", "uart") return err. A nil err clears the fault.
func (s *Sim) FailOpen(kind string, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.fail, kind)
	} else {
		s.fail[kind] = err
	}
	s.mu.Unlock()
}

// Opens reports how many handles of kind were opened so far.
func (s *Sim) Opens(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[kind]
}

// TotalOpens counts every successful open.
func (s *Sim) TotalOpens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.opens {
		n += v
	}
	return n
}

// Outstanding is the number of handles opened and not yet closed.
func (s *Sim) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Sim) opened(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[kind]; err != nil {
		return err
	}
	s.opens[kind]++
	s.open++
	return nil
}

func (s *Sim) closed() {
	s.mu.Lock()
	s.open--
	s.mu.Unlock()
}

// ---- hal.Provider ----

func (s *Sim) OpenDigital(p board.Pin) (hal.DigitalPin, error) {
	if err := s.opened("digital"); err != nil {
		return nil, err
	}
	return &digital{Pin: s.Pin(p.Line), sim: s}, nil
}

func (s *Sim) OpenAnalog(p board.Pin) (hal.AnalogPin, error) {
	if err := s.opened("analog"); err != nil {
		return nil, err
	}
	return &analog{sim: s, line: p.Line}, nil
}

func (s *Sim) OpenI2C(sda, scl board.Pin) (hal.I2C, error) {
	if err := s.opened("i2c"); err != nil {
		return nil, err
	}
	return &i2cBus{sim: s}, nil
}

func (s *Sim) OpenSPI(sck, sdo, sdi board.Pin, cfg hal.SPIConfig) (hal.SPI, error) {
	if cfg.Mode > 3 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "open spi", Msg: "mode out of range"}
	}
	if err := s.opened("spi"); err != nil {
		return nil, err
	}
	return &spiBus{sim: s}, nil
}

func (s *Sim) OpenSerial(tx, rx board.Pin, baud uint32) (hal.SerialPort, error) {
	if baud == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "open uart", Msg: "zero baud"}
	}
	if err := s.opened("uart"); err != nil {
		return nil, err
	}
	return &serialPort{sim: s, lb: s.UART}, nil
}

// ---- handles ----

type digital struct {
	*Pin
	sim  *Sim
	once sync.Once
}

// Close returns the line to a floating input.
func (d *digital) Close() error {
	d.once.Do(func() {
		d.Pin.release()
		d.sim.closed()
	})
	return nil
}

type analog struct {
	sim  *Sim
	line string
	once sync.Once
}

func (a *analog) Get() (uint16, error) {
	a.sim.mu.Lock()
	defer a.sim.mu.Unlock()
	return a.sim.adc[a.line], nil
}

func (a *analog) Close() error {
	a.once.Do(a.sim.closed)
	return nil
}

type i2cBus struct {
	sim  *Sim
	once sync.Once
}

func (b *i2cBus) Tx(addr uint16, w, r []byte) error {
	return b.sim.EEPROM.Tx(addr, w, r)
}

func (b *i2cBus) Close() error {
	b.once.Do(b.sim.closed)
	return nil
}

type spiBus struct {
	sim  *Sim
	once sync.Once
}

func (b *spiBus) Tx(w, r []byte) error { return b.sim.SPIROM.Tx(w, r) }

func (b *spiBus) Transfer(c byte) (byte, error) {
	var r [1]byte
	err := b.sim.SPIROM.Tx([]byte{c}, r[:])
	return r[0], err
}

func (b *spiBus) Close() error {
	b.once.Do(b.sim.closed)
	return nil
}
