//go:build rp2040 || rp2350

// Package rp2hal backs the registry with RP2040/RP2350 peripherals. Lines
// are GPIO numbers; the bus block is picked from the pin numbers.
package rp2hal

import (
	"context"
	"strconv"
	"sync"
	"time"

	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/hal"
)

// Ensure the provider satisfies the contracts at compile time.
var _ hal.Provider = (*Provider)(nil)

type Provider struct {
	mu      sync.Mutex
	adcInit bool

	// I2CHz is the bus clock; zero keeps 100 kHz.
	I2CHz uint32
	// I2CTimeout bounds each transaction queued on a bus worker.
	I2CTimeout time.Duration
}

func New() *Provider {
	return &Provider{I2CHz: 100000, I2CTimeout: 250 * time.Millisecond}
}

func (p *Provider) Name() string { return "rp2" }

func gpioOf(bp board.Pin) (machine.Pin, error) {
	n, err := strconv.Atoi(bp.Line)
	if err != nil || n < 0 || n > 47 {
		return 0, &errcode.E{C: errcode.UnknownPin, Op: "rp2", Msg: bp.Name + " (line " + bp.Line + ")"}
	}
	return machine.Pin(n), nil
}

// -----------------------------------------------------------------------------
// GPIO handle
// -----------------------------------------------------------------------------

type rp2GPIO struct {
	p machine.Pin
}

func (p *Provider) OpenDigital(bp board.Pin) (hal.DigitalPin, error) {
	pin, err := gpioOf(bp)
	if err != nil {
		return nil, err
	}
	return &rp2GPIO{p: pin}, nil
}

func (r *rp2GPIO) ConfigureInput(pull hal.Pull) error {
	var mode machine.PinMode
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2GPIO) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2GPIO) Set(b bool) { r.p.Set(b) }
func (r *rp2GPIO) Get() bool  { return r.p.Get() }

// Close puts the pin back to input.
func (r *rp2GPIO) Close() error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

// -----------------------------------------------------------------------------
// ADC handle
// -----------------------------------------------------------------------------

type rp2ADC struct {
	a machine.ADC
}

func (p *Provider) OpenAnalog(bp board.Pin) (hal.AnalogPin, error) {
	pin, err := gpioOf(bp)
	if err != nil {
		return nil, err
	}
	if pin < 26 || pin > 29 {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "rp2", Msg: bp.Name + " is not an ADC input"}
	}
	p.mu.Lock()
	if !p.adcInit {
		machine.InitADC()
		p.adcInit = true
	}
	p.mu.Unlock()
	a := machine.ADC{Pin: pin}
	if err := a.Configure(machine.ADCConfig{}); err != nil {
		return nil, err
	}
	return &rp2ADC{a: a}, nil
}

// Get returns the reading; TinyGo already scales it to 16 bits.
func (r *rp2ADC) Get() (uint16, error) { return r.a.Get(), nil }

func (r *rp2ADC) Close() error {
	r.a.Pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

// -----------------------------------------------------------------------------
// I2C: one worker goroutine per open bus
// -----------------------------------------------------------------------------

// i2cBlock maps an SDA pin to its controller (RP2040 function table).
func i2cBlock(sda machine.Pin) *machine.I2C {
	if (sda/2)%2 == 0 {
		return machine.I2C0
	}
	return machine.I2C1
}

func (p *Provider) OpenI2C(sda, scl board.Pin) (hal.I2C, error) {
	d, err := gpioOf(sda)
	if err != nil {
		return nil, err
	}
	c, err := gpioOf(scl)
	if err != nil {
		return nil, err
	}
	if d%2 != 0 || c != d+1 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "rp2", Msg: "SDA/SCL must be an even/odd GPIO pair"}
	}
	hw := i2cBlock(d)
	d.Configure(machine.PinConfig{Mode: machine.PinI2C})
	c.Configure(machine.PinConfig{Mode: machine.PinI2C})
	if err := hw.Configure(machine.I2CConfig{SDA: d, SCL: c, Frequency: p.I2CHz}); err != nil {
		return nil, err
	}
	o := newI2COwner(hw, func() {
		d.Configure(machine.PinConfig{Mode: machine.PinInput})
		c.Configure(machine.PinConfig{Mode: machine.PinInput})
	})
	return &driversI2C{o: o, timeout: p.I2CTimeout}, nil
}

// -----------------------------------------------------------------------------
// SPI
// -----------------------------------------------------------------------------

type rp2SPI struct {
	*machine.SPI
	pins [3]machine.Pin
}

func (s *rp2SPI) Close() error {
	for _, p := range s.pins {
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	return nil
}

// spiBlock picks SPI0 or SPI1 from the SCK pin (RP2040 function table).
func spiBlock(sck machine.Pin) *machine.SPI {
	if (sck/8)%2 == 0 {
		return machine.SPI0
	}
	return machine.SPI1
}

func (p *Provider) OpenSPI(sck, sdo, sdi board.Pin, cfg hal.SPIConfig) (hal.SPI, error) {
	if cfg.Mode > 3 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "rp2", Msg: "spi mode " + strconv.Itoa(int(cfg.Mode))}
	}
	var pins [3]machine.Pin
	for i, bp := range []board.Pin{sck, sdo, sdi} {
		pin, err := gpioOf(bp)
		if err != nil {
			return nil, err
		}
		pins[i] = pin
	}
	hw := spiBlock(pins[0])
	if err := hw.Configure(machine.SPIConfig{
		Frequency: cfg.Hz,
		SCK:       pins[0],
		SDO:       pins[1],
		SDI:       pins[2],
		Mode:      cfg.Mode,
	}); err != nil {
		return nil, err
	}
	return &rp2SPI{SPI: hw, pins: pins}, nil
}

// -----------------------------------------------------------------------------
// UART
// -----------------------------------------------------------------------------

type rp2SerialPort struct {
	u      *uartx.UART
	tx, rx machine.Pin
}

func (s *rp2SerialPort) Write(b []byte) (int, error) { return s.u.Write(b) }

func (s *rp2SerialPort) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	return s.u.RecvSomeContext(ctx, buf)
}

// Discard drains whatever the RX ring holds.
func (s *rp2SerialPort) Discard() error {
	var scratch [32]byte
	for s.u.TryRead(scratch[:]) > 0 {
	}
	return nil
}

func (s *rp2SerialPort) Close() error {
	s.tx.Configure(machine.PinConfig{Mode: machine.PinInput})
	s.rx.Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

// uartBlock picks UART0 or UART1 from the TX pin (RP2040 function table).
func uartBlock(tx machine.Pin) *uartx.UART {
	switch tx {
	case 4, 8, 20, 24:
		return uartx.UART1
	}
	return uartx.UART0
}

func (p *Provider) OpenSerial(tx, rx board.Pin, baud uint32) (hal.SerialPort, error) {
	t, err := gpioOf(tx)
	if err != nil {
		return nil, err
	}
	r, err := gpioOf(rx)
	if err != nil {
		return nil, err
	}
	u := uartBlock(t)
	if err := u.Configure(uartx.UARTConfig{BaudRate: baud, TX: t, RX: r}); err != nil {
		return nil, err
	}
	return &rp2SerialPort{u: u, tx: t, rx: r}, nil
}
