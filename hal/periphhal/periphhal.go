// Package periphhal backs the registry with Linux host hardware through
// periph.io: sysfs/chardev GPIO lines, /dev/i2c-N and spidev buses, and a
// go.bug.st/serial tty for the UART jumper test. Pin lines are periph pin
// names such as "GPIO17".
package periphhal

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/hal"
	"boardtest-go/hal/serialport"
)

// Options names the host buses. Empty bus names pick the first registered
// bus of that kind.
type Options struct {
	I2CBus     string
	SPIPort    string
	SerialPort string
}

// line is the part of gpio.PinIO the backend drives.
type line interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Out(l gpio.Level) error
	Read() gpio.Level
	Halt() error
}

type i2cCloser interface {
	hal.I2C
	io.Closer
}

// spiConn is a connected SPI device plus the port it came from.
type spiConn interface {
	Tx(w, r []byte) error
}

type opener struct {
	pin func(name string) line
	i2c func(bus string) (i2cCloser, error)
	spi func(port string, hz uint32, mode uint8) (spiConn, io.Closer, error)
}

// Provider opens periph resources by name.
type Provider struct {
	opts Options
	open opener
	log  *zap.Logger

	mu    sync.Mutex
	buses map[string]bool
}

// Ensure compile-time conformance.
var _ hal.Provider = (*Provider)(nil)

// New initialises the periph host drivers.
func New(opts Options, log *zap.Logger) (*Provider, error) {
	state, err := host.Init()
	if err != nil {
		return nil, &errcode.E{C: errcode.Error, Op: "periph.init", Err: err}
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("periph")
	for _, f := range state.Failed {
		log.Debug("driver failed", zap.String("driver", f.D.String()), zap.Error(f.Err))
	}
	return newProvider(opts, opener{
		pin: func(name string) line {
			if p := gpioreg.ByName(name); p != nil {
				return p
			}
			return nil
		},
		i2c: func(bus string) (i2cCloser, error) { return i2creg.Open(bus) },
		spi: openSPI,
	}, log), nil
}

func newProvider(opts Options, op opener, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{opts: opts, open: op, log: log, buses: map[string]bool{}}
}

func openSPI(port string, hz uint32, mode uint8) (spiConn, io.Closer, error) {
	p, err := spireg.Open(port)
	if err != nil {
		return nil, nil, err
	}
	c, err := p.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode(mode), 8)
	if err != nil {
		_ = p.Close()
		return nil, nil, err
	}
	return c, p, nil
}

func (p *Provider) Name() string { return "linux" }

// claimBus marks a named host bus busy; the returned func frees it.
func (p *Provider) claimBus(kind, name string) (func(), error) {
	key := kind + ":" + name
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buses[key] {
		return nil, &errcode.E{C: errcode.BusInUse, Op: "periph", Msg: key}
	}
	p.buses[key] = true
	return func() {
		p.mu.Lock()
		delete(p.buses, key)
		p.mu.Unlock()
	}, nil
}

// -----------------------------------------------------------------------------
// GPIO handle
// -----------------------------------------------------------------------------

type digital struct {
	l    line
	name string
	log  *zap.Logger
}

func (p *Provider) pin(bp board.Pin) (line, error) {
	l := p.open.pin(bp.Line)
	if l == nil {
		return nil, &errcode.E{C: errcode.UnknownPin, Op: "periph", Msg: fmt.Sprintf("%s (line %s)", bp.Name, bp.Line)}
	}
	return l, nil
}

func (p *Provider) OpenDigital(bp board.Pin) (hal.DigitalPin, error) {
	l, err := p.pin(bp)
	if err != nil {
		return nil, err
	}
	return &digital{l: l, name: bp.Name, log: p.log}, nil
}

func (d *digital) ConfigureInput(pull hal.Pull) error {
	gp := gpio.Float
	switch pull {
	case hal.PullUp:
		gp = gpio.PullUp
	case hal.PullDown:
		gp = gpio.PullDown
	}
	return d.l.In(gp, gpio.NoEdge)
}

func (d *digital) ConfigureOutput(initial bool) error {
	return d.l.Out(gpio.Level(initial))
}

func (d *digital) Set(level bool) {
	if err := d.l.Out(gpio.Level(level)); err != nil {
		d.log.Warn("gpio out failed", zap.String("pin", d.name), zap.Error(err))
	}
}

func (d *digital) Get() bool { return bool(d.l.Read()) }

// Close parks the line as a floating input.
func (d *digital) Close() error {
	if err := d.l.In(gpio.Float, gpio.NoEdge); err != nil {
		return err
	}
	return d.l.Halt()
}

// OpenAnalog always fails: Linux GPIO headers carry no ADC.
func (p *Provider) OpenAnalog(bp board.Pin) (hal.AnalogPin, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "periph", Msg: bp.Name + ": no ADC on this host"}
}

// -----------------------------------------------------------------------------
// Buses
// -----------------------------------------------------------------------------

type i2cBus struct {
	i2cCloser
	free func()
	once sync.Once
}

func (b *i2cBus) Close() error {
	var err error
	b.once.Do(func() {
		err = b.i2cCloser.Close()
		b.free()
	})
	return err
}

func (p *Provider) OpenI2C(sda, scl board.Pin) (hal.I2C, error) {
	free, err := p.claimBus("i2c", p.opts.I2CBus)
	if err != nil {
		return nil, err
	}
	bus, err := p.open.i2c(p.opts.I2CBus)
	if err != nil {
		free()
		return nil, err
	}
	p.log.Debug("i2c open", zap.String("bus", p.opts.I2CBus), zap.String("sda", sda.Line), zap.String("scl", scl.Line))
	return &i2cBus{i2cCloser: bus, free: free}, nil
}

type spiBus struct {
	c    spiConn
	port io.Closer
	free func()
	once sync.Once
}

func (b *spiBus) Tx(w, r []byte) error { return b.c.Tx(w, r) }

// Transfer clocks one byte out and returns the byte clocked in.
func (b *spiBus) Transfer(x byte) (byte, error) {
	var in [1]byte
	if err := b.c.Tx([]byte{x}, in[:]); err != nil {
		return 0, err
	}
	return in[0], nil
}

func (b *spiBus) Close() error {
	var err error
	b.once.Do(func() {
		err = b.port.Close()
		b.free()
	})
	return err
}

func (p *Provider) OpenSPI(sck, sdo, sdi board.Pin, cfg hal.SPIConfig) (hal.SPI, error) {
	if cfg.Mode > 3 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "periph", Msg: fmt.Sprintf("spi mode %d", cfg.Mode)}
	}
	free, err := p.claimBus("spi", p.opts.SPIPort)
	if err != nil {
		return nil, err
	}
	c, port, err := p.open.spi(p.opts.SPIPort, cfg.Hz, cfg.Mode)
	if err != nil {
		free()
		return nil, err
	}
	return &spiBus{c: c, port: port, free: free}, nil
}

func (p *Provider) OpenSerial(tx, rx board.Pin, baud uint32) (hal.SerialPort, error) {
	sp, err := serialport.Open(p.opts.SerialPort, baud)
	if err != nil {
		return nil, err
	}
	return sp, nil
}
