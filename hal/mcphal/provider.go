package mcphal

import (
	"strconv"
	"sync"

	"go.uber.org/zap"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/hal"
	"boardtest-go/hal/serialport"
)

// Options configures the bridge backend.
type Options struct {
	I2CBaud    uint32 // default 100 kHz
	SerialPort string // CDC tty of the bridge UART, e.g. /dev/ttyACM0
}

// Provider exposes one bridge to the registry. Lines are GP numbers "0".."3";
// the I²C pins and the UART are fixed-function.
type Provider struct {
	chip *Chip
	opts Options
	log  *zap.Logger

	mu  sync.Mutex
	i2c bool
}

// Ensure compile-time conformance.
var _ hal.Provider = (*Provider)(nil)

func New(chip *Chip, opts Options, log *zap.Logger) *Provider {
	if opts.I2CBaud == 0 {
		opts.I2CBaud = 100000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{chip: chip, opts: opts, log: log.Named("mcp2221a")}
}

func (p *Provider) Name() string { return "mcp2221a" }

// Close releases the USB device.
func (p *Provider) Close() error { return p.chip.Close() }

func gpOf(pin board.Pin) (byte, error) {
	n, err := strconv.Atoi(pin.Line)
	if err != nil || n < 0 || n >= gpCount {
		return 0, &errcode.E{C: errcode.UnknownPin, Op: "mcp2221a", Msg: pin.Name + " (line " + pin.Line + ")"}
	}
	return byte(n), nil
}

// -----------------------------------------------------------------------------
// GPIO handle
// -----------------------------------------------------------------------------

type gpio struct {
	chip *Chip
	gp   byte
	log  *zap.Logger
}

func (p *Provider) OpenDigital(pin board.Pin) (hal.DigitalPin, error) {
	gp, err := gpOf(pin)
	if err != nil {
		return nil, err
	}
	if err := p.chip.designate(gp, 0, modeGPIO, dirIn); err != nil {
		return nil, err
	}
	return &gpio{chip: p.chip, gp: gp, log: p.log}, nil
}

// ConfigureInput accepts only PullNone; the GP lines have no pull resistors.
func (g *gpio) ConfigureInput(pull hal.Pull) error {
	if pull != hal.PullNone {
		return &errcode.E{C: errcode.Unsupported, Op: "mcp2221a", Msg: "pull " + pull.String()}
	}
	return g.chip.designate(g.gp, 0, modeGPIO, dirIn)
}

func (g *gpio) ConfigureOutput(initial bool) error {
	var v byte
	if initial {
		v = 1
	}
	if err := g.chip.designate(g.gp, v, modeGPIO, dirOut); err != nil {
		return err
	}
	return g.chip.SetGPIO(g.gp, initial)
}

func (g *gpio) Set(level bool) {
	if err := g.chip.SetGPIO(g.gp, level); err != nil {
		g.log.Warn("gpio set failed", zap.Uint8("gp", g.gp), zap.Error(err))
	}
}

func (g *gpio) Get() bool {
	v, err := g.chip.GPIO(g.gp)
	if err != nil {
		g.log.Warn("gpio get failed", zap.Uint8("gp", g.gp), zap.Error(err))
	}
	return v
}

// Close returns the line to a GPIO input.
func (g *gpio) Close() error {
	return g.chip.designate(g.gp, 0, modeGPIO, dirIn)
}

// -----------------------------------------------------------------------------
// ADC handle
// -----------------------------------------------------------------------------

type adc struct {
	chip *Chip
	gp   byte
}

func (p *Provider) OpenAnalog(pin board.Pin) (hal.AnalogPin, error) {
	gp, err := gpOf(pin)
	if err != nil {
		return nil, err
	}
	if _, ok := adcChannel[gp]; !ok {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "mcp2221a", Msg: pin.Name + " has no ADC channel"}
	}
	if err := p.chip.designate(gp, 0, modeADC, dirIn); err != nil {
		return nil, err
	}
	return &adc{chip: p.chip, gp: gp}, nil
}

func (a *adc) Get() (uint16, error) { return a.chip.ADC(a.gp) }

func (a *adc) Close() error {
	return a.chip.designate(a.gp, 0, modeGPIO, dirIn)
}

// -----------------------------------------------------------------------------
// I²C handle
// -----------------------------------------------------------------------------

type i2cBus struct {
	p *Provider
}

func (p *Provider) OpenI2C(sda, scl board.Pin) (hal.I2C, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.i2c {
		return nil, &errcode.E{C: errcode.BusInUse, Op: "mcp2221a", Msg: "i2c"}
	}
	if err := p.chip.SetI2CBaud(p.opts.I2CBaud); err != nil {
		return nil, err
	}
	p.i2c = true
	return &i2cBus{p: p}, nil
}

func (b *i2cBus) Tx(addr uint16, w, r []byte) error { return b.p.chip.I2CTx(addr, w, r) }

func (b *i2cBus) Close() error {
	b.p.mu.Lock()
	b.p.i2c = false
	b.p.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------
// SPI and UART
// -----------------------------------------------------------------------------

func (p *Provider) OpenSPI(sck, sdo, sdi board.Pin, cfg hal.SPIConfig) (hal.SPI, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "mcp2221a", Msg: "no SPI master"}
}

func (p *Provider) OpenSerial(tx, rx board.Pin, baud uint32) (hal.SerialPort, error) {
	sp, err := serialport.Open(p.opts.SerialPort, baud)
	if err != nil {
		return nil, err
	}
	return sp, nil
}
