// Package hal defines the peripheral driver shapes the probes consume and the
// registry that hands out exclusively owned handles to them.
package hal

import (
	"context"

	"tinygo.org/x/drivers"

	"boardtest-go/board"
)

// ---- GPIO ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// DigitalPin is one line driven or sampled as a logic level.
type DigitalPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
}

// ---- ADC ----

// AnalogPin samples a line. Values are scaled to the full 16-bit range
// regardless of the converter's native resolution.
type AnalogPin interface {
	Get() (uint16, error)
}

// ---- Buses ----

// I2C uses the TinyGo drivers.I2C shape so that MCU and host backends
// present the same transaction call.
type I2C = drivers.I2C

// SPI uses the TinyGo drivers.SPI shape.
type SPI = drivers.SPI

// SPIConfig carries operating parameters for a claimed SPI bus.
type SPIConfig struct {
	Hz   uint32
	Mode uint8 // CPOL<<1 | CPHA
}

// SerialPort is a UART channel. RecvSomeContext blocks until at least one
// byte is available or ctx is done.
type SerialPort interface {
	Write(p []byte) (int, error)
	Discard() error
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

// ---- Backend ----

// Provider opens hardware for the registry. Returned handles may implement
// io.Closer; the registry closes them on release.
type Provider interface {
	Name() string
	OpenDigital(p board.Pin) (DigitalPin, error)
	OpenAnalog(p board.Pin) (AnalogPin, error)
	OpenI2C(sda, scl board.Pin) (I2C, error)
	OpenSPI(sck, sdo, sdi board.Pin, cfg SPIConfig) (SPI, error)
	OpenSerial(tx, rx board.Pin, baud uint32) (SerialPort, error)
}
