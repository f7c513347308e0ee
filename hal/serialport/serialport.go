// Package serialport adapts go.bug.st/serial ports to hal.SerialPort for the
// host backends.
package serialport

import (
	"context"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"boardtest-go/errcode"
	"boardtest-go/hal"
)

// Poll bounds each blocking read so that context cancellation is observed.
const Poll = 20 * time.Millisecond

// conn is the subset of serial.Port the adapter needs.
type conn interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// Port is an open host serial device.
type Port struct {
	name string
	c    conn
	once sync.Once
	err  error
}

// Ensure compile-time conformance.
var _ hal.SerialPort = (*Port)(nil)

// Open opens name at baud, 8N1.
func Open(name string, baud uint32) (*Port, error) {
	if name == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "serial.open", Msg: "no port configured"}
	}
	if baud == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "serial.open", Msg: "baud must be positive"}
	}
	c, err := serial.Open(name, &serial.Mode{
		BaudRate: int(baud),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &errcode.E{C: errcode.Error, Op: "serial.open", Msg: name, Err: err}
	}
	return wrap(name, c)
}

func wrap(name string, c conn) (*Port, error) {
	if err := c.SetReadTimeout(Poll); err != nil {
		_ = c.Close()
		return nil, &errcode.E{C: errcode.Error, Op: "serial.open", Msg: name, Err: err}
	}
	return &Port{name: name, c: c}, nil
}

func (p *Port) Name() string { return p.name }

func (p *Port) Write(b []byte) (int, error) { return p.c.Write(b) }

// Discard drops anything already received.
func (p *Port) Discard() error { return p.c.ResetInputBuffer() }

// RecvSomeContext returns once at least one byte arrived or ctx is done.
// The underlying read times out every Poll and returns zero bytes.
func (p *Port) RecvSomeContext(ctx context.Context, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := p.c.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (p *Port) Close() error {
	p.once.Do(func() { p.err = p.c.Close() })
	return p.err
}

// List returns the serial devices visible to the host.
func List() ([]string, error) {
	return serial.GetPortsList()
}
