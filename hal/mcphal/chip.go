// Package mcphal drives an MCP2221A USB bridge over its HID command
// interface: four GP lines (three with ADC channels) and an I²C master. The
// bridge's UART enumerates separately as a CDC tty and is opened through
// serialport.
package mcphal

import (
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"boardtest-go/errcode"
	"boardtest-go/x/mathx"
)

// USB identifiers assigned to the MCP2221A.
const (
	VID = 0x04D8
	PID = 0x00DD
)

const (
	msgSize = 64
	clkHz   = 12000000

	gpCount = 4
	adcBits = 10
)

const (
	cmdStatus        byte = 0x10 // also "set parameters"
	cmdI2CWrite      byte = 0x90
	cmdI2CRead       byte = 0x91
	cmdI2CWriteNoStp byte = 0x94
	cmdI2CReadRep    byte = 0x93
	cmdI2CGetData    byte = 0x40
	cmdGPIOSet       byte = 0x50
	cmdGPIOGet       byte = 0x51
	cmdSRAMSet       byte = 0x60
	cmdSRAMGet       byte = 0x61
)

// GP designations and directions as stored in SRAM.
const (
	modeGPIO byte = 0x00
	modeADC  byte = 0x02

	dirOut byte = 0x00
	dirIn  byte = 0x01

	gpInvalid byte = 0xEE
)

// I²C engine states reported in status byte 8 and get-data byte 2.
const (
	i2cIdle          byte = 0x00
	i2cAddrNACK      byte = 0x25
	i2cPartial       byte = 0x41
	i2cWritingNoStop byte = 0x45
	i2cReadError     byte = 0x7F

	i2cChunk   = 60
	i2cRetries = 50
)

var i2cTimeoutStates = map[byte]bool{0x12: true, 0x17: true, 0x62: true, 0x23: true, 0x44: true, 0x52: true}

// adcChannel maps a GP line to its ADC channel.
var adcChannel = map[byte]int{1: 0, 2: 1, 3: 2}

// Device is the HID report channel. *hid.Device satisfies it.
type Device interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Chip serialises command/response exchanges with one bridge.
type Chip struct {
	mu  sync.Mutex
	dev Device

	// Pause spaces I²C state polls.
	Pause func(time.Duration)
}

// NewChip wraps an already opened HID device.
func NewChip(dev Device) *Chip {
	return &Chip{dev: dev, Pause: time.Sleep}
}

// OpenUSB opens the idx'th attached bridge.
func OpenUSB(idx int) (*Chip, error) {
	infos := hid.Enumerate(VID, PID)
	if idx < 0 || idx >= len(infos) {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "mcp2221a.open",
			Msg: fmt.Sprintf("device index %d out of range (%d attached)", idx, len(infos))}
	}
	dev, err := infos[idx].Open()
	if err != nil {
		return nil, &errcode.E{C: errcode.Error, Op: "mcp2221a.open", Err: err}
	}
	return NewChip(dev), nil
}

func (c *Chip) Close() error { return c.dev.Close() }

// xfer writes one command report and reads the response without
// interpreting its status byte.
func (c *Chip) xfer(msg []byte) ([]byte, error) {
	if _, err := c.dev.Write(msg); err != nil {
		return nil, fmt.Errorf("mcp2221a: write cmd %#02x: %w", msg[0], err)
	}
	rsp := make([]byte, msgSize)
	n, err := c.dev.Read(rsp)
	if err != nil {
		return nil, fmt.Errorf("mcp2221a: read cmd %#02x: %w", msg[0], err)
	}
	if n < msgSize {
		return rsp, &errcode.E{C: errcode.ShortRead, Op: "mcp2221a", Msg: fmt.Sprintf("cmd %#02x: %d of %d bytes", msg[0], n, msgSize)}
	}
	if rsp[0] != msg[0] {
		return rsp, fmt.Errorf("mcp2221a: response %#02x to cmd %#02x", rsp[0], msg[0])
	}
	return rsp, nil
}

// send is xfer plus a check of the common status byte.
func (c *Chip) send(msg []byte) ([]byte, error) {
	rsp, err := c.xfer(msg)
	if err != nil {
		return rsp, err
	}
	if rsp[1] != 0 {
		return rsp, fmt.Errorf("mcp2221a: cmd %#02x failed (%#02x)", msg[0], rsp[1])
	}
	return rsp, nil
}

func command(cmd byte) []byte {
	m := make([]byte, msgSize)
	m[0] = cmd
	return m
}

// ---- GPIO ----

func checkGP(gp byte) error {
	if gp >= gpCount {
		return &errcode.E{C: errcode.UnknownPin, Op: "mcp2221a", Msg: fmt.Sprintf("GP%d", gp)}
	}
	return nil
}

// designate rewrites one GP setting in SRAM, preserving the other three.
func (c *Chip) designate(gp, val, mode, dir byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, err := c.send(command(cmdSRAMGet))
	if err != nil {
		return err
	}
	m := command(cmdSRAMSet)
	m[7] = 0xFF
	copy(m[8:12], cur[22:26])
	m[8+gp] = val<<4 | dir<<3 | mode
	_, err = c.send(m)
	return err
}

// SetGPIO drives gp as an output.
func (c *Chip) SetGPIO(gp byte, level bool) error {
	if err := checkGP(gp); err != nil {
		return err
	}
	m := command(cmdGPIOSet)
	i := 2 + 4*int(gp)
	m[i] = 0xFF
	if level {
		m[i+1] = 1
	}
	m[i+2] = 0xFF
	m[i+3] = dirOut
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.send(m)
	return err
}

// GPIO samples gp.
func (c *Chip) GPIO(gp byte) (bool, error) {
	if err := checkGP(gp); err != nil {
		return false, err
	}
	c.mu.Lock()
	rsp, err := c.send(command(cmdGPIOGet))
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	v := rsp[2+2*int(gp)]
	if v == gpInvalid {
		return false, &errcode.E{C: errcode.Unsupported, Op: "mcp2221a", Msg: fmt.Sprintf("GP%d not in GPIO mode", gp)}
	}
	return v != 0, nil
}

// ---- ADC ----

func (c *Chip) status() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(command(cmdStatus))
}

// ADC reads gp's channel scaled to 16 bits.
func (c *Chip) ADC(gp byte) (uint16, error) {
	ch, ok := adcChannel[gp]
	if !ok {
		return 0, &errcode.E{C: errcode.Unsupported, Op: "mcp2221a", Msg: fmt.Sprintf("GP%d has no ADC", gp)}
	}
	rsp, err := c.status()
	if err != nil {
		return 0, err
	}
	raw := uint16(rsp[51+2*ch])<<8 | uint16(rsp[50+2*ch])
	return mathx.Widen(raw, adcBits), nil
}

// ---- I²C ----

// SetI2CBaud programs the bus clock divider.
func (c *Chip) SetI2CBaud(baud uint32) error {
	if !mathx.Between(baud, clkHz/258, clkHz/3) {
		return &errcode.E{C: errcode.InvalidParams, Op: "mcp2221a", Msg: fmt.Sprintf("i2c baud %d", baud)}
	}
	m := command(cmdStatus)
	m[3] = 0x20
	m[4] = byte(mathx.DivRound(uint32(clkHz), baud) - 3)
	c.mu.Lock()
	defer c.mu.Unlock()
	rsp, err := c.send(m)
	if err != nil {
		return err
	}
	if rsp[3] == 0x21 {
		return &errcode.E{C: errcode.Busy, Op: "mcp2221a", Msg: "i2c transfer in progress"}
	}
	return nil
}

func i2cStateErr(state byte, addr uint8) error {
	switch {
	case state == i2cAddrNACK:
		return &errcode.E{C: errcode.NACK, Op: "mcp2221a.i2c", Msg: fmt.Sprintf("addr %#02x", addr)}
	case i2cTimeoutStates[state]:
		return &errcode.E{C: errcode.Timeout, Op: "mcp2221a.i2c", Msg: fmt.Sprintf("state %#02x", state)}
	}
	return nil
}

// prepare clears a stale engine state before a new transfer. A NACK left
// behind by the previous transfer is cancelled rather than reported.
func (c *Chip) prepare(allowNoStop bool) error {
	rsp, err := c.send(command(cmdStatus))
	if err != nil {
		return err
	}
	st := rsp[8]
	if st == i2cIdle || (allowNoStop && st == i2cWritingNoStop) {
		return nil
	}
	m := command(cmdStatus)
	m[2] = 0x10
	if _, err := c.send(m); err != nil {
		return err
	}
	c.Pause(300 * time.Microsecond)
	return nil
}

// i2cWrite transmits data to addr, ending with STOP unless stop is false.
func (c *Chip) i2cWrite(addr uint8, data []byte, stop bool) error {
	if len(data) == 0 {
		return &errcode.E{C: errcode.Unsupported, Op: "mcp2221a.i2c", Msg: "zero-length write"}
	}
	if err := c.prepare(false); err != nil {
		return err
	}
	cmd := cmdI2CWrite
	if !stop {
		cmd = cmdI2CWriteNoStp
	}
	for pos := 0; pos < len(data); {
		n := min(len(data)-pos, i2cChunk)
		m := command(cmd)
		m[1] = byte(len(data))
		m[2] = byte(len(data) >> 8)
		m[3] = addr << 1
		copy(m[4:], data[pos:pos+n])
		sent := false
		for try := 0; try < i2cRetries; try++ {
			rsp, err := c.xfer(m)
			if err != nil {
				return err
			}
			if rsp[1] == 0 {
				sent = true
				break
			}
			if e := i2cStateErr(rsp[2], addr); e != nil {
				return e
			}
			c.Pause(300 * time.Microsecond)
		}
		if !sent {
			return &errcode.E{C: errcode.Timeout, Op: "mcp2221a.i2c", Msg: "write not accepted"}
		}
		pos += n
	}
	for try := 0; try < i2cRetries; try++ {
		rsp, err := c.send(command(cmdStatus))
		if err != nil {
			return err
		}
		st := rsp[8]
		if st == i2cIdle || (!stop && st == i2cWritingNoStop) {
			return nil
		}
		if e := i2cStateErr(st, addr); e != nil {
			c.cancelLocked()
			return e
		}
		c.Pause(300 * time.Microsecond)
	}
	return &errcode.E{C: errcode.Timeout, Op: "mcp2221a.i2c", Msg: "write did not complete"}
}

// i2cRead fills dst from addr, with a repeated START when rep is set.
func (c *Chip) i2cRead(addr uint8, dst []byte, rep bool) error {
	if err := c.prepare(rep); err != nil {
		return err
	}
	cmd := cmdI2CRead
	if rep {
		cmd = cmdI2CReadRep
	}
	m := command(cmd)
	m[1] = byte(len(dst))
	m[2] = byte(len(dst) >> 8)
	m[3] = addr<<1 | 1
	if rsp, err := c.xfer(m); err != nil {
		return err
	} else if rsp[1] != 0 {
		if e := i2cStateErr(rsp[2], addr); e != nil {
			return e
		}
		return fmt.Errorf("mcp2221a: i2c read rejected (%#02x)", rsp[2])
	}

	for pos := 0; pos < len(dst); {
		got := false
		for try := 0; try < i2cRetries && !got; try++ {
			rsp, err := c.xfer(command(cmdI2CGetData))
			if err != nil {
				return err
			}
			if e := i2cStateErr(rsp[2], addr); e != nil {
				c.cancelLocked()
				return e
			}
			if rsp[1] != 0 || rsp[3] == i2cReadError || rsp[3] == 0 {
				c.Pause(300 * time.Microsecond)
				continue
			}
			n := min(int(rsp[3]), len(dst)-pos, i2cChunk)
			copy(dst[pos:pos+n], rsp[4:4+n])
			pos += n
			got = true
		}
		if !got {
			return &errcode.E{C: errcode.Timeout, Op: "mcp2221a.i2c", Msg: "read data not ready"}
		}
	}
	return nil
}

func (c *Chip) cancelLocked() {
	m := command(cmdStatus)
	m[2] = 0x10
	_, _ = c.send(m)
}

// I2CTx performs a write, a read, or a write followed by a repeated-start
// read, matching the drivers.I2C transaction shape.
func (c *Chip) I2CTx(addr uint16, w, r []byte) error {
	a := uint8(addr)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case len(r) == 0:
		return c.i2cWrite(a, w, true)
	case len(w) == 0:
		return c.i2cRead(a, r, false)
	}
	if err := c.i2cWrite(a, w, false); err != nil {
		return err
	}
	return c.i2cRead(a, r, true)
}
