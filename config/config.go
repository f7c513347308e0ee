// Package config loads the host-side board and test description from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/probe"
	"boardtest-go/suite"
)

// Backends understood by the CLI.
const (
	BackendSim      = "sim"
	BackendLinux    = "linux"
	BackendMCP2221A = "mcp2221a"
)

// File is the top-level YAML document.
type File struct {
	Backend string `yaml:"backend"`
	Board   string `yaml:"board"`
	Pins    []Pin  `yaml:"pins,omitempty"`
	Serial  Serial `yaml:"serial,omitempty"`
	I2C     Bus    `yaml:"i2c,omitempty"`
	SPI     Bus    `yaml:"spi,omitempty"`
	MCP     MCP    `yaml:"mcp2221a,omitempty"`
	Tests   Tests  `yaml:"tests,omitempty"`
	Log     Log    `yaml:"log,omitempty"`
}

// Pin describes one board signal. Caps defaults to [digital].
type Pin struct {
	Name string   `yaml:"name"`
	Line string   `yaml:"line,omitempty"`
	Caps []string `yaml:"caps,omitempty"`
}

type Serial struct {
	Port string `yaml:"port,omitempty"`
}

// Bus names a host bus, e.g. "1" for /dev/i2c-1 or "/dev/spidev0.0".
type Bus struct {
	Name string `yaml:"name,omitempty"`
}

// MCP selects one attached MCP2221A by enumeration index.
type MCP struct {
	Index   uint8  `yaml:"index,omitempty"`
	I2CBaud uint32 `yaml:"i2c_baud,omitempty"`
}

// Log raises the CLI's log level; --verbose overrides it.
type Log struct {
	Level string `yaml:"level,omitempty"`
}

// Tests holds per-protocol overrides. Zero values take protocol defaults.
type Tests struct {
	LED struct {
		Names []string      `yaml:"names,omitempty"`
		Mode  string        `yaml:"mode,omitempty"`
		On    time.Duration `yaml:"on,omitempty"`
		Off   time.Duration `yaml:"off,omitempty"`
	} `yaml:"led,omitempty"`
	GPIO struct {
		Pins []string      `yaml:"pins,omitempty"`
		On   time.Duration `yaml:"on,omitempty"`
		Off  time.Duration `yaml:"off,omitempty"`
	} `yaml:"gpio,omitempty"`
	Voltage struct {
		Names []string `yaml:"names,omitempty"`
	} `yaml:"voltage,omitempty"`
	UART struct {
		TX          string        `yaml:"tx,omitempty"`
		RX          string        `yaml:"rx,omitempty"`
		Baud        uint32        `yaml:"baud,omitempty"`
		Length      int           `yaml:"length,omitempty"`
		ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
	} `yaml:"uart,omitempty"`
	SPI struct {
		MOSI    string        `yaml:"mosi,omitempty"`
		MISO    string        `yaml:"miso,omitempty"`
		SCK     string        `yaml:"sck,omitempty"`
		CS      string        `yaml:"cs,omitempty"`
		Hz      uint32        `yaml:"hz,omitempty"`
		Mode    uint8         `yaml:"mode,omitempty"`
		Cycles  int           `yaml:"cycles,omitempty"`
		Timeout time.Duration `yaml:"timeout,omitempty"`
	} `yaml:"spi,omitempty"`
	I2C struct {
		SDA          string        `yaml:"sda,omitempty"`
		SCL          string        `yaml:"scl,omitempty"`
		Addr         uint16        `yaml:"addr,omitempty"`
		Cycles       int           `yaml:"cycles,omitempty"`
		WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
	} `yaml:"i2c,omitempty"`
	SDCD struct {
		Pin string `yaml:"pin,omitempty"`
	} `yaml:"sdcd,omitempty"`
}

// Default is the simulated Feather with protocol defaults.
func Default() *File {
	return &File{Backend: BackendSim, Board: "feather"}
}

// Load reads and validates a YAML file. Unknown keys are rejected.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a YAML document on top of Default.
func Parse(b []byte) (*File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks cross-field constraints.
func (f *File) Validate() error {
	switch f.Backend {
	case BackendSim, BackendLinux, BackendMCP2221A:
	default:
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "unknown backend " + f.Backend}
	}
	if len(f.Pins) == 0 && f.Board == "" {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "need a board name or a pin list"}
	}
	if _, err := probe.ParseLEDMode(f.Tests.LED.Mode); err != nil {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Err: err}
	}
	if f.Tests.SPI.Mode > 3 {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "spi mode must be 0..3"}
	}
	_, err := f.Directory()
	return err
}

// Directory builds the pin directory: an explicit pin list wins over the
// built-in board name.
func (f *File) Directory() (*board.Directory, error) {
	if len(f.Pins) == 0 {
		return board.Builtin(f.Board)
	}
	pins := make([]board.Pin, 0, len(f.Pins))
	for _, p := range f.Pins {
		var caps board.Capability
		for _, c := range p.Caps {
			bit, ok := board.ParseCapability(c)
			if !ok {
				return nil, &errcode.E{C: errcode.InvalidCap, Op: "config", Msg: p.Name + ": " + c}
			}
			caps |= bit
		}
		pins = append(pins, board.Pin{Name: p.Name, Line: p.Line, Caps: caps})
	}
	name := f.Board
	if name == "" {
		name = "custom"
	}
	return board.New(name, pins)
}

// SuiteOptions maps the tests section onto protocol options.
func (f *File) SuiteOptions() suite.Options {
	t := &f.Tests
	mode, _ := probe.ParseLEDMode(t.LED.Mode)
	var o suite.Options
	o.LED = probe.LEDOptions{Names: t.LED.Names, Mode: mode, Toggle: probe.Toggle{On: t.LED.On, Off: t.LED.Off}}
	o.GPIO = probe.GPIOOptions{Pins: t.GPIO.Pins, Toggle: probe.Toggle{On: t.GPIO.On, Off: t.GPIO.Off}}
	o.Voltage = probe.VoltageOptions{Names: t.Voltage.Names}
	o.UART = probe.UARTOptions{TX: t.UART.TX, RX: t.UART.RX, Baud: t.UART.Baud, Length: t.UART.Length, ReadTimeout: t.UART.ReadTimeout}
	o.SPI = probe.SPIOptions{
		MOSI: t.SPI.MOSI, MISO: t.SPI.MISO, SCK: t.SPI.SCK, CS: t.SPI.CS,
		Hz: t.SPI.Hz, Mode: t.SPI.Mode, Cycles: t.SPI.Cycles, Timeout: t.SPI.Timeout,
	}
	o.I2C = probe.I2COptions{SDA: t.I2C.SDA, SCL: t.I2C.SCL, Addr: t.I2C.Addr, Cycles: t.I2C.Cycles, WriteTimeout: t.I2C.WriteTimeout}
	o.SDCD = probe.SDCDOptions{Pin: t.SDCD.Pin}
	return o
}

// FromDirectory describes d as a pin list, e.g. to seed a new config file.
func FromDirectory(d *board.Directory) []Pin {
	out := make([]Pin, 0, d.Len())
	for _, p := range d.Pins() {
		out = append(out, Pin{Name: p.Name, Line: p.Line, Caps: strings.Split(p.Caps.String(), "|")})
	}
	return out
}

// Marshal encodes f as YAML.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
