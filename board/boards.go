package board

import (
	"sort"
	"strconv"

	"boardtest-go/errcode"
)

// Built-in board tables. A table describes what the board exposes (names,
// lines, capabilities). It must not include operating parameters such as
// bus clock rates; those belong to the probes and the config file.

const (
	capIO  = CapDigital
	capAIN = CapDigital | CapAnalog
	capI2C = CapDigital | CapI2C
	capSER = CapDigital | CapUART
	capSPI = CapDigital | CapSPI
)

// Feather is a Feather-style layout used by the simulated backend.
func Feather() *Directory {
	pins := []Pin{
		{Name: "A0", Caps: capAIN}, {Name: "A1", Caps: capAIN}, {Name: "A2", Caps: capAIN},
		{Name: "A3", Caps: capAIN}, {Name: "A4", Caps: capAIN}, {Name: "A5", Caps: capAIN},
		{Name: "D2", Caps: capIO}, {Name: "D5", Caps: capIO}, {Name: "D6", Caps: capIO},
		{Name: "D9", Caps: capIO}, {Name: "D10", Caps: capIO}, {Name: "D11", Caps: capIO},
		{Name: "D12", Caps: capIO}, {Name: "D13", Caps: capIO},
		{Name: "LED", Line: "D13", Caps: capIO},
		{Name: "SDA", Caps: capI2C}, {Name: "SCL", Caps: capI2C},
		{Name: "TX", Caps: capSER}, {Name: "RX", Caps: capSER},
		{Name: "SCK", Caps: capSPI}, {Name: "MOSI", Caps: capSPI}, {Name: "MISO", Caps: capSPI},
		{Name: "SD_CD", Caps: capIO},
		{Name: "VOLTAGE_MONITOR", Caps: CapAnalog},
		{Name: "NEOPIXEL", Caps: capIO},
	}
	d, err := New("feather", pins)
	if err != nil {
		panic(err) // static table
	}
	return d
}

// Pico is the Raspberry Pi Pico layout. Lines are RP2040 GPIO numbers.
func Pico() *Directory {
	gp := func(n int) string { return strconv.Itoa(n) }
	pins := []Pin{
		{Name: "TX", Line: gp(0), Caps: capSER},
		{Name: "RX", Line: gp(1), Caps: capSER},
		{Name: "D2", Line: gp(2), Caps: capIO},
		{Name: "D3", Line: gp(3), Caps: capIO},
		{Name: "SDA", Line: gp(4), Caps: capI2C},
		{Name: "SCL", Line: gp(5), Caps: capI2C},
	}
	for n := 6; n <= 15; n++ {
		pins = append(pins, Pin{Name: "D" + gp(n), Line: gp(n), Caps: capIO})
	}
	pins = append(pins,
		Pin{Name: "MISO", Line: gp(16), Caps: capSPI},
		Pin{Name: "SCK", Line: gp(18), Caps: capSPI},
		Pin{Name: "MOSI", Line: gp(19), Caps: capSPI},
		Pin{Name: "SD_CD", Line: gp(22), Caps: capIO},
		Pin{Name: "LED", Line: gp(25), Caps: capIO},
		Pin{Name: "A0", Line: gp(26), Caps: capAIN},
		Pin{Name: "A1", Line: gp(27), Caps: capAIN},
		Pin{Name: "A2", Line: gp(28), Caps: capAIN},
		Pin{Name: "VOLTAGE_MONITOR", Line: gp(29), Caps: CapAnalog},
	)
	d, err := New("pico", pins)
	if err != nil {
		panic(err)
	}
	return d
}

// MCP2221A is the USB bridge layout: four GP lines (G1..G3 carry ADC
// channels) plus the dedicated I²C pins.
func MCP2221A() *Directory {
	pins := []Pin{
		{Name: "D0", Line: "0", Caps: capIO},
		{Name: "A1", Line: "1", Caps: capAIN},
		{Name: "A2", Line: "2", Caps: capAIN},
		{Name: "A3", Line: "3", Caps: capAIN},
		{Name: "SDA", Line: "sda", Caps: capI2C},
		{Name: "SCL", Line: "scl", Caps: capI2C},
		{Name: "TX", Line: "utx", Caps: CapUART},
		{Name: "RX", Line: "urx", Caps: CapUART},
	}
	d, err := New("mcp2221a", pins)
	if err != nil {
		panic(err)
	}
	return d
}

var builtin = map[string]func() *Directory{
	"feather":  Feather,
	"sim":      Feather,
	"pico":     Pico,
	"mcp2221a": MCP2221A,
}

// Builtin returns a named built-in table.
func Builtin(name string) (*Directory, error) {
	f, ok := builtin[name]
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownBoard, Op: "board.Builtin", Msg: name}
	}
	return f(), nil
}

// BuiltinNames lists the built-in table names, sorted.
func BuiltinNames() []string {
	out := make([]string, 0, len(builtin))
	for k := range builtin {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
