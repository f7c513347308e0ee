package board

import (
	"strconv"
	"strings"
)

// Capability is a bit set of what a line can be opened as.
type Capability uint16

const (
	CapDigital Capability = 1 << iota
	CapAnalog
	CapI2C
	CapUART
	CapSPI
)

// Has reports whether all bits of want are set.
func (c Capability) Has(want Capability) bool { return c&want == want }

var capNames = []struct {
	c    Capability
	name string
}{
	{CapDigital, "digital"},
	{CapAnalog, "analog"},
	{CapI2C, "i2c"},
	{CapUART, "uart"},
	{CapSPI, "spi"},
}

func (c Capability) String() string {
	var parts []string
	for _, n := range capNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseCapability maps a config token ("digital", "analog", ...) to a bit.
func ParseCapability(s string) (Capability, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range capNames {
		if n.name == s {
			return n.c, true
		}
	}
	return 0, false
}

// Family classifies numbered header pins.
type Family uint8

const (
	FamilyNone    Family = iota
	FamilyAnalog         // A<n>
	FamilyDigital        // D<n>
)

// Pin is one named signal on a board. Several names may alias one Line.
type Pin struct {
	Name   string
	Line   string // backend address, e.g. "25", "GPIO17", "G1"
	Caps   Capability
	Family Family
	Index  int // n for A<n>/D<n>, -1 otherwise
}

// classify resolves the numbered family of a pin name once.
// Only the exact forms A<digits> and D<digits> qualify.
func classify(name string) (Family, int) {
	if len(name) < 2 {
		return FamilyNone, -1
	}
	var f Family
	switch name[0] {
	case 'A':
		f = FamilyAnalog
	case 'D':
		f = FamilyDigital
	default:
		return FamilyNone, -1
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 || name[1] == '+' || name[1] == '-' {
		return FamilyNone, -1
	}
	return f, n
}
