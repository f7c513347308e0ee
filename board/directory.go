package board

import (
	"boardtest-go/errcode"
)

// Directory is the ordered set of pins exposed by one board.
type Directory struct {
	name   string
	pins   []Pin
	byName map[string]int
}

// New builds a directory. Names must be unique; an empty Line defaults to
// the pin name and zero Caps default to CapDigital.
func New(name string, pins []Pin) (*Directory, error) {
	d := &Directory{
		name:   name,
		pins:   make([]Pin, 0, len(pins)),
		byName: make(map[string]int, len(pins)),
	}
	for _, p := range pins {
		if p.Name == "" {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "board.New", Msg: "empty pin name"}
		}
		if _, dup := d.byName[p.Name]; dup {
			return nil, &errcode.E{C: errcode.DuplicatePin, Op: "board.New", Msg: p.Name}
		}
		if p.Line == "" {
			p.Line = p.Name
		}
		if p.Caps == 0 {
			p.Caps = CapDigital
		}
		p.Family, p.Index = classify(p.Name)
		d.byName[p.Name] = len(d.pins)
		d.pins = append(d.pins, p)
	}
	return d, nil
}

// FromNames builds a directory of digital pins from bare names. Duplicate
// names are folded.
func FromNames(names ...string) *Directory {
	seen := make(map[string]bool, len(names))
	pins := make([]Pin, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		pins = append(pins, Pin{Name: n})
	}
	d, _ := New("anonymous", pins)
	return d
}

func (d *Directory) Name() string { return d.name }
func (d *Directory) Len() int     { return len(d.pins) }

// Names returns every pin name in directory order.
func (d *Directory) Names() []string {
	out := make([]string, len(d.pins))
	for i, p := range d.pins {
		out[i] = p.Name
	}
	return out
}

// Pins returns a copy of every pin in directory order.
func (d *Directory) Pins() []Pin { return append([]Pin(nil), d.pins...) }

func (d *Directory) Lookup(name string) (Pin, bool) {
	i, ok := d.byName[name]
	if !ok {
		return Pin{}, false
	}
	return d.pins[i], true
}

func (d *Directory) Has(name string) bool {
	_, ok := d.byName[name]
	return ok
}

// HasAll reports whether every name is present.
func (d *Directory) HasAll(names ...string) bool {
	for _, n := range names {
		if !d.Has(n) {
			return false
		}
	}
	return true
}

// Present returns the given names that exist, in argument order, without
// duplicates.
func (d *Directory) Present(names ...string) []string {
	var out []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if d.Has(n) && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// PresentInOrder is Present but in directory order.
func (d *Directory) PresentInOrder(names ...string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []string
	for _, p := range d.pins {
		if want[p.Name] {
			out = append(out, p.Name)
		}
	}
	return out
}

// Family returns the pins of family f in directory order.
func (d *Directory) Family(f Family) []Pin {
	var out []Pin
	for _, p := range d.pins {
		if f != FamilyNone && p.Family == f {
			out = append(out, p)
		}
	}
	return out
}
