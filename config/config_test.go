package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardtest-go/board"
	"boardtest-go/errcode"
	"boardtest-go/probe"
)

const sample = `
backend: linux
board: rpi-header
serial:
  port: /dev/ttyAMA0
i2c:
  name: "1"
spi:
  name: /dev/spidev0.0
pins:
  - {name: LED, line: GPIO17}
  - {name: D5, line: GPIO5}
  - {name: SDA, line: GPIO2, caps: [digital, i2c]}
  - {name: SCL, line: GPIO3, caps: [digital, i2c]}
  - {name: TX, line: GPIO14, caps: [uart]}
  - {name: RX, line: GPIO15, caps: [uart]}
tests:
  led:
    mode: cycle
    on: 100ms
  uart:
    baud: 115200
    read_timeout: 2s
  i2c:
    addr: 0x51
    cycles: 4
`

func TestParse_Sample(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, BackendLinux, f.Backend)
	assert.Equal(t, "/dev/ttyAMA0", f.Serial.Port)
	assert.Equal(t, "1", f.I2C.Name)

	d, err := f.Directory()
	require.NoError(t, err)
	assert.Equal(t, "rpi-header", d.Name())
	assert.Equal(t, []string{"LED", "D5", "SDA", "SCL", "TX", "RX"}, d.Names())
	sda, _ := d.Lookup("SDA")
	assert.Equal(t, "GPIO2", sda.Line)
	assert.True(t, sda.Caps.Has(board.CapI2C|board.CapDigital))
	led, _ := d.Lookup("LED")
	assert.Equal(t, board.CapDigital, led.Caps)

	o := f.SuiteOptions()
	assert.Equal(t, probe.LEDCycle, o.LED.Mode)
	assert.Equal(t, 100*time.Millisecond, o.LED.Toggle.On)
	assert.Equal(t, uint32(115200), o.UART.Baud)
	assert.Equal(t, 2*time.Second, o.UART.ReadTimeout)
	assert.Equal(t, uint16(0x51), o.I2C.Addr)
	assert.Equal(t, 4, o.I2C.Cycles)
}

func TestParse_EmptyIsDefault(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), f); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	d, err := f.Directory()
	require.NoError(t, err)
	assert.Equal(t, "feather", d.Name())
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]struct {
		doc  string
		code errcode.Code
	}{
		"backend":   {"backend: serialport\n", errcode.InvalidParams},
		"board":     {"board: nope\n", errcode.UnknownBoard},
		"cap":       {"pins: [{name: X, caps: [pwm]}]\n", errcode.InvalidCap},
		"duplicate": {"pins: [{name: X}, {name: X}]\n", errcode.DuplicatePin},
		"led mode":  {"tests: {led: {mode: disco}}\n", errcode.InvalidParams},
		"spi mode":  {"tests: {spi: {mode: 4}}\n", errcode.InvalidParams},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Equal(t, tc.code, errcode.Of(err), "%v", err)
		})
	}

	_, err := Parse([]byte("bogus_key: 1\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestRoundTripThroughDirectory(t *testing.T) {
	src := board.Pico()
	f := Default()
	f.Board = "pico-copy"
	f.Pins = FromDirectory(src)

	b, err := f.Marshal()
	require.NoError(t, err)
	back, err := Parse(b)
	require.NoError(t, err)

	d, err := back.Directory()
	require.NoError(t, err)
	if diff := cmp.Diff(src.Pins(), d.Pins()); diff != "" {
		t.Fatalf("pins changed (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "board.yaml")
	require.NoError(t, os.WriteFile(p, []byte("backend: mcp2221a\nboard: mcp2221a\nmcp2221a: {index: 1}\n"), 0o644))

	f, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, BackendMCP2221A, f.Backend)
	assert.Equal(t, uint8(1), f.MCP.Index)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
