package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]error{
		"busy":        Busy,
		"unsupported": Unsupported,
		"timeout":     Timeout,
		"unknown_pin": UnknownPin,
		"pin_in_use":  PinInUse,
		"unknown_bus": UnknownBus,
		"bus_in_use":  BusInUse,
		"nack":        NACK,
		"mismatch":    Mismatch,
		"short_read":  ShortRead,
	}
	for want, e := range cases {
		if e == nil || e.Error() != want {
			t.Fatalf("code %q mismatch: got %#v", want, e)
		}
	}
}

func TestOfWalksChain(t *testing.T) {
	if got := Of(nil); got != OK {
		t.Fatalf("Of(nil) = %q", got)
	}
	if got := Of(fmt.Errorf("claim: %w", PinInUse)); got != PinInUse {
		t.Fatalf("wrapped code = %q", got)
	}
	// The outer E wins over a coded cause.
	e := Wrap(NACK, "i2c.write", Timeout)
	if got := Of(fmt.Errorf("cycle 3: %w", e)); got != NACK {
		t.Fatalf("E code = %q", got)
	}
	if got := Of(errors.New("boom")); got != Error {
		t.Fatalf("plain error = %q", got)
	}
}

func TestEError(t *testing.T) {
	e := &E{C: Mismatch, Op: "uart", Msg: "got 39 bytes"}
	if e.Error() != "uart: mismatch: got 39 bytes" {
		t.Fatalf("unexpected: %q", e.Error())
	}
	if !Is(e, Mismatch) {
		t.Fatal("Is should match")
	}
}
