//go:build rp2040 || rp2350

// Command boardtest-pico runs the board test suite on a Raspberry Pi Pico
// with the operator attached over the USB serial console.
package main

import (
	"context"
	"machine"
	"math/rand/v2"
	"time"

	"boardtest-go/board"
	"boardtest-go/console"
	"boardtest-go/hal"
	"boardtest-go/hal/rp2hal"
	"boardtest-go/probe"
	"boardtest-go/suite"
	"boardtest-go/x/timex"
)

func seed() uint64 {
	hi, err1 := machine.GetRNG()
	lo, err2 := machine.GetRNG()
	if err1 != nil || err2 != nil {
		return uint64(time.Now().UnixNano())
	}
	return uint64(hi)<<32 | uint64(lo)
}

func main() {
	// Give the host time to open the CDC port.
	time.Sleep(3 * time.Second)

	in := console.NewPollSource(machine.Serial, timex.System)
	in.Echo = machine.Serial
	con := console.New(machine.Serial, in)
	reg := hal.NewRegistry(rp2hal.New(), nil)

	s := seed()
	env := &probe.Env{
		Dir:   board.Pico(),
		Reg:   reg,
		Con:   con,
		Clock: timex.System,
		Rand:  rand.New(rand.NewPCG(s, s>>1|1)),
	}

	for {
		suite.New(suite.Default(suite.Options{})...).Run(context.Background(), env)
		_ = reg.Close()
		_ = con.WaitEnter(context.Background(), "Press enter to run the suite again.\n")
	}
}
