package probe

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"boardtest-go/errcode"
	"boardtest-go/hal"
	"boardtest-go/types"
)

const uartOwner = "uart"

// Printable ASCII range used for the loopback payload.
const (
	asciiMin = 0x21
	asciiMax = 0x7E
)

type UARTOptions struct {
	TX, RX      string
	Baud        uint32
	Length      int
	ReadTimeout time.Duration
}

func (o UARTOptions) norm() UARTOptions {
	o.TX = cmp.Or(o.TX, "TX")
	o.RX = cmp.Or(o.RX, "RX")
	o.Baud = cmp.Or(o.Baud, 9600)
	o.Length = cmp.Or(o.Length, 40)
	o.ReadTimeout = cmp.Or(o.ReadTimeout, time.Second)
	return o
}

// RunUART sends a random printable string from TX and expects it back on
// RX through an operator-fitted jumper.
func RunUART(ctx context.Context, env *Env, opt UARTOptions) types.Result {
	env = env.withDefaults()
	opt = opt.norm()
	if !env.Dir.HasAll(opt.TX, opt.RX) {
		env.Con.Println("No UART pins found")
		return types.NA()
	}
	pins := env.lookup(opt.TX, opt.RX)
	tested := names(pins)
	defer env.release(uartOwner)

	env.Log.Debug("probe start", zap.String("probe", uartOwner), zap.Strings("pins", tested), zap.Uint32("baud", opt.Baud))
	if err := env.Con.WaitEnter(ctx, "Connect a wire from TX to RX. Press enter to continue.\n"); err != nil {
		return types.Result{Verdict: types.Fail, Pins: tested}
	}

	port, err := env.Reg.ClaimSerial(uartOwner, pins[0], pins[1], opt.Baud)
	if err != nil {
		return env.acquireFailed(uartOwner, tested, err)
	}
	if err := port.Discard(); err != nil {
		env.Log.Warn("discard failed", zap.String("probe", uartOwner), zap.Error(err))
	}

	payload := make([]byte, opt.Length)
	for i := range payload {
		payload[i] = byte(asciiMin + env.Rand.IntN(asciiMax-asciiMin+1))
	}
	if _, err := port.Write(payload); err != nil {
		env.Log.Info("uart write failed", zap.String("probe", uartOwner), zap.Error(err))
		return env.finish(uartOwner, types.Result{Verdict: types.Fail, Pins: tested})
	}
	env.Con.Printf("Transmitting:\t%s\n", payload)

	got, err := readFull(ctx, port, len(payload), opt.ReadTimeout)
	if len(got) > 0 {
		env.Con.Printf("Received:\t%s\n", got)
	}
	if err != nil {
		env.Log.Info("uart read incomplete", zap.String("probe", uartOwner),
			zap.Int("want", len(payload)), zap.Int("got", len(got)), zap.Error(err))
	}
	ok := bytes.Equal(got, payload)
	if !ok && err == nil {
		merr := &errcode.E{C: errcode.Mismatch, Op: uartOwner, Msg: fmt.Sprintf("received %q, sent %q", got, payload)}
		env.Log.Info("loopback mismatch", zap.String("probe", uartOwner), zap.Error(merr))
	}
	return env.finish(uartOwner, types.Result{Verdict: types.VerdictOf(ok), Pins: tested})
}

// readFull reads n bytes or until timeout elapses. It returns what arrived.
func readFull(ctx context.Context, port hal.SerialPort, n int, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	buf := make([]byte, n)
	got := 0
	for got < n {
		k, err := port.RecvSomeContext(ctx, buf[got:])
		got += k
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = &errcode.E{C: errcode.ShortRead, Op: "uart read", Err: err}
			}
			return buf[:got], err
		}
	}
	return buf, nil
}

// UART binds RunUART to options.
type UART struct{ Opts UARTOptions }

func (UART) Name() string { return "UART" }
func (p UART) Run(ctx context.Context, env *Env) types.Result {
	return RunUART(ctx, env, p.Opts)
}
