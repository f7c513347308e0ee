package probe

import (
	"cmp"
	"context"
	"time"

	"go.uber.org/zap"

	"boardtest-go/errcode"
	"boardtest-go/hal"
	"boardtest-go/types"
	"boardtest-go/x/timex"
)

const i2cOwner = "i2c"

// I2COptions configures the EEPROM round trip. Zero fields take the
// defaults of an AT24HC04B at 0x50.
type I2COptions struct {
	SDA, SCL     string
	Addr         uint16
	Cycles       int
	MaxMemAddr   uint8
	WriteTimeout time.Duration
	PollInterval time.Duration
}

func (o I2COptions) norm() I2COptions {
	o.SDA = cmp.Or(o.SDA, "SDA")
	o.SCL = cmp.Or(o.SCL, "SCL")
	o.Addr = cmp.Or(o.Addr, 0x50)
	o.Cycles = cmp.Or(o.Cycles, 10)
	o.MaxMemAddr = cmp.Or(o.MaxMemAddr, 255)
	o.WriteTimeout = cmp.Or(o.WriteTimeout, time.Second)
	o.PollInterval = cmp.Or(o.PollInterval, time.Millisecond)
	return o
}

// RunI2C writes random bytes to random EEPROM addresses and reads them
// back. The first failure or mismatch ends the run.
func RunI2C(ctx context.Context, env *Env, opt I2COptions) types.Result {
	env = env.withDefaults()
	opt = opt.norm()
	if !env.Dir.HasAll(opt.SDA, opt.SCL) {
		env.Con.Println("No I2C pins found")
		return types.NA()
	}
	pins := env.lookup(opt.SDA, opt.SCL)
	tested := names(pins)
	defer env.release(i2cOwner)

	env.Log.Debug("probe start", zap.String("probe", i2cOwner), zap.Strings("pins", tested))
	env.Con.Println("Connect a Microchip AT24HC04B EEPROM I2C chip. " +
		"Ensure address pins are connected to ground.")
	env.Con.Println("Press enter to continue.")
	if err := env.Con.WaitEnter(ctx, ""); err != nil {
		return types.Result{Verdict: types.Fail, Pins: tested}
	}

	bus, err := env.Reg.ClaimI2C(i2cOwner, pins[0], pins[1])
	if err != nil {
		return env.acquireFailed(i2cOwner, tested, err)
	}
	for !bus.TryLock() {
		if ctx.Err() != nil {
			return types.Result{Verdict: types.Fail, Pins: tested}
		}
		env.Clock.Sleep(opt.PollInterval)
	}
	defer bus.Unlock()

	ee := eeprom{bus: bus, addr: opt.Addr, clk: env.Clock, timeout: opt.WriteTimeout, poll: opt.PollInterval}
	for i := 0; i < opt.Cycles; i++ {
		addr := uint8(env.Rand.IntN(int(opt.MaxMemAddr) + 1))
		data := uint8(env.Rand.IntN(256))
		env.Con.Printf("Address:\t%#x\n", addr)
		env.Con.Printf("Writing:\t%#x\n", data)

		if err := ee.writeByte(addr, data); err != nil {
			env.Log.Info("eeprom write failed", zap.String("probe", i2cOwner), zap.Int("cycle", i), zap.Error(err))
			env.Con.Println("FAIL: I2C could not communicate")
			return env.finish(i2cOwner, types.Result{Verdict: types.Fail, Pins: tested})
		}
		got, err := ee.readByte(ctx, addr)
		if err != nil {
			env.Log.Info("eeprom read failed", zap.String("probe", i2cOwner), zap.Int("cycle", i), zap.Error(err))
			env.Con.Println("FAIL: I2C could not communicate")
			return env.finish(i2cOwner, types.Result{Verdict: types.Fail, Pins: tested})
		}
		env.Con.Printf("Read:\t\t%#x\n\n", got)
		if got != data {
			env.mismatch(i2cOwner, i, addr, data, got)
			env.Con.Println("FAIL: Data does not match")
			return env.finish(i2cOwner, types.Result{Verdict: types.Fail, Pins: tested})
		}
	}
	return env.finish(i2cOwner, types.Result{Verdict: types.Pass, Pins: tested})
}

// eeprom speaks the one-byte-address protocol of small AT24 parts.
type eeprom struct {
	bus     hal.I2C
	addr    uint16
	clk     timex.Clock
	timeout time.Duration
	poll    time.Duration
}

func (e eeprom) writeByte(mem, data uint8) error {
	return e.bus.Tx(e.addr, []byte{mem, data}, nil)
}

// wait sets the address pointer to mem, retrying while the part NACKs
// during its internal write cycle.
func (e eeprom) wait(ctx context.Context, mem uint8) error {
	start := e.clk.Now()
	for {
		err := e.bus.Tx(e.addr, []byte{mem}, nil)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timex.Deadline(e.clk, start, e.timeout) {
			return &errcode.E{C: errcode.Timeout, Op: "eeprom wait", Err: err}
		}
		e.clk.Sleep(e.poll)
	}
}

func (e eeprom) readByte(ctx context.Context, mem uint8) (uint8, error) {
	if err := e.wait(ctx, mem); err != nil {
		return 0, err
	}
	var b [1]byte
	if err := e.bus.Tx(e.addr, []byte{mem}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// I2C binds RunI2C to options.
type I2C struct{ Opts I2COptions }

func (I2C) Name() string { return "I2C" }
func (p I2C) Run(ctx context.Context, env *Env) types.Result {
	return RunI2C(ctx, env, p.Opts)
}
