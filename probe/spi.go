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

const spiOwner = "spi"

// Microchip 25AA040A instructions.
const (
	spiWRITE = 0x02
	spiREAD  = 0x03
	spiRDSR  = 0x05
	spiWREN  = 0x06

	spiWIP = 1 << 0
)

type SPIOptions struct {
	MOSI, MISO, SCK, CS string
	Hz                  uint32
	Mode                uint8
	Cycles              int
	MaxMemAddr          uint8
	Timeout             time.Duration
}

func (o SPIOptions) norm() SPIOptions {
	o.MOSI = cmp.Or(o.MOSI, "MOSI")
	o.MISO = cmp.Or(o.MISO, "MISO")
	o.SCK = cmp.Or(o.SCK, "SCK")
	o.CS = cmp.Or(o.CS, "D2")
	o.Hz = cmp.Or(o.Hz, 100_000)
	o.Cycles = cmp.Or(o.Cycles, 10)
	o.MaxMemAddr = cmp.Or(o.MaxMemAddr, 255)
	o.Timeout = cmp.Or(o.Timeout, time.Second)
	return o
}

// RunSPI writes random bytes to a 25AA040A and reads them back.
func RunSPI(ctx context.Context, env *Env, opt SPIOptions) types.Result {
	env = env.withDefaults()
	opt = opt.norm()
	bus := env.Dir.Present(opt.MOSI, opt.MISO, opt.SCK)
	if len(bus) == 0 || !env.Dir.Has(opt.CS) {
		env.Con.Println("No SPI pins found")
		return types.NA()
	}
	tested := env.Dir.Present(opt.MOSI, opt.MISO, opt.SCK, opt.CS)
	defer env.release(spiOwner)

	env.Log.Debug("probe start", zap.String("probe", spiOwner), zap.Strings("pins", tested))
	env.Con.Println("Connect a Microchip 25AA040A EEPROM SPI chip.")
	env.Con.Printf("Connect %s to the CS pin on the 25AA040.\n", opt.CS)
	if err := env.Con.WaitEnter(ctx, "Press enter to continue.\n"); err != nil {
		return types.Result{Verdict: types.Fail, Pins: tested}
	}

	if len(bus) < 3 {
		err := &errcode.E{C: errcode.UnknownPin, Op: "spi", Msg: "bus needs MOSI, MISO and SCK"}
		return env.acquireFailed(spiOwner, tested, err)
	}
	pins := env.lookup(opt.CS, opt.SCK, opt.MOSI, opt.MISO)
	cs, err := env.Reg.ClaimDigital(spiOwner, pins[0])
	if err == nil {
		err = cs.ConfigureOutput(true)
	}
	if err != nil {
		return env.acquireFailed(spiOwner, tested, err)
	}
	conn, err := env.Reg.ClaimSPI(spiOwner, pins[1], pins[2], pins[3], hal.SPIConfig{Hz: opt.Hz, Mode: opt.Mode})
	if err != nil {
		return env.acquireFailed(spiOwner, tested, err)
	}

	ee := spiEEPROM{bus: conn, cs: cs, clk: env.Clock, timeout: opt.Timeout}
	for i := 0; i < opt.Cycles; i++ {
		addr := uint8(env.Rand.IntN(int(opt.MaxMemAddr) + 1))
		data := uint8(env.Rand.IntN(256))
		env.Con.Printf("Address:\t%#x\n", addr)
		env.Con.Printf("Writing:\t%#x\n", data)

		if err := ee.writeByte(ctx, addr, data); err != nil {
			env.Log.Info("eeprom write failed", zap.String("probe", spiOwner), zap.Int("cycle", i), zap.Error(err))
			env.Con.Println("FAIL: SPI could not communicate")
			return env.finish(spiOwner, types.Result{Verdict: types.Fail, Pins: tested})
		}
		got, err := ee.readByte(ctx, addr)
		if err != nil {
			env.Log.Info("eeprom read failed", zap.String("probe", spiOwner), zap.Int("cycle", i), zap.Error(err))
			env.Con.Println("FAIL: SPI could not communicate")
			return env.finish(spiOwner, types.Result{Verdict: types.Fail, Pins: tested})
		}
		env.Con.Printf("Read:\t\t%#x\n\n", got)
		if got != data {
			env.mismatch(spiOwner, i, addr, data, got)
			env.Con.Println("FAIL: Data does not match")
			return env.finish(spiOwner, types.Result{Verdict: types.Fail, Pins: tested})
		}
	}
	return env.finish(spiOwner, types.Result{Verdict: types.Pass, Pins: tested})
}

// spiEEPROM frames 25AA040A instructions with a software chip select.
type spiEEPROM struct {
	bus     hal.SPI
	cs      hal.DigitalPin
	clk     timex.Clock
	timeout time.Duration
}

func (e spiEEPROM) frame(w, r []byte) error {
	e.cs.Set(false)
	defer e.cs.Set(true)
	return e.bus.Tx(w, r)
}

// wait polls the status register until the write-in-progress bit clears.
func (e spiEEPROM) wait(ctx context.Context) error {
	start := e.clk.Now()
	var st [2]byte
	for !timex.Deadline(e.clk, start, e.timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.frame([]byte{spiRDSR, 0}, st[:]); err != nil {
			return err
		}
		if st[1]&spiWIP == 0 {
			return nil
		}
		e.clk.Sleep(time.Millisecond)
	}
	return &errcode.E{C: errcode.Timeout, Op: "eeprom wait", Msg: "write in progress"}
}

func (e spiEEPROM) writeByte(ctx context.Context, mem, data uint8) error {
	if err := e.wait(ctx); err != nil {
		return err
	}
	if err := e.frame([]byte{spiWREN}, nil); err != nil {
		return err
	}
	return e.frame([]byte{spiWRITE, mem, data}, nil)
}

func (e spiEEPROM) readByte(ctx context.Context, mem uint8) (uint8, error) {
	if err := e.wait(ctx); err != nil {
		return 0, err
	}
	var r [3]byte
	if err := e.frame([]byte{spiREAD, mem, 0}, r[:]); err != nil {
		return 0, err
	}
	return r[2], nil
}

// SPI binds RunSPI to options.
type SPI struct{ Opts SPIOptions }

func (SPI) Name() string { return "SPI" }
func (p SPI) Run(ctx context.Context, env *Env) types.Result {
	return RunSPI(ctx, env, p.Opts)
}
