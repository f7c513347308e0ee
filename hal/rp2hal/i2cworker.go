package rp2hal

import (
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"boardtest-go/errcode"
)

type i2cReq struct {
	addr uint16
	w, r []byte
	done chan error // buffered(1); worker replies best-effort
}

// i2cOwner serialises transactions on one controller in its own goroutine.
type i2cOwner struct {
	hw      drivers.I2C
	reqs    chan i2cReq
	quit    chan struct{}
	once    sync.Once
	onClose func()
}

func newI2COwner(hw drivers.I2C, onClose func()) *i2cOwner {
	o := &i2cOwner{hw: hw, reqs: make(chan i2cReq, 4), quit: make(chan struct{}), onClose: onClose}
	go o.loop()
	return o
}

func (o *i2cOwner) loop() {
	for {
		select {
		case req := <-o.reqs:
			err := o.hw.Tx(req.addr, req.w, req.r)
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

// driversI2C posts requests to the bus worker with a per-call deadline.
// The worker only touches private copies of w and r, so a caller that gave
// up on a timed-out transaction may reuse its buffers at once.
type driversI2C struct {
	o       *i2cOwner
	timeout time.Duration
}

// Ensure compile-time conformance with drivers.I2C
var _ drivers.I2C = (*driversI2C)(nil)

func (d *driversI2C) Tx(addr uint16, w, r []byte) error {
	req := i2cReq{
		addr: addr,
		w:    append([]byte(nil), w...),
		r:    make([]byte, len(r)),
		done: make(chan error, 1),
	}
	t := time.NewTimer(d.timeout)
	defer t.Stop()
	select {
	case d.o.reqs <- req:
	case <-t.C:
		return errcode.Busy
	}
	select {
	case err := <-req.done:
		if err == nil {
			copy(r, req.r)
		}
		return err
	case <-t.C:
		return errcode.Timeout
	}
}

func (d *driversI2C) Close() error {
	d.o.once.Do(func() {
		close(d.o.quit)
		if d.o.onClose != nil {
			d.o.onClose()
		}
	})
	return nil
}
