package hal

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"boardtest-go/board"
	"boardtest-go/errcode"
)

// Registry hands out peripheral handles. Every handle is owned by one owner
// ID and keyed by the lines it occupies; a line can be held by one claim at
// a time. Release closes every handle an owner holds.
type Registry struct {
	mu    sync.Mutex
	prov  Provider
	log   *zap.Logger
	lines map[string]string  // line -> owner
	held  map[string][]claim // owner -> claims in acquisition order
}

type claim struct {
	kind  string
	lines []string
	h     any
}

// NewRegistry wraps a backend. A nil logger is replaced by a no-op logger.
func NewRegistry(p Provider, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		prov:  p,
		log:   log.Named("hal"),
		lines: make(map[string]string),
		held:  make(map[string][]claim),
	}
}

// Provider returns the backend this registry wraps.
func (r *Registry) Provider() Provider { return r.prov }

// caller holds lock
func (r *Registry) reserve(owner, kind string, need board.Capability, pins ...board.Pin) ([]string, error) {
	lines := make([]string, 0, len(pins))
	seen := make(map[string]bool, len(pins))
	for _, p := range pins {
		if p.Name == "" {
			return nil, &errcode.E{C: errcode.UnknownPin, Op: "claim " + kind}
		}
		if !p.Caps.Has(need) {
			return nil, &errcode.E{C: errcode.Unsupported, Op: "claim " + kind, Msg: p.Name + " is " + p.Caps.String()}
		}
		if seen[p.Line] {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "claim " + kind, Msg: "line " + p.Line + " used twice"}
		}
		seen[p.Line] = true
		if cur, taken := r.lines[p.Line]; taken {
			return nil, &errcode.E{C: errcode.PinInUse, Op: "claim " + kind, Msg: p.Name + " held by " + cur}
		}
		lines = append(lines, p.Line)
	}
	return lines, nil
}

// caller holds lock
func (r *Registry) commit(owner, kind string, lines []string, h any) {
	for _, l := range lines {
		r.lines[l] = owner
	}
	r.held[owner] = append(r.held[owner], claim{kind: kind, lines: lines, h: h})
	r.log.Debug("claim", zap.String("owner", owner), zap.String("kind", kind), zap.Strings("lines", lines))
}

func openErr(kind string, err error) error {
	if _, ok := err.(interface{ Code() errcode.Code }); ok {
		return err
	}
	if _, ok := err.(errcode.Code); ok {
		return err
	}
	return errcode.Wrap(errcode.Error, "open "+kind, err)
}

// ClaimDigital opens p as a digital line.
func (r *Registry) ClaimDigital(owner string, p board.Pin) (DigitalPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines, err := r.reserve(owner, "digital", board.CapDigital, p)
	if err != nil {
		return nil, err
	}
	h, err := r.prov.OpenDigital(p)
	if err != nil {
		return nil, openErr("digital", err)
	}
	r.commit(owner, "digital", lines, h)
	return h, nil
}

// ClaimAnalog opens p as an ADC input.
func (r *Registry) ClaimAnalog(owner string, p board.Pin) (AnalogPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines, err := r.reserve(owner, "analog", board.CapAnalog, p)
	if err != nil {
		return nil, err
	}
	h, err := r.prov.OpenAnalog(p)
	if err != nil {
		return nil, openErr("analog", err)
	}
	r.commit(owner, "analog", lines, h)
	return h, nil
}

// ClaimI2C opens the bus on sda/scl. The caller must TryLock the returned
// bus before issuing transactions.
func (r *Registry) ClaimI2C(owner string, sda, scl board.Pin) (*I2CBus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines, err := r.reserve(owner, "i2c", board.CapI2C, sda, scl)
	if err != nil {
		return nil, err
	}
	raw, err := r.prov.OpenI2C(sda, scl)
	if err != nil {
		return nil, openErr("i2c", err)
	}
	b := newI2CBus(raw)
	r.commit(owner, "i2c", lines, i2cHandle{b: b, raw: raw})
	return b, nil
}

// ClaimSPI opens an SPI bus on sck/sdo/sdi.
func (r *Registry) ClaimSPI(owner string, sck, sdo, sdi board.Pin, cfg SPIConfig) (SPI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines, err := r.reserve(owner, "spi", board.CapSPI, sck, sdo, sdi)
	if err != nil {
		return nil, err
	}
	h, err := r.prov.OpenSPI(sck, sdo, sdi, cfg)
	if err != nil {
		return nil, openErr("spi", err)
	}
	r.commit(owner, "spi", lines, h)
	return h, nil
}

// ClaimSerial opens a UART on tx/rx at baud.
func (r *Registry) ClaimSerial(owner string, tx, rx board.Pin, baud uint32) (SerialPort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines, err := r.reserve(owner, "uart", board.CapUART, tx, rx)
	if err != nil {
		return nil, err
	}
	h, err := r.prov.OpenSerial(tx, rx, baud)
	if err != nil {
		return nil, openErr("uart", err)
	}
	r.commit(owner, "uart", lines, h)
	return h, nil
}

// i2cHandle closes the raw bus and drops any lock left held.
type i2cHandle struct {
	b   *I2CBus
	raw I2C
}

func (h i2cHandle) Close() error {
	h.b.Unlock()
	if c, ok := h.raw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Release closes every handle held by owner, newest first, and frees their
// lines. Close errors are joined; lines are freed regardless.
func (r *Registry) Release(owner string) error {
	r.mu.Lock()
	claims := r.held[owner]
	delete(r.held, owner)
	for _, c := range claims {
		for _, l := range c.lines {
			if r.lines[l] == owner {
				delete(r.lines, l)
			}
		}
	}
	r.mu.Unlock()

	var errs []error
	for i := len(claims) - 1; i >= 0; i-- {
		c := claims[i]
		if cl, ok := c.h.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.log.Debug("release", zap.String("owner", owner), zap.String("kind", c.kind), zap.Strings("lines", c.lines))
	}
	return errors.Join(errs...)
}

// ReleaseLine closes the single claim of owner covering line.
func (r *Registry) ReleaseLine(owner, line string) error {
	r.mu.Lock()
	claims := r.held[owner]
	idx := -1
	for i, c := range claims {
		for _, l := range c.lines {
			if l == line {
				idx = i
			}
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return nil
	}
	c := claims[idx]
	r.held[owner] = append(claims[:idx:idx], claims[idx+1:]...)
	if len(r.held[owner]) == 0 {
		delete(r.held, owner)
	}
	for _, l := range c.lines {
		delete(r.lines, l)
	}
	r.mu.Unlock()

	r.log.Debug("release", zap.String("owner", owner), zap.String("kind", c.kind), zap.Strings("lines", c.lines))
	if cl, ok := c.h.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Owner reports who holds line.
func (r *Registry) Owner(line string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.lines[line]
	return o, ok
}

// Held returns the lines owner holds, in claim order.
func (r *Registry) Held(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.held[owner] {
		out = append(out, c.lines...)
	}
	return out
}

// InUse returns the number of lines currently held by anyone.
func (r *Registry) InUse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Close releases every owner and closes the backend when it supports it.
func (r *Registry) Close() error {
	r.mu.Lock()
	owners := make([]string, 0, len(r.held))
	for o := range r.held {
		owners = append(owners, o)
	}
	r.mu.Unlock()
	var errs []error
	for _, o := range owners {
		if err := r.Release(o); err != nil {
			errs = append(errs, err)
		}
	}
	if c, ok := r.prov.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
