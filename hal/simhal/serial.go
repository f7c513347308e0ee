package simhal

import (
	"context"
	"sync"
)

// Loopback is the wire between TX and RX. When Bridged, written bytes are
// delivered to the receive buffer after the configured faults are applied.
type Loopback struct {
	mu      sync.Mutex
	rx      []byte
	notify  chan struct{}
	written []byte

	Bridged bool
	// Drop discards that many bytes from the tail of every write.
	Drop int
	// Corrupt flips the low bit of the first delivered byte.
	Corrupt bool
}

// Inject places bytes in the receive buffer as line noise would.
func (l *Loopback) Inject(b []byte) {
	l.mu.Lock()
	l.rx = append(l.rx, b...)
	l.wakeLocked()
	l.mu.Unlock()
}

// Written returns every byte transmitted so far.
func (l *Loopback) Written() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.written...)
}

// Pending is the number of bytes waiting to be received.
func (l *Loopback) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rx)
}

func (l *Loopback) wakeLocked() {
	if l.notify != nil {
		close(l.notify)
		l.notify = nil
	}
}

func (l *Loopback) write(p []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.written = append(l.written, p...)
	if !l.Bridged {
		return
	}
	out := append([]byte(nil), p...)
	if l.Drop > 0 {
		out = out[:max(0, len(out)-l.Drop)]
	}
	if l.Corrupt && len(out) > 0 {
		out[0] ^= 0x01
	}
	l.rx = append(l.rx, out...)
	l.wakeLocked()
}

func (l *Loopback) recv(ctx context.Context, p []byte) (int, error) {
	for {
		l.mu.Lock()
		if len(l.rx) > 0 || len(p) == 0 {
			n := copy(p, l.rx)
			l.rx = l.rx[n:]
			l.mu.Unlock()
			return n, nil
		}
		if l.notify == nil {
			l.notify = make(chan struct{})
		}
		ch := l.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ch:
		}
	}
}

func (l *Loopback) discard() {
	l.mu.Lock()
	l.rx = nil
	l.mu.Unlock()
}

type serialPort struct {
	sim  *Sim
	lb   *Loopback
	once sync.Once
}

func (s *serialPort) Write(p []byte) (int, error) {
	s.lb.write(p)
	return len(p), nil
}

func (s *serialPort) Discard() error {
	s.lb.discard()
	return nil
}

func (s *serialPort) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	return s.lb.recv(ctx, p)
}

func (s *serialPort) Close() error {
	s.once.Do(s.sim.closed)
	return nil
}
