package simhal

import (
	"sync"

	"boardtest-go/hal"
)

// Pin is a simulated line. As an input it reads queued levels first, then
// the external drive, then whatever the pull resolves to.
type Pin struct {
	mu      sync.RWMutex
	line    string
	level   bool
	out     bool
	pull    hal.Pull
	driven  *bool
	queue   []bool
	edges   int
	onRead  func()
	history []bool
}

func (p *Pin) Line() string { return p.line }

func (p *Pin) ConfigureInput(pull hal.Pull) error {
	p.mu.Lock()
	p.out = false
	p.pull = pull
	p.mu.Unlock()
	return nil
}

func (p *Pin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.out = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *Pin) Set(level bool) {
	p.mu.Lock()
	if p.out && p.level != level {
		p.edges++
		p.history = append(p.history, level)
	}
	p.level = level
	p.mu.Unlock()
}

func (p *Pin) Get() bool {
	p.mu.Lock()
	hook := p.onRead
	p.mu.Unlock()
	if hook != nil {
		hook()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.out {
		return p.level
	}
	if len(p.queue) > 0 {
		v := p.queue[0]
		p.queue = p.queue[1:]
		return v
	}
	if p.driven != nil {
		return *p.driven
	}
	return p.pull == hal.PullUp
}

// Drive forces the level an input reads, as an external circuit would.
func (p *Pin) Drive(level bool) {
	p.mu.Lock()
	p.driven = &level
	p.mu.Unlock()
}

// Float removes any external drive.
func (p *Pin) Float() {
	p.mu.Lock()
	p.driven = nil
	p.mu.Unlock()
}

// Queue appends levels returned by successive input reads.
func (p *Pin) Queue(levels ...bool) {
	p.mu.Lock()
	p.queue = append(p.queue, levels...)
	p.mu.Unlock()
}

// OnRead installs a hook run before every Get.
func (p *Pin) OnRead(fn func()) {
	p.mu.Lock()
	p.onRead = fn
	p.mu.Unlock()
}

// Level is the current output latch.
func (p *Pin) Level() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

func (p *Pin) IsOutput() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.out
}

func (p *Pin) Pull() hal.Pull {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pull
}

// Edges counts output level changes since the pin was created.
func (p *Pin) Edges() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.edges
}

// History lists the levels driven at each edge.
func (p *Pin) History() []bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]bool(nil), p.history...)
}

func (p *Pin) release() {
	p.mu.Lock()
	p.out = false
	p.level = false
	p.pull = hal.PullNone
	p.mu.Unlock()
}
