package console

import (
	"context"
	"io"
	"sync"
)

type scripted struct {
	line  string
	after int // unsuccessful polls before the line is visible
}

// Script is a LineSource fed from a fixed list of answers. Once the list is
// exhausted it reports io.EOF.
type Script struct {
	mu    sync.Mutex
	lines []scripted
	polls int
}

// NewScript returns a script that answers with lines, in order.
func NewScript(lines ...string) *Script {
	s := &Script{}
	for _, l := range lines {
		s.Push(l)
	}
	return s
}

// Push appends an answer visible immediately.
func (s *Script) Push(line string) { s.PushAfter(0, line) }

// PushAfter appends an answer that TryReadLine only returns after n empty
// polls. ReadLine ignores the delay.
func (s *Script) PushAfter(n int, line string) {
	s.mu.Lock()
	s.lines = append(s.lines, scripted{line: line, after: n})
	s.mu.Unlock()
}

func (s *Script) TryReadLine() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if len(s.lines) == 0 {
		return "", false, io.EOF
	}
	if s.lines[0].after > 0 {
		s.lines[0].after--
		return "", false, nil
	}
	l := s.lines[0].line
	s.lines = s.lines[1:]
	return l, true, nil
}

func (s *Script) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	l := s.lines[0].line
	s.lines = s.lines[1:]
	return l, nil
}

// Remaining is the number of answers not yet consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Polls counts TryReadLine calls.
func (s *Script) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}
