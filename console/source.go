package console

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"boardtest-go/x/timex"
)

// LineSource yields operator input one line at a time, without the line
// terminator.
type LineSource interface {
	// TryReadLine returns a complete line if one is ready. It never blocks.
	// ok is false when nothing is ready; err is io.EOF once input is closed.
	TryReadLine() (line string, ok bool, err error)
	// ReadLine blocks until a line arrives, input closes, or ctx is done.
	ReadLine(ctx context.Context) (string, error)
}

type lineMsg struct {
	line string
	err  error
}

// ReaderSource turns a blocking io.Reader into a LineSource. One goroutine
// reads lines into a channel; it exits when the reader returns an error.
type ReaderSource struct {
	ch   chan lineMsg
	mu   sync.Mutex
	err  error
	once sync.Once
	r    io.Reader
}

// NewReaderSource starts reading r lazily on first use.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{ch: make(chan lineMsg, 16), r: r}
}

func (s *ReaderSource) start() {
	s.once.Do(func() {
		go func() {
			sc := bufio.NewScanner(s.r)
			for sc.Scan() {
				s.ch <- lineMsg{line: strings.TrimRight(sc.Text(), "\r")}
			}
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			s.ch <- lineMsg{err: err}
			close(s.ch)
		}()
	})
}

func (s *ReaderSource) take(m lineMsg, ok bool) (string, error) {
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return "", s.err
	}
	if m.err != nil {
		s.mu.Lock()
		s.err = m.err
		s.mu.Unlock()
		return "", m.err
	}
	return m.line, nil
}

func (s *ReaderSource) TryReadLine() (string, bool, error) {
	s.start()
	select {
	case m, ok := <-s.ch:
		line, err := s.take(m, ok)
		if err != nil {
			return "", false, err
		}
		return line, true, nil
	default:
		return "", false, nil
	}
}

func (s *ReaderSource) ReadLine(ctx context.Context) (string, error) {
	s.start()
	select {
	case m, ok := <-s.ch:
		return s.take(m, ok)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ByteReader is a polled receive buffer such as a USB CDC or UART driver.
type ByteReader interface {
	Buffered() int
	ReadByte() (byte, error)
}

// PollSource assembles lines from a polled byte stream without a reader
// goroutine. Received bytes are echoed to Echo when set.
type PollSource struct {
	r     ByteReader
	clk   timex.Clock
	buf   []byte
	cr    bool
	Echo  io.Writer
	Idle  time.Duration
	Limit int
}

// NewPollSource reads from r and idles on clk between empty polls.
func NewPollSource(r ByteReader, clk timex.Clock) *PollSource {
	return &PollSource{r: r, clk: clk, Idle: 5 * time.Millisecond, Limit: 256}
}

func (s *PollSource) TryReadLine() (string, bool, error) {
	for s.r.Buffered() > 0 {
		b, err := s.r.ReadByte()
		if err != nil {
			return "", false, err
		}
		if s.Echo != nil {
			if b == '\r' {
				_, _ = s.Echo.Write([]byte("\r\n"))
			} else {
				_, _ = s.Echo.Write([]byte{b})
			}
		}
		switch b {
		case '\r', '\n':
			if b == '\n' && s.cr {
				s.cr = false
				continue
			}
			s.cr = b == '\r'
			line := string(s.buf)
			s.buf = s.buf[:0]
			return line, true, nil
		case 0x08, 0x7F:
			s.cr = false
			if len(s.buf) > 0 {
				s.buf = s.buf[:len(s.buf)-1]
			}
		default:
			s.cr = false
			if len(s.buf) < s.Limit {
				s.buf = append(s.buf, b)
			}
		}
	}
	return "", false, nil
}

func (s *PollSource) ReadLine(ctx context.Context) (string, error) {
	for {
		line, ok, err := s.TryReadLine()
		if err != nil {
			return "", err
		}
		if ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s.clk.Sleep(s.Idle)
	}
}
