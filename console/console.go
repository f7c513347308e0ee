// Package console is the operator side of a board test: prompts go out as
// text lines and answers come back as lines. Only the literal "y" counts as
// yes.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"boardtest-go/types"
)

// Affirmative is the only answer treated as yes.
const Affirmative = "y"

// Console pairs an output writer with a LineSource.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	in    LineSource
	color bool

	pass, fail, na, title lipgloss.Style
}

// New returns a plain-text console.
func New(out io.Writer, in LineSource) *Console {
	c := &Console{out: out, in: in}
	c.pass = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	c.fail = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	c.na = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	c.title = lipgloss.NewStyle().Bold(true).Underline(true)
	return c
}

// SetColor enables ANSI styling of verdicts and headings.
func (c *Console) SetColor(on bool) {
	c.mu.Lock()
	c.color = on
	c.mu.Unlock()
}

func (c *Console) Println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, a...)
}

func (c *Console) Printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, a...)
}

// Title prints a section heading.
func (c *Console) Title(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.color {
		s = c.title.Render(s)
	}
	fmt.Fprintln(c.out, s)
}

// Verdict renders v, coloured when styling is on.
func (c *Console) Verdict(v types.Verdict) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.color {
		return string(v)
	}
	switch v {
	case types.Pass:
		return c.pass.Render(string(v))
	case types.Fail:
		return c.fail.Render(string(v))
	default:
		return c.na.Render(string(v))
	}
}

// Ask prints prompt and blocks for one line. Input closing yields io.EOF.
func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		c.mu.Lock()
		fmt.Fprint(c.out, prompt)
		c.mu.Unlock()
	}
	return c.in.ReadLine(ctx)
}

// WaitEnter prints prompt and waits for any line. EOF is not an error here:
// the test continues and the answer that follows decides the verdict.
func (c *Console) WaitEnter(ctx context.Context, prompt string) error {
	_, err := c.Ask(ctx, prompt)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Confirm asks a yes/no question. Anything but "y", including EOF, is no.
func (c *Console) Confirm(ctx context.Context, question string) bool {
	ans, err := c.Ask(ctx, question+" [y/n]\n")
	if err != nil {
		return false
	}
	return IsYes(ans)
}

// Poll checks for an answer without blocking. done is true when a line
// arrived or input is closed; a closed input yields an empty answer.
func (c *Console) Poll() (answer string, done bool) {
	line, ok, err := c.in.TryReadLine()
	if err != nil {
		return "", true
	}
	return line, ok
}

// IsYes reports whether an answer line is affirmative.
func IsYes(line string) bool {
	return strings.TrimRight(line, "\r\n") == Affirmative
}
