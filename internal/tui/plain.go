package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// PlainIO implements IO using plain terminal output (fmt.Fprint / bufio.Scanner).
// It is used when TUI mode is disabled or stdout is not a terminal.
type PlainIO struct {
	scanner *bufio.Scanner
	out     io.Writer
	errOut  io.Writer
	tokens  int
}

var _ IO = (*PlainIO)(nil)

// NewPlainIO creates a PlainIO that reads from stdin and writes to stdout.
func NewPlainIO() *PlainIO {
	return newPlainIO(os.Stdin, os.Stdout, os.Stderr)
}

func newPlainIO(in io.Reader, out, errOut io.Writer) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{scanner: s, out: out, errOut: errOut}
}

func (p *PlainIO) ReadInput() (string, error) {
	fmt.Fprint(p.out, "\n> ")
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// Plain terminal: the user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	fmt.Fprintln(p.out) // blank line before the reply begins
}

func (p *PlainIO) TextDelta(delta string) {
	fmt.Fprint(p.out, delta)
}

func (p *PlainIO) TextDone(fullText string) {
	// Text is already rendered incrementally; just end the line.
	if fullText != "" {
		fmt.Fprintln(p.out)
	}
}

func (p *PlainIO) SystemMessage(text string) {
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	fmt.Fprintf(p.errOut, "error: %s\n", msg)
}

func (p *PlainIO) SetTokens(n int) {
	p.tokens = n
}

// Tokens returns the last value passed to SetTokens.
func (p *PlainIO) Tokens() int { return p.tokens }
