package tui

import (
	"io"
	"strings"
	"sync"
)

// BufferIO is a silent IO implementation that replays queued input lines and
// captures everything shown. Used by the one-shot run command and tests.
type BufferIO struct {
	mu      sync.Mutex
	inputs  []string
	buf     strings.Builder
	users   []string
	systems []string
	errors  []string
	dones   []string
	tokens  int
	cleared int
}

var (
	_ IO      = (*BufferIO)(nil)
	_ Clearer = (*BufferIO)(nil)
)

// NewBufferIO creates a BufferIO whose ReadInput returns inputs in order,
// then io.EOF.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs}
}

// Output returns all captured reply text.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Users returns the user messages shown.
func (b *BufferIO) Users() []string { return b.snapshot(&b.users) }

// Systems returns the system notices shown.
func (b *BufferIO) Systems() []string { return b.snapshot(&b.systems) }

// Errors returns the error messages shown.
func (b *BufferIO) Errors() []string { return b.snapshot(&b.errors) }

// Dones returns the fullText of every TextDone call.
func (b *BufferIO) Dones() []string { return b.snapshot(&b.dones) }

// Tokens returns the last token count set.
func (b *BufferIO) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Cleared returns how many times ClearScreen was called.
func (b *BufferIO) Cleared() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleared
}

func (b *BufferIO) snapshot(s *[]string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), (*s)...)
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	line := b.inputs[0]
	b.inputs = b.inputs[1:]
	return line, nil
}

func (b *BufferIO) UserMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = append(b.users, text)
}

func (b *BufferIO) ThinkingStart() {}

func (b *BufferIO) TextDelta(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(delta)
}

func (b *BufferIO) TextDone(fullText string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dones = append(b.dones, fullText)
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.systems = append(b.systems, text)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, msg)
}

func (b *BufferIO) SetTokens(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = n
}

func (b *BufferIO) ClearScreen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared++
}
