package tui

import (
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// TuiIO implements the IO interface by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type TuiIO struct {
	program *tea.Program
	inputCh chan inputResult
	done    chan struct{}
	once    sync.Once

	mu    sync.Mutex
	abort func() bool
}

var (
	_ IO      = (*TuiIO)(nil)
	_ Clearer = (*TuiIO)(nil)
	_ Aborter = (*TuiIO)(nil)
)

func (t *TuiIO) ReadInput() (string, error) {
	// Tell the TUI to activate the text input
	t.program.Send(readInputMsg{})

	// Block until the user submits or the TUI exits
	select {
	case res := <-t.inputCh:
		if res.err != nil {
			return "", io.EOF
		}
		return res.text, nil
	case <-t.done:
		return "", io.EOF
	}
}

func (t *TuiIO) UserMessage(text string) {
	t.program.Send(userMsg{text: text})
}

func (t *TuiIO) ThinkingStart() {
	t.program.Send(thinkingStartMsg{})
}

func (t *TuiIO) TextDelta(delta string) {
	t.program.Send(textDeltaMsg{delta: delta})
}

func (t *TuiIO) TextDone(fullText string) {
	t.program.Send(textDoneMsg{fullText: fullText})
}

func (t *TuiIO) SystemMessage(text string) {
	t.program.Send(systemMsg{text: text})
}

func (t *TuiIO) Error(msg string) {
	t.program.Send(errorMsg{text: msg})
}

func (t *TuiIO) SetTokens(n int) {
	t.program.Send(tokensMsg{n: n})
}

func (t *TuiIO) ClearScreen() {
	t.program.Send(clearMsg{})
}

// --- Aborter implementation ---

// SetAbort registers the function that cancels the streaming reply.
func (t *TuiIO) SetAbort(fn func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.abort = fn
}

// Abort cancels the streaming reply. Returns true if a reply was actually
// cancelled.
func (t *TuiIO) Abort() bool {
	t.mu.Lock()
	fn := t.abort
	t.mu.Unlock()
	if fn == nil {
		return false
	}
	return fn()
}

// shutdown unblocks ReadInput and cancels any reply once the program exits.
func (t *TuiIO) shutdown() {
	t.once.Do(func() {
		close(t.done)
		t.Abort()
	})
}
