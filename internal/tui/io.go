// Package tui defines the IO interface between the chat loop and the user
// interface layer, plus PlainIO (terminal fallback), TuiIO (bubbletea) and
// BufferIO (captured output).
package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// IO is the contract between the chat loop and the UI layer.
// Every method maps to a distinct visual event, so the chat loop never
// depends on a specific rendering implementation.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// UserMessage displays the user's submitted message in the output area.
	UserMessage(text string)

	// ThinkingStart signals that a reply has been requested.
	// Implementations should show a spinner or "Thinking..." indicator.
	ThinkingStart()

	// TextDelta appends an incremental text chunk from the reply stream.
	TextDelta(delta string)

	// TextDone signals that the current reply is finished (completed,
	// failed or cancelled). fullText is everything received for it.
	// TUI implementations use this to trigger Markdown rendering.
	TextDone(fullText string)

	// SystemMessage displays a notice (e.g. "/clear" feedback, history).
	SystemMessage(text string)

	// Error displays an error message with prominent styling.
	Error(msg string)

	// SetTokens updates the token counter shown in the status area.
	SetTokens(n int)
}

// Clearer is implemented by IOs that can wipe the visible transcript.
type Clearer interface {
	ClearScreen()
}

// Aborter is implemented by IOs that let the user cancel a reply while it
// streams (Esc in the TUI). The chat loop registers the abort function.
type Aborter interface {
	SetAbort(fn func() bool)
}

// Preview flattens s to one line and truncates it to width display cells.
func Preview(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// wrapByDisplayWidth splits s into lines no wider than width display cells.
func wrapByDisplayWidth(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		var cur strings.Builder
		curW := 0
		for _, r := range para {
			w := runewidth.RuneWidth(r)
			if curW+w > width && curW > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
				curW = 0
			}
			cur.WriteRune(r)
			curW += w
		}
		lines = append(lines, cur.String())
	}
	return lines
}
