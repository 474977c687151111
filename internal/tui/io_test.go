package tui

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
)

func TestWrapByDisplayWidth_ASCII(t *testing.T) {
	lines := wrapByDisplayWidth("abcdefghijklmnopqrstuvwxyz", 10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 wrapped lines, got %d (%v)", len(lines), lines)
	}
	for _, ln := range lines {
		if runewidth.StringWidth(ln) > 10 {
			t.Fatalf("line width exceeds 10: %q", ln)
		}
	}
}

func TestWrapByDisplayWidth_CJK(t *testing.T) {
	lines := wrapByDisplayWidth("这是一个很长很长的中文输入内容用于测试自动换行", 12)
	if len(lines) < 2 {
		t.Fatalf("expected CJK text to wrap, got %v", lines)
	}
	for _, ln := range lines {
		if runewidth.StringWidth(ln) > 12 {
			t.Fatalf("line width exceeds 12: %q", ln)
		}
	}
}

func TestWrapByDisplayWidth_KeepsNewlines(t *testing.T) {
	lines := wrapByDisplayWidth("a\n\nb", 10)
	want := []string{"a", "", "b"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"flattens whitespace", "hello\n  world\t!", 40, "hello world !"},
		{"truncates", "abcdefghij", 5, "abcd…"},
		{"no limit", "abcdefghij", 0, "abcdefghij"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preview(tt.in, tt.width)
			if got != tt.want {
				t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
			if tt.width > 0 && runewidth.StringWidth(got) > tt.width {
				t.Errorf("preview %q wider than %d", got, tt.width)
			}
		})
	}
}

func TestPlainIO(t *testing.T) {
	var out, errOut bytes.Buffer
	p := newPlainIO(strings.NewReader("  first line \nsecond\n"), &out, &errOut)

	line, err := p.ReadInput()
	if err != nil || line != "first line" {
		t.Fatalf("ReadInput = %q, %v", line, err)
	}
	p.ThinkingStart()
	p.TextDelta("Hel")
	p.TextDelta("lo")
	p.TextDone("Hello")
	p.SystemMessage("cleared")
	p.Error("boom")
	p.SetTokens(42)

	if line, err = p.ReadInput(); err != nil || line != "second" {
		t.Fatalf("ReadInput = %q, %v", line, err)
	}
	if _, err = p.ReadInput(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	if !strings.Contains(out.String(), "Hello\ncleared\n") {
		t.Errorf("stdout = %q", out.String())
	}
	if errOut.String() != "error: boom\n" {
		t.Errorf("stderr = %q", errOut.String())
	}
	if p.Tokens() != 42 {
		t.Errorf("tokens = %d, want 42", p.Tokens())
	}
}

func TestBufferIO(t *testing.T) {
	b := NewBufferIO("one", "two")

	for _, want := range []string{"one", "two"} {
		got, err := b.ReadInput()
		if err != nil || got != want {
			t.Fatalf("ReadInput = %q, %v, want %q", got, err, want)
		}
	}
	if _, err := b.ReadInput(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	b.UserMessage("hi")
	b.TextDelta("a")
	b.TextDelta("b")
	b.TextDone("ab")
	b.SystemMessage("note")
	b.Error("bad")
	b.SetTokens(7)
	b.ClearScreen()

	if b.Output() != "ab" {
		t.Errorf("output = %q", b.Output())
	}
	if len(b.Users()) != 1 || len(b.Dones()) != 1 || len(b.Systems()) != 1 || len(b.Errors()) != 1 {
		t.Errorf("unexpected captures: users=%v dones=%v systems=%v errors=%v",
			b.Users(), b.Dones(), b.Systems(), b.Errors())
	}
	if b.Tokens() != 7 || b.Cleared() != 1 {
		t.Errorf("tokens=%d cleared=%d", b.Tokens(), b.Cleared())
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModelStreamLifecycle(t *testing.T) {
	m := NewModel(make(chan inputResult, 1), TUIConfig{Provider: "openai", Model: "gpt-4o", Profile: "default"})
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	m = update(t, m, userMsg{text: "hello"})
	m = update(t, m, thinkingStartMsg{})
	if !m.thinking {
		t.Fatal("expected thinking after thinkingStartMsg")
	}
	m = update(t, m, textDeltaMsg{delta: "partial"})
	if m.thinking || !m.streaming || m.live != "partial" {
		t.Fatalf("thinking=%v streaming=%v live=%q", m.thinking, m.streaming, m.live)
	}
	m = update(t, m, errorMsg{text: "Message cancelled"})
	if m.streaming || m.live != "" {
		t.Fatalf("stream not finished by error: streaming=%v live=%q", m.streaming, m.live)
	}
	if !strings.Contains(m.content, "partial") || !strings.Contains(m.content, "Message cancelled") {
		t.Fatalf("content missing reply or error: %q", m.content)
	}

	m = update(t, m, tokensMsg{n: 12})
	if !strings.Contains(m.View(), "tokens: 12") {
		t.Errorf("status bar missing tokens: %q", m.View())
	}

	m = update(t, m, clearMsg{})
	if m.content != "" {
		t.Errorf("content after clear = %q", m.content)
	}
}

func TestModelEnterSendsInput(t *testing.T) {
	ch := make(chan inputResult, 1)
	m := NewModel(ch, TUIConfig{})
	m = update(t, m, readInputMsg{})
	m.textinput.SetValue("  hi there ")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	select {
	case res := <-ch:
		if res.text != "hi there" || res.err != nil {
			t.Fatalf("input = %+v", res)
		}
	default:
		t.Fatal("enter did not deliver input")
	}
	if m.inputMode {
		t.Error("input mode still active after enter")
	}
}

func TestModelEscAborts(t *testing.T) {
	called := make(chan struct{}, 1)
	m := NewModel(make(chan inputResult, 1), TUIConfig{})
	m.abortFn = func() bool {
		called <- struct{}{}
		return true
	}

	// Idle: esc does nothing.
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	select {
	case <-called:
		t.Fatal("abort called while idle")
	default:
	}

	m = update(t, m, thinkingStartMsg{})
	update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	<-called
}
