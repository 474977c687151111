package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/streamchat/streamchat/internal/provider"
)

func newTestClient(t *testing.T, replies ...provider.Reply) (*Client, *provider.Scripted) {
	t.Helper()
	p := provider.NewScripted(replies...)
	c := FromProvider(p, WithModel("test-model"), WithMaxTokens(256))
	if err := c.Init("be brief"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c, p
}

func drain(t *testing.T, s *Stream) []string {
	t.Helper()
	var got []string
	for s.Next() {
		got = append(got, s.Current())
	}
	return got
}

func TestInit_TwiceLeavesOneSystemEntry(t *testing.T) {
	c := FromProvider(provider.NewScripted())
	if err := c.Init("first"); err != nil {
		t.Fatal(err)
	}
	c.Seed([]provider.Message{{Role: provider.RoleUser, Content: "hi"}})
	if err := c.Init("second"); err != nil {
		t.Fatal(err)
	}

	h := c.History()
	if len(h) != 1 {
		t.Fatalf("expected 1 history entry, got %d: %+v", len(h), h)
	}
	if h[0].Role != provider.RoleSystem || h[0].Content != "second" {
		t.Errorf("history[0] = %+v, want system %q", h[0], "second")
	}
}

func TestInit_EmptyPrompt(t *testing.T) {
	c := FromProvider(provider.NewScripted())
	if err := c.Init(""); err != nil {
		t.Fatal(err)
	}
	if n := len(c.History()); n != 0 {
		t.Errorf("expected empty history, got %d entries", n)
	}
}

func TestInit_FactoryError(t *testing.T) {
	wantErr := errors.New(`API key not configured for provider "openai"`)
	calls := 0
	c := New(func() (provider.Provider, error) {
		calls++
		if calls == 1 {
			return nil, wantErr
		}
		return provider.NewScripted(provider.Reply{Chunks: []string{"ok"}}), nil
	})

	if err := c.Init("sys"); !errors.Is(err, wantErr) {
		t.Fatalf("Init error = %v, want %v", err, wantErr)
	}
	if _, err := c.PromptStream(context.Background(), "hi"); !errors.Is(err, wantErr) {
		t.Errorf("PromptStream error = %v, want the remembered init error", err)
	}

	// A later Init retries construction.
	if err := c.Init("sys"); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	s, err := c.PromptStream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("PromptStream: %v", err)
	}
	if got := strings.Join(drain(t, s), ""); got != "ok" {
		t.Errorf("reply = %q, want %q", got, "ok")
	}
}

func TestPromptStream_NotInitialized(t *testing.T) {
	c := FromProvider(provider.NewScripted())
	if _, err := c.PromptStream(context.Background(), "hi"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestPromptStream_CommitsReply(t *testing.T) {
	c, p := newTestClient(t, provider.Reply{
		Chunks: []string{"Hel", "", "lo"},
		Usage:  &provider.Usage{InputTokens: 12, OutputTokens: 2},
	})

	s, err := c.PromptStream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("PromptStream: %v", err)
	}
	frags := drain(t, s)
	if len(frags) != 2 || frags[0] != "Hel" || frags[1] != "lo" {
		t.Errorf("fragments = %q, want [Hel lo]", frags)
	}
	if s.Err() != nil {
		t.Errorf("Err = %v, want nil", s.Err())
	}
	if s.Usage().InputTokens != 12 || s.Usage().OutputTokens != 2 {
		t.Errorf("usage = %+v", s.Usage())
	}
	if !s.Committed() {
		t.Error("expected reply to be committed")
	}

	h := c.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(h))
	}
	if h[1].Role != provider.RoleUser || h[1].Content != "hi" {
		t.Errorf("history[1] = %+v", h[1])
	}
	if h[2].Role != provider.RoleAssistant || h[2].Content != "Hello" {
		t.Errorf("history[2] = %+v", h[2])
	}

	req := p.Requests()[0]
	if req.Model != "test-model" || req.MaxTokens != 256 {
		t.Errorf("request model/max = %q/%d", req.Model, req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != provider.RoleSystem {
		t.Errorf("request messages = %+v", req.Messages)
	}
}

func TestPromptStream_SendsEntireHistory(t *testing.T) {
	c, p := newTestClient(t,
		provider.Reply{Chunks: []string{"one"}},
		provider.Reply{Chunks: []string{"two"}},
	)
	for _, text := range []string{"a", "b"} {
		s, err := c.PromptStream(context.Background(), text)
		if err != nil {
			t.Fatal(err)
		}
		drain(t, s)
	}

	reqs := p.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	want := []string{"be brief", "a", "one", "b"}
	got := reqs[1].Messages
	if len(got) != len(want) {
		t.Fatalf("second request has %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Content != want[i] {
			t.Errorf("messages[%d] = %q, want %q", i, got[i].Content, want[i])
		}
	}
}

func TestPromptStream_Cancelled(t *testing.T) {
	c, _ := newTestClient(t, provider.Reply{Chunks: []string{"Hel"}, WaitForCancel: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := c.PromptStream(ctx, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Next() || s.Current() != "Hel" {
		t.Fatalf("expected first fragment Hel, got %q", s.Current())
	}
	cancel()
	if s.Next() {
		t.Fatal("Next should return false after cancel")
	}
	if !errors.Is(s.Err(), context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", s.Err())
	}

	h := c.History()
	if last := h[len(h)-1]; last.Role != provider.RoleAssistant || last.Content != "Hel" {
		t.Errorf("partial reply should be committed, last = %+v", last)
	}
}

func TestPromptStream_ResetDuringStream(t *testing.T) {
	c, _ := newTestClient(t, provider.Reply{Chunks: []string{"stale"}})

	s, err := c.PromptStream(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Init("fresh"); err != nil {
		t.Fatal(err)
	}
	drain(t, s)

	if s.Committed() {
		t.Error("a stream from before Init must not commit")
	}
	h := c.History()
	if len(h) != 1 || h[0].Content != "fresh" {
		t.Errorf("history = %+v, want only the fresh system entry", h)
	}
}

func TestPromptStream_EmptyReply(t *testing.T) {
	c, _ := newTestClient(t, provider.Reply{})
	s, err := c.PromptStream(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if frags := drain(t, s); len(frags) != 0 {
		t.Errorf("expected no fragments, got %q", frags)
	}
	if s.Err() != nil || s.Committed() {
		t.Errorf("Err = %v, Committed = %v; want nil, false", s.Err(), s.Committed())
	}
	if n := len(c.History()); n != 2 {
		t.Errorf("expected system+user only, got %d entries", n)
	}
}

func TestPromptStream_ErrorEvent(t *testing.T) {
	boom := errors.New("connection reset by peer")
	c, _ := newTestClient(t, provider.Reply{Chunks: []string{"par"}, Err: boom})
	s, err := c.PromptStream(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	drain(t, s)
	if !errors.Is(s.Err(), boom) {
		t.Errorf("Err = %v, want %v", s.Err(), boom)
	}
}

func TestPromptStream_ChatError(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	c, _ := newTestClient(t, provider.Reply{ChatErr: boom})
	if _, err := c.PromptStream(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Errorf("PromptStream error = %v, want %v", err, boom)
	}
}

func TestStream_CloseEarly(t *testing.T) {
	c, _ := newTestClient(t, provider.Reply{Chunks: []string{"a", "b", "c"}})
	s, err := c.PromptStream(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Next() {
		t.Fatal("expected a fragment")
	}
	s.Close()
	if s.Next() {
		t.Error("Next after Close should be false")
	}
	if !errors.Is(s.Err(), ErrStreamClosed) {
		t.Errorf("Err = %v, want ErrStreamClosed", s.Err())
	}
}

func TestSeed_SkipsSystem(t *testing.T) {
	c, _ := newTestClient(t)
	c.Seed([]provider.Message{
		{Role: provider.RoleSystem, Content: "old prompt"},
		{Role: provider.RoleUser, Content: "hi"},
		{Role: provider.RoleAssistant, Content: "hello"},
	})
	h := c.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 entries, got %+v", h)
	}
	if h[0].Content != "be brief" {
		t.Errorf("history[0] = %q, want the Init prompt", h[0].Content)
	}
}
