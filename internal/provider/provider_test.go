package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// --- Provider metadata tests ---

func TestNameFromBaseURL(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
	}{
		{"", "openai"},
		{"https://api.deepseek.com", "deepseek"},
		{"https://api.moonshot.cn/v1", "kimi"},
		{"https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen"},
		{"https://api.groq.com/openai/v1", "groq"},
		{"https://llm.internal.example/v1", "openai"},
	}
	for _, tt := range tests {
		if got := nameFromBaseURL(tt.baseURL); got != tt.want {
			t.Errorf("nameFromBaseURL(%q) = %q, want %q", tt.baseURL, got, tt.want)
		}
	}
}

func TestOpenAIProvider_DefaultModel(t *testing.T) {
	p := NewOpenAIProvider("sk-test", "", "")
	if p.DefaultModel() != "gpt-4o-mini" {
		t.Errorf("expected fallback model gpt-4o-mini, got %q", p.DefaultModel())
	}
	if p.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", p.Name())
	}
}

func TestAnthropicProvider_Metadata(t *testing.T) {
	p := NewAnthropicProvider("sk-ant-test", "", "")
	if p.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", p.Name())
	}
	if p.DefaultModel() != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected default model %q", p.DefaultModel())
	}
}

// --- Message conversion tests ---

func TestBuildOpenAIMessages_KeepsOrder(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "again"},
	}
	params := buildOpenAIMessages(msgs)
	if len(params) != 4 {
		t.Fatalf("expected 4 params, got %d", len(params))
	}
	if params[0].OfSystem == nil {
		t.Error("first param should be a system message")
	}
	if params[1].OfUser == nil || params[3].OfUser == nil {
		t.Error("params 1 and 3 should be user messages")
	}
	if params[2].OfAssistant == nil {
		t.Error("param 2 should be an assistant message")
	}
}

func TestBuildAnthropicMessages_ExtractsSystem(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}
	system, params := buildAnthropicMessages(msgs)
	if system != "be brief" {
		t.Errorf("system = %q, want %q", system, "be brief")
	}
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if params[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("params[0].Role = %q, want user", params[0].Role)
	}
	if params[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("params[1].Role = %q, want assistant", params[1].Role)
	}
}

func TestBuildAnthropicMessages_NoSystem(t *testing.T) {
	system, params := buildAnthropicMessages([]Message{{Role: RoleUser, Content: "hi"}})
	if system != "" {
		t.Errorf("expected empty system, got %q", system)
	}
	if len(params) != 1 {
		t.Errorf("expected 1 param, got %d", len(params))
	}
}

// --- Scripted provider tests ---

func collect(t *testing.T, ch <-chan Event) (string, []Event) {
	t.Helper()
	var text string
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return text, events
			}
			events = append(events, ev)
			if ev.Type == EventTextDelta {
				text += ev.TextDelta
			}
		case <-timeout:
			t.Fatal("timed out waiting for scripted stream")
		}
	}
}

func TestScripted_ReplaysInOrder(t *testing.T) {
	p := NewScripted(
		Reply{Chunks: []string{"Hel", "lo"}},
		Reply{Chunks: []string{"second"}},
	)

	ch, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "a"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	text, events := collect(t, ch)
	if text != "Hello" {
		t.Errorf("text = %q, want %q", text, "Hello")
	}
	if last := events[len(events)-1]; last.Type != EventDone {
		t.Errorf("last event type = %v, want EventDone", last.Type)
	}

	ch, _ = p.Chat(context.Background(), &ChatRequest{})
	if text, _ := collect(t, ch); text != "second" {
		t.Errorf("second reply = %q, want %q", text, "second")
	}

	reqs := p.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", len(reqs))
	}
	if reqs[0].Messages[0].Content != "a" {
		t.Errorf("recorded message = %q, want %q", reqs[0].Messages[0].Content, "a")
	}
}

func TestScripted_ChatErr(t *testing.T) {
	want := errors.New("boom")
	p := NewScripted(Reply{ChatErr: want})
	if _, err := p.Chat(context.Background(), &ChatRequest{}); !errors.Is(err, want) {
		t.Errorf("Chat error = %v, want %v", err, want)
	}
}

func TestScripted_WaitForCancel(t *testing.T) {
	p := NewScripted(Reply{Chunks: []string{"Hel"}, WaitForCancel: true})
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := p.Chat(ctx, &ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	first := <-ch
	if first.Type != EventTextDelta || first.TextDelta != "Hel" {
		t.Fatalf("first event = %+v", first)
	}
	cancel()

	_, events := collect(t, ch)
	if len(events) != 1 || events[0].Type != EventError || !errors.Is(events[0].Error, context.Canceled) {
		t.Errorf("expected a single context.Canceled error event, got %+v", events)
	}
}
