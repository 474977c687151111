// Package completion wraps a streaming Provider with the model-visible
// conversation memory.
//
// The Client owns an ordered, role-tagged history. Every PromptStream call
// sends the whole history to the provider and, when the returned Stream ends,
// commits the accumulated reply as one assistant entry. Init resets the
// history to a single system entry; streams opened before the reset never
// commit into the new history.
package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/streamchat/streamchat/internal/provider"
)

// ErrNotInitialized is returned by PromptStream before a successful Init.
var ErrNotInitialized = errors.New("completion client not initialized")

// Factory builds the provider. It is called lazily by Init so that a missing
// credential surfaces as an Init error instead of a startup crash.
type Factory func() (provider.Provider, error)

// Option configures a Client.
type Option func(*Client)

// WithModel sets the model name sent with each request. Empty means the
// provider's default.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithMaxTokens caps the length of each reply. Zero means the provider's default.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// Client is safe for concurrent use.
type Client struct {
	factory   Factory
	model     string
	maxTokens int

	mu      sync.Mutex
	prov    provider.Provider
	initErr error
	history []provider.Message
	epoch   uint64
}

// New returns a Client that builds its provider with factory on first Init.
func New(factory Factory, opts ...Option) *Client {
	c := &Client{factory: factory}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromProvider returns a Client around an already constructed provider.
func FromProvider(p provider.Provider, opts ...Option) *Client {
	return New(func() (provider.Provider, error) { return p, nil }, opts...)
}

// Init resets the history. A non-empty systemPrompt becomes the only system
// entry. The provider is built on the first successful call; its error is
// returned and remembered for PromptStream until a later Init succeeds.
func (c *Client) Init(systemPrompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.history = nil
	if systemPrompt != "" {
		c.history = append(c.history, provider.Message{Role: provider.RoleSystem, Content: systemPrompt})
	}

	if c.prov != nil {
		return nil
	}
	if c.factory == nil {
		c.initErr = ErrNotInitialized
		return c.initErr
	}
	p, err := c.factory()
	if err != nil {
		c.initErr = err
		return err
	}
	c.prov = p
	c.initErr = nil
	return nil
}

// Seed appends restored conversation turns after Init. System entries are
// skipped; the only system entry is the one Init installs.
func (c *Client) Seed(msgs []provider.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		if m.Role == provider.RoleSystem || m.Content == "" {
			continue
		}
		c.history = append(c.history, m)
	}
}

// History returns a copy of the model-visible history.
func (c *Client) History() []provider.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.Message(nil), c.history...)
}

// Provider returns the provider built by Init, or nil.
func (c *Client) Provider() provider.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prov
}

// PromptStream appends userText to the history and starts a completion over
// the entire history. The returned Stream must be consumed until Next
// returns false, or closed.
func (c *Client) PromptStream(ctx context.Context, userText string) (*Stream, error) {
	c.mu.Lock()
	if c.prov == nil {
		err := c.initErr
		c.mu.Unlock()
		if err == nil {
			err = ErrNotInitialized
		}
		return nil, err
	}
	c.history = append(c.history, provider.Message{Role: provider.RoleUser, Content: userText})
	req := &provider.ChatRequest{
		Model:     c.model,
		Messages:  append([]provider.Message(nil), c.history...),
		MaxTokens: c.maxTokens,
	}
	p := c.prov
	epoch := c.epoch
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	events, err := p.Chat(ctx, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s chat: %w", p.Name(), err)
	}
	return &Stream{
		client: c,
		epoch:  epoch,
		ctx:    ctx,
		cancel: cancel,
		events: events,
	}, nil
}

// commit appends the finished reply unless the history was reset since the
// stream started.
func (c *Client) commit(epoch uint64, content string) bool {
	if content == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}
	c.history = append(c.history, provider.Message{Role: provider.RoleAssistant, Content: content})
	return true
}
