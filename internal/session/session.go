// Package session owns the chat transcript: the streaming turn lifecycle,
// cancellation, the message limit and snapshot persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamchat/streamchat/internal/completion"
	"github.com/streamchat/streamchat/internal/failure"
	"github.com/streamchat/streamchat/internal/prompt"
)

// DefaultLimit is the number of prior messages allowed before sends are rejected.
const DefaultLimit = 10

// ErrBusy is returned by SendMessage while a turn is in flight.
var ErrBusy = errors.New("a message is already being answered")

// handle is the cancellation handle of one turn. aborted is guarded by Core.mu.
type handle struct {
	ctx     context.Context
	cancel  context.CancelFunc
	aborted bool
}

// Core is the chat session. All methods are safe for concurrent use; at most
// one turn is in flight at a time.
type Core struct {
	client   *completion.Client
	writer   *Writer
	source   prompt.Source
	logger   *slog.Logger
	observer Observer
	limit    int
	timeout  time.Duration
	now      func() time.Time

	mu           sync.Mutex
	messages     []Message
	state        State
	handle       *handle
	gen          uint64 // bumped by Clear; a turn from an older generation settles silently
	restored     bool
	systemPrompt string
	lastTS       time.Time
	tokens       int

	queue       []Event // observer events not yet delivered
	dispatching bool
}

// Option configures a Core.
type Option func(*Core)

// WithLimit sets the message limit. Negative values are treated as zero.
func WithLimit(n int) Option {
	return func(c *Core) {
		if n < 0 {
			n = 0
		}
		c.limit = n
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Core) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Core) { c.observer = o }
}

// WithPromptSource sets where Initialize loads the system prompt from.
func WithPromptSource(s prompt.Source) Option {
	return func(c *Core) { c.source = s }
}

// WithRequestTimeout bounds each turn. Zero means no timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Core) { c.timeout = d }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// New returns an empty Core. The Core takes ownership of writer.
func New(client *completion.Client, writer *Writer, opts ...Option) *Core {
	c := &Core{
		client: client,
		writer: writer,
		logger: slog.New(slog.DiscardHandler),
		limit:  DefaultLimit,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

// Open restores the stored transcript (first call only) and initializes the
// completion client.
func (c *Core) Open(ctx context.Context) error {
	if err := c.Restore(ctx); err != nil {
		return err
	}
	return c.Initialize(ctx)
}

// Restore loads the snapshot into an empty transcript. Only the first
// successful call has an effect; after a load error the next call tries
// again. A corrupt snapshot is logged and treated as empty.
func (c *Core) Restore(ctx context.Context) error {
	c.mu.Lock()
	done := c.restored
	c.mu.Unlock()
	if done {
		return nil
	}

	msgs, err := c.writer.Load(ctx)
	if errors.Is(err, ErrCorruptSnapshot) {
		c.logger.Warn("ignoring corrupt snapshot", "error", err)
		c.mu.Lock()
		c.restored = true
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore transcript: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restored {
		return nil
	}
	c.restored = true
	if len(c.messages) > 0 {
		return nil
	}
	c.messages = msgs
	for _, m := range msgs {
		if m.Timestamp.After(c.lastTS) {
			c.lastTS = m.Timestamp
		}
	}
	c.logger.Info("transcript restored", "messages", len(msgs))
	return nil
}

// Initialize loads the system prompt and resets the completion client to it,
// then seeds the client with the visible conversation. A prompt that cannot
// be fetched is logged and replaced by an empty prompt. A client that cannot
// be initialized adds an error message to the transcript; the classified
// error is also returned.
func (c *Core) Initialize(ctx context.Context) error {
	text := ""
	if c.source != nil {
		fetched, err := c.source.Fetch(ctx)
		if err != nil {
			c.logger.Warn("system prompt unavailable, continuing without it", "error", err)
		} else {
			text = fetched
		}
	}

	c.mu.Lock()
	c.systemPrompt = text
	visible := modelVisible(c.messages)
	c.mu.Unlock()

	if err := c.client.Init(text); err != nil {
		fe := failure.Classify(err)
		c.logger.Error("completion client init failed", "kind", fe.Kind, "error", err)

		c.mu.Lock()
		msg := c.appendLocked(RoleError, fe.Message())
		c.persistLocked()
		c.unlockAndEmit(Event{Type: EventAppended, Message: msg})
		return fe
	}
	c.client.Seed(visible)
	c.logger.Info("session initialized", "prompt_chars", len(text), "seeded", len(visible))
	return nil
}

// Close aborts any in-flight turn and flushes the snapshot.
func (c *Core) Close() error {
	c.mu.Lock()
	if h := c.handle; h != nil {
		h.aborted = true
		h.cancel()
	}
	c.mu.Unlock()
	return c.writer.Close()
}

// ── Turn ─────────────────────────────────────────────────────────────────────

// SendMessage runs one turn: it appends the user message and an assistant
// placeholder, streams the reply into the placeholder and settles. It returns
// ErrBusy while another turn is in flight, and the classified failure (nil on
// success) otherwise. Failures are also reported in the transcript.
func (c *Core) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}

	if len(c.messages) > c.limit {
		fe := failure.New(failure.KindMessageLimit, nil)
		c.logger.Info("message limit reached", "messages", len(c.messages), "limit", c.limit)
		msg := c.appendLocked(RoleError, fe.Message())
		c.persistLocked()
		c.unlockAndEmit(Event{Type: EventAppended, Message: msg})
		return fe
	}

	hctx, cancel := context.WithCancel(ctx)
	if c.timeout > 0 {
		var tcancel context.CancelFunc
		hctx, tcancel = context.WithTimeout(hctx, c.timeout)
		parent := cancel
		cancel = func() { tcancel(); parent() }
	}
	h := &handle{ctx: hctx, cancel: cancel}
	c.handle = h
	c.state = StateSending
	gen := c.gen

	user := c.appendLocked(RoleUser, text)
	placeholder := c.appendLocked(RoleAssistant, "")
	c.persistLocked()
	c.unlockAndEmit(
		Event{Type: EventLoading, Loading: true},
		Event{Type: EventAppended, Message: user},
		Event{Type: EventAppended, Message: placeholder},
	)

	start := time.Now()
	c.logger.Debug("turn started", "message_id", placeholder.ID)

	stream, err := c.client.PromptStream(h.ctx, text)
	if err != nil {
		return c.settle(gen, h, placeholder.ID, false, 0, err, start)
	}

	received := false
	for stream.Next() {
		frag := stream.Current()

		c.mu.Lock()
		if h.aborted || gen != c.gen {
			c.mu.Unlock()
			stream.Close()
			break
		}
		idx := c.indexLocked(placeholder.ID)
		if idx < 0 {
			c.mu.Unlock()
			stream.Close()
			break
		}
		if c.state == StateSending {
			c.state = StateStreaming
		}
		c.messages[idx].Content += frag
		received = true
		updated := c.messages[idx]
		c.persistLocked()
		c.unlockAndEmit(Event{Type: EventDelta, Message: updated, Delta: frag})
	}

	usage := stream.Usage()
	return c.settle(gen, h, placeholder.ID, received, usage.InputTokens+usage.OutputTokens, stream.Err(), start)
}

// settle ends the turn started under generation gen. It returns the
// classified failure, or nil on success.
func (c *Core) settle(gen uint64, h *handle, placeholderID string, received bool, tokens int, err error, start time.Time) error {
	c.mu.Lock()
	h.cancel()

	if gen != c.gen {
		// Cleared mid-turn: Clear already reset the transcript and state.
		c.mu.Unlock()
		c.logger.Debug("turn discarded by clear")
		return failure.New(failure.KindCancelled, context.Canceled)
	}

	var fe *failure.Error
	switch {
	case err == nil && received:
	case h.aborted:
		fe = failure.New(failure.KindCancelled, context.Canceled)
	case err == nil:
		fe = failure.New(failure.KindEmptyCompletion, nil)
	default:
		fe = failure.Classify(err)
	}

	var events []Event
	if fe != nil {
		if idx := c.indexLocked(placeholderID); idx >= 0 && c.messages[idx].Content == "" {
			removed := c.messages[idx]
			c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
			events = append(events, Event{Type: EventRemoved, Message: removed})
		}
		if fe.Kind != failure.KindCancelled {
			msg := c.appendLocked(RoleError, fe.Message())
			events = append(events, Event{Type: EventAppended, Message: msg})
		}
	}

	c.tokens += tokens
	c.state = StateIdle
	if c.handle == h {
		c.handle = nil
	}
	c.persistLocked()
	events = append(events, Event{Type: EventLoading, Loading: false})
	c.unlockAndEmit(events...)

	if fe != nil {
		c.logger.Info("turn failed", "kind", fe.Kind, "error", fe.Err, "duration", time.Since(start))
		return fe
	}
	c.logger.Info("turn completed", "tokens", tokens, "duration", time.Since(start))
	return nil
}

// Abort cancels the in-flight turn and adds the cancellation notice. It
// reports whether a turn was aborted.
func (c *Core) Abort() bool {
	c.mu.Lock()
	h := c.handle
	if h == nil || h.aborted {
		c.mu.Unlock()
		return false
	}
	h.aborted = true
	h.cancel()
	c.state = StateCancelling

	msg := c.appendLocked(RoleError, failure.New(failure.KindCancelled, nil).Message())
	c.persistLocked()
	c.unlockAndEmit(Event{Type: EventAppended, Message: msg})
	c.logger.Info("turn aborted")
	return true
}

// Clear empties the transcript, purges the snapshot and resets the
// completion client to the system prompt. An in-flight turn is cancelled
// without a notice.
func (c *Core) Clear() {
	c.mu.Lock()
	wasLoading := c.state.Loading()
	if h := c.handle; h != nil {
		h.aborted = true
		h.cancel()
		c.handle = nil
	}
	c.gen++
	c.messages = nil
	c.state = StateIdle
	c.writer.Clear()
	if err := c.client.Init(c.systemPrompt); err != nil {
		c.logger.Warn("completion client reset failed", "error", err)
	}

	events := []Event{{Type: EventCleared}}
	if wasLoading {
		events = append(events, Event{Type: EventLoading, Loading: false})
	}
	c.unlockAndEmit(events...)
	c.logger.Info("transcript cleared", "aborted_turn", wasLoading)
}

// ── Accessors ────────────────────────────────────────────────────────────────

// Messages returns a copy of the transcript.
func (c *Core) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Core) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Loading()
}

func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Core) Limit() int { return c.limit }

// TokensUsed returns the token usage reported for all completed turns.
func (c *Core) TokensUsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// SystemPrompt returns the prompt loaded by the last Initialize.
func (c *Core) SystemPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.systemPrompt
}

// Flush waits for queued snapshot writes.
func (c *Core) Flush(ctx context.Context) error {
	return c.writer.Flush(ctx)
}

// ── Internal helpers (c.mu held) ─────────────────────────────────────────────

func (c *Core) appendLocked(role Role, content string) Message {
	ts := c.now()
	if ts.Before(c.lastTS) {
		ts = c.lastTS
	}
	c.lastTS = ts
	msg := newMessage(role, content, ts)
	c.messages = append(c.messages, msg)
	return msg
}

func (c *Core) indexLocked(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// persistLocked queues the current transcript for the snapshot writer.
// Queuing under c.mu keeps writes in mutation order.
func (c *Core) persistLocked() {
	c.writer.Save(c.snapshotLocked())
}

// snapshotLocked returns the persistable transcript. An empty streaming
// placeholder is left out.
func (c *Core) snapshotLocked() []Message {
	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Role == RoleAssistant && m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// unlockAndEmit queues events, releases c.mu and delivers queued events to
// the observer in mutation order. If another goroutine is already delivering,
// it picks the events up instead.
func (c *Core) unlockAndEmit(events ...Event) {
	if c.observer == nil {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, events...)
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.queue) > 0 {
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()
		for _, ev := range batch {
			c.observer(ev)
		}
		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}
