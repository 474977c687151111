package provider

import (
	"context"
	"sync"
)

// Reply is one canned completion replayed by Scripted.
type Reply struct {
	Chunks []string

	// ChatErr is returned by Chat itself, before any stream exists.
	ChatErr error

	// Err is emitted as EventError after Chunks.
	Err error

	// WaitForCancel holds the stream open after Chunks until ctx is done,
	// then emits ctx.Err() as EventError.
	WaitForCancel bool

	Usage *Usage
}

// Scripted is a deterministic Provider that replays queued replies in order.
// Used for offline runs and tests.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	requests []ChatRequest
}

var _ Provider = (*Scripted)(nil)

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Name() string         { return "scripted" }
func (s *Scripted) DefaultModel() string { return "scripted" }

// Enqueue appends replies to the queue.
func (s *Scripted) Enqueue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatRequest, len(s.requests))
	for i, r := range s.requests {
		r.Messages = append([]Message(nil), r.Messages...)
		out[i] = r
	}
	return out
}

func (s *Scripted) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	s.mu.Lock()
	rec := *req
	rec.Messages = append([]Message(nil), req.Messages...)
	s.requests = append(s.requests, rec)

	var reply Reply
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	s.mu.Unlock()

	if reply.ChatErr != nil {
		return nil, reply.ChatErr
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		for _, chunk := range reply.Chunks {
			if err := ctx.Err(); err != nil {
				send(ctx, ch, Event{Type: EventError, Error: err})
				return
			}
			if !send(ctx, ch, Event{Type: EventTextDelta, TextDelta: chunk}) {
				return
			}
		}
		if reply.WaitForCancel {
			<-ctx.Done()
			ch <- Event{Type: EventError, Error: ctx.Err()}
			return
		}
		if reply.Err != nil {
			send(ctx, ch, Event{Type: EventError, Error: reply.Err})
			return
		}
		usage := reply.Usage
		if usage == nil {
			usage = &Usage{}
		}
		send(ctx, ch, Event{Type: EventDone, Usage: usage})
	}()
	return ch, nil
}
