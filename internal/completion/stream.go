package completion

import (
	"context"
	"errors"
	"strings"

	"github.com/streamchat/streamchat/internal/provider"
)

// ErrStreamClosed is reported by Err when the consumer closed the stream
// before it ended.
var ErrStreamClosed = errors.New("stream closed")

// Stream is a one-shot, forward-only sequence of reply fragments.
//
//	for s.Next() {
//		fmt.Print(s.Current())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Stream is not safe for concurrent use.
type Stream struct {
	client *Client
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan provider.Event

	current   string
	content   strings.Builder
	usage     provider.Usage
	err       error
	done      bool
	committed bool
}

// Next advances to the next non-empty fragment. It returns false once the
// reply ended, failed, or the context was cancelled.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.finish(err)
			return false
		}

		var ev provider.Event
		var ok bool
		select {
		case <-s.ctx.Done():
			s.finish(s.ctx.Err())
			return false
		case ev, ok = <-s.events:
		}

		if !ok {
			// Channel closed without a terminal event: the provider stopped
			// because ctx ended, or the reply simply ran out.
			s.finish(s.ctx.Err())
			return false
		}

		switch ev.Type {
		case provider.EventTextDelta:
			if ev.TextDelta == "" {
				continue
			}
			s.current = ev.TextDelta
			s.content.WriteString(ev.TextDelta)
			return true
		case provider.EventDone:
			if ev.Usage != nil {
				s.usage = *ev.Usage
			}
			s.finish(nil)
			return false
		case provider.EventError:
			err := ev.Error
			if err == nil {
				err = errors.New("stream failed")
			}
			s.finish(err)
			return false
		}
	}
}

// Current returns the fragment produced by the last successful Next.
func (s *Stream) Current() string { return s.current }

// Content returns everything received so far.
func (s *Stream) Content() string { return s.content.String() }

// Err returns the terminal error, or nil if the reply ended normally.
// Cancellation is reported as the context's error.
func (s *Stream) Err() error { return s.err }

// Usage returns token usage when the provider reported it.
func (s *Stream) Usage() provider.Usage { return s.usage }

// Committed reports whether the reply was added to the client history.
func (s *Stream) Committed() bool { return s.committed }

// Close ends the stream early. Content received so far is still committed.
func (s *Stream) Close() error {
	if !s.done {
		s.finish(ErrStreamClosed)
	}
	return nil
}

func (s *Stream) finish(err error) {
	s.done = true
	s.err = err
	s.current = ""
	s.committed = s.client.commit(s.epoch, s.content.String())
	s.cancel()

	// Drain whatever the provider still has buffered so its goroutine can exit.
	go func(ch <-chan provider.Event) {
		for range ch {
		}
	}(s.events)
}
