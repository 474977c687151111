// Package chat runs the interactive loop between the user and a session.Core.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/streamchat/streamchat/internal/session"
	"github.com/streamchat/streamchat/internal/tui"
)

// previewWidth bounds each line of /history output.
const previewWidth = 72

// flushTimeout bounds the final snapshot flush when the loop exits.
const flushTimeout = 3 * time.Second

// Info describes the active configuration for /config.
type Info struct {
	Provider   string
	Model      string
	Profile    string
	Store      string
	ConfigPath string
}

// Runner translates user input into session operations and session events
// into IO calls.
type Runner struct {
	io     tui.IO
	info   Info
	logger *slog.Logger

	mu        sync.Mutex
	core      *session.Core
	streaming bool
	reply     strings.Builder
}

// New creates a Runner. Pass r.Observe to session.WithObserver when building
// the core, then hand the core to Run.
func New(ui tui.IO, info Info, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{io: ui, info: info, logger: logger}
}

// Observe renders one core event. It is the session.Observer of the core.
func (r *Runner) Observe(ev session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case session.EventAppended:
		switch ev.Message.Role {
		case session.RoleUser:
			r.io.UserMessage(ev.Message.Content)
		case session.RoleAssistant:
			r.streaming = true
			r.reply.Reset()
			r.io.ThinkingStart()
		case session.RoleError:
			r.finishLocked()
			r.io.Error(ev.Message.Content)
		}

	case session.EventDelta:
		r.reply.WriteString(ev.Delta)
		r.io.TextDelta(ev.Delta)

	case session.EventCleared:
		r.streaming = false
		r.reply.Reset()
		if c, ok := r.io.(tui.Clearer); ok {
			c.ClearScreen()
		}
		r.io.SystemMessage("Conversation cleared.")

	case session.EventLoading:
		if !ev.Loading {
			r.finishLocked()
			if r.core != nil {
				r.io.SetTokens(r.core.TokensUsed())
			}
		}
	}
}

// finishLocked ends the reply currently on screen, if any.
func (r *Runner) finishLocked() {
	if !r.streaming {
		return
	}
	r.streaming = false
	r.io.TextDone(r.reply.String())
	r.reply.Reset()
}

// Run starts the interactive loop on core. It returns nil when the user quits
// or input ends, and ctx.Err() when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, core *session.Core) error {
	r.mu.Lock()
	r.core = core
	r.mu.Unlock()

	if a, ok := r.io.(tui.Aborter); ok {
		a.SetAbort(core.Abort)
		defer a.SetAbort(nil)
	}
	defer r.flush(core)

	r.replay(core.Messages())
	r.io.SetTokens(core.TokensUsed())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		input, err := r.io.ReadInput()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			handled, quit := r.handleSlashCommand(core, input)
			if quit {
				return nil
			}
			if handled {
				continue
			}
		}

		if err := core.SendMessage(ctx, input); err != nil {
			// Failures of a turn are already in the transcript and were
			// rendered by Observe.
			r.logger.Debug("send failed", "error", err)
			if errors.Is(err, session.ErrBusy) {
				r.io.Error(err.Error())
			}
		}
	}
}

// RunOnce sends a single prompt and returns the turn's error.
func (r *Runner) RunOnce(ctx context.Context, core *session.Core, text string) error {
	r.mu.Lock()
	r.core = core
	r.mu.Unlock()
	defer r.flush(core)
	return core.SendMessage(ctx, text)
}

func (r *Runner) flush(core *session.Core) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := core.Flush(ctx); err != nil {
		r.logger.Warn("snapshot flush failed", "error", err)
	}
}

// replay shows a restored transcript.
func (r *Runner) replay(msgs []session.Message) {
	if len(msgs) == 0 {
		return
	}
	r.io.SystemMessage(fmt.Sprintf("Restored %d messages.\n%s", len(msgs), formatHistory(msgs)))
}

// handleSlashCommand processes built-in commands.
// Returns (handled, shouldQuit).
func (r *Runner) handleSlashCommand(core *session.Core, input string) (bool, bool) {
	cmd := strings.Fields(input)[0]

	switch cmd {
	case "/quit", "/exit", "/q":
		r.io.SystemMessage("Bye.")
		return true, true
	case "/clear":
		core.Clear()
		return true, false
	case "/history":
		r.io.SystemMessage(formatHistory(core.Messages()))
		return true, false
	case "/config":
		r.io.SystemMessage(r.formatConfig(core))
		return true, false
	case "/help":
		r.io.SystemMessage(helpText)
		return true, false
	default:
		r.io.Error(fmt.Sprintf("Unknown command %s. Type /help for the list.", cmd))
		return true, false
	}
}

const helpText = `Available commands:
  /help       Show this help message
  /history    Show the conversation
  /clear      Clear the conversation and its saved copy
  /config     Show current configuration
  /quit       Exit

Press Esc (TUI) or Ctrl-C (plain mode) to cancel a reply while it streams.`

func (r *Runner) formatConfig(core *session.Core) string {
	return fmt.Sprintf(`Current configuration:
  Provider:    %s
  Model:       %s
  Profile:     %s
  Store:       %s
  Config file: %s
  Limit:       %d
  Messages:    %d
  Tokens used: %d`,
		r.info.Provider,
		r.info.Model,
		r.info.Profile,
		r.info.Store,
		r.info.ConfigPath,
		core.Limit(),
		len(core.Messages()),
		core.TokensUsed(),
	)
}

func formatHistory(msgs []session.Message) string {
	if len(msgs) == 0 {
		return "No history."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== History (%d messages) ===", len(msgs))
	for _, m := range msgs {
		fmt.Fprintf(&sb, "\n[%s] %-9s %s",
			m.Timestamp.Local().Format("15:04"),
			m.Role+":",
			tui.Preview(m.Content, previewWidth))
	}
	return sb.String()
}
