package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinWriteInterval caps snapshot writes at ten per second.
const DefaultMinWriteInterval = 100 * time.Millisecond

const writeTimeout = 5 * time.Second

// ErrWriterClosed is returned by Flush after Close.
var ErrWriterClosed = errors.New("snapshot writer closed")

type opKind int

const (
	opSave opKind = iota
	opClear
)

func (k opKind) String() string {
	if k == opClear {
		return "clear"
	}
	return "save"
}

type writeOp struct {
	kind opKind
	msgs []Message
}

// Writer owns a Store and applies snapshot writes on a single goroutine.
//
// Save and Clear never block on the store. There is one pending slot: a newer
// operation replaces an unwritten older one, so writes are never reordered
// and a queued Clear cannot be undone by a stale Save that was queued before it.
type Writer struct {
	store   Store
	logger  *slog.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	pending *writeOp
	busy    bool
	closed  bool
	lastErr error
	writes  int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithMinWriteInterval sets the minimum spacing between store writes.
// Zero or negative disables throttling.
func WithMinWriteInterval(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d <= 0 {
			w.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		w.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithWriterLogger sets the logger for failed writes.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// NewWriter starts the writer goroutine. Close must be called to stop it.
func NewWriter(store Store, opts ...WriterOption) *Writer {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		limiter: rate.NewLimiter(rate.Every(DefaultMinWriteInterval), 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// Save queues msgs as the next snapshot. msgs is copied.
func (w *Writer) Save(msgs []Message) {
	w.enqueue(&writeOp{kind: opSave, msgs: persistable(msgs)})
}

// Clear queues removal of the snapshot.
func (w *Writer) Clear() {
	w.enqueue(&writeOp{kind: opClear})
}

func (w *Writer) enqueue(op *writeOp) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("snapshot dropped after close", "op", op.kind.String())
		return
	}
	w.pending = op
	w.cond.Broadcast()
}

// Load reads the stored snapshot once every queued write has been applied.
func (w *Writer) Load(ctx context.Context) ([]Message, error) {
	if err := w.Flush(ctx); err != nil && !errors.Is(err, ErrWriterClosed) {
		return nil, err
	}
	return w.store.Load(ctx)
}

// Flush waits until no write is pending or in progress. It returns the error
// of the last applied write, if any.
func (w *Writer) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for (w.pending != nil || w.busy) && ctx.Err() == nil {
		w.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.closed {
		return ErrWriterClosed
	}
	return w.lastErr
}

// Writes returns how many operations reached the store.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

// Close applies the pending write, stops the goroutine and closes the store.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	// Skip any remaining throttle delay; the last write still goes through.
	w.cancel()
	<-w.done
	return w.store.Close()
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for w.pending == nil && !w.closed {
			w.cond.Wait()
		}
		if w.pending == nil {
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		// Newer snapshots may replace the pending one while we wait here.
		_ = w.limiter.Wait(w.ctx)

		w.mu.Lock()
		op := w.pending
		w.pending = nil
		w.busy = op != nil
		w.mu.Unlock()
		if op == nil {
			continue
		}

		err := w.apply(op)

		w.mu.Lock()
		w.busy = false
		w.lastErr = err
		w.writes++
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

func (w *Writer) apply(op *writeOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case opSave:
		err = w.store.Save(ctx, op.msgs)
	case opClear:
		err = w.store.Clear(ctx)
	}
	if err != nil {
		w.logger.Warn("snapshot write failed", "op", op.kind.String(), "error", err)
	} else {
		w.logger.Debug("snapshot written", "op", op.kind.String(), "messages", len(op.msgs))
	}
	return err
}
