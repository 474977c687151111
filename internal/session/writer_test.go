package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// gatedStore wraps MemoryStore; while gate is non-nil every write blocks on it.
type gatedStore struct {
	*MemoryStore

	mu      sync.Mutex
	gate    chan struct{}
	started chan struct{}
	saves   int
	clears  int
	closed  bool
}

func newGatedStore() *gatedStore {
	return &gatedStore{MemoryStore: NewMemoryStore(), started: make(chan struct{}, 16)}
}

func (s *gatedStore) block() {
	s.mu.Lock()
	s.gate = make(chan struct{})
	s.mu.Unlock()
}

func (s *gatedStore) release() {
	s.mu.Lock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
	s.mu.Unlock()
}

func (s *gatedStore) wait() {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	s.started <- struct{}{}
	if gate != nil {
		<-gate
	}
}

func (s *gatedStore) Save(ctx context.Context, msgs []Message) error {
	s.wait()
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, msgs)
}

func (s *gatedStore) Clear(ctx context.Context) error {
	s.wait()
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
	return s.MemoryStore.Clear(ctx)
}

func (s *gatedStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *gatedStore) counts() (saves, clears int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.clears
}

func msgsWith(contents ...string) []Message {
	out := make([]Message, len(contents))
	for i, c := range contents {
		out[i] = Message{ID: c, Role: RoleUser, Content: c, Timestamp: t0}
	}
	return out
}

func flush(t *testing.T, w *Writer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestWriter_LatestWins(t *testing.T) {
	store := newGatedStore()
	w := NewWriter(store, WithMinWriteInterval(0))
	defer w.Close()

	store.block()
	w.Save(msgsWith("a"))
	<-store.started // first write is in progress and blocked

	w.Save(msgsWith("a", "b"))
	w.Save(msgsWith("a", "b", "c"))
	store.release()
	flush(t, w)

	got, _ := store.Load(context.Background())
	if len(got) != 3 {
		t.Fatalf("stored %d messages, want 3", len(got))
	}
	if saves, _ := store.counts(); saves != 2 {
		t.Errorf("saves = %d, want 2 (the middle snapshot is superseded)", saves)
	}
}

func TestWriter_ClearSupersedesQueuedSave(t *testing.T) {
	store := newGatedStore()
	w := NewWriter(store, WithMinWriteInterval(0))
	defer w.Close()

	store.block()
	w.Save(msgsWith("a"))
	<-store.started

	w.Save(msgsWith("a", "b"))
	w.Clear()
	store.release()
	flush(t, w)

	got, _ := store.Load(context.Background())
	if len(got) != 0 {
		t.Errorf("stale save resurrected %d messages after clear", len(got))
	}
	saves, clears := store.counts()
	if saves != 1 || clears != 1 {
		t.Errorf("saves/clears = %d/%d, want 1/1", saves, clears)
	}
}

func TestWriter_SaveAfterClearWins(t *testing.T) {
	store := newGatedStore()
	w := NewWriter(store, WithMinWriteInterval(0))
	defer w.Close()

	w.Clear()
	w.Save(msgsWith("new"))
	flush(t, w)

	got, _ := store.Load(context.Background())
	if len(got) != 1 || got[0].Content != "new" {
		t.Errorf("got %+v, want the post-clear snapshot", got)
	}
}

func TestWriter_FlushHonorsContext(t *testing.T) {
	store := newGatedStore()
	w := NewWriter(store, WithMinWriteInterval(0))
	defer func() {
		store.release()
		w.Close()
	}()

	store.block()
	w.Save(msgsWith("a"))
	<-store.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush = %v, want DeadlineExceeded", err)
	}
}

func TestWriter_ThrottleCoalescesAndCloseDrains(t *testing.T) {
	store := newGatedStore()
	w := NewWriter(store, WithMinWriteInterval(time.Hour))

	w.Save(msgsWith("a"))
	flush(t, w) // the limiter starts with one token

	w.Save(msgsWith("a", "b"))
	w.Save(msgsWith("a", "b", "c"))
	time.Sleep(20 * time.Millisecond)
	if saves, _ := store.counts(); saves != 1 {
		t.Fatalf("saves = %d before the interval elapsed, want 1", saves)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if saves, _ := store.counts(); saves != 2 {
		t.Errorf("saves = %d after Close, want 2", saves)
	}
	got, _ := store.MemoryStore.Load(context.Background())
	if len(got) != 3 {
		t.Errorf("Close should write the latest snapshot, got %d messages", len(got))
	}
	if !store.closed {
		t.Error("Close should close the store")
	}
}

func TestWriter_DropsAfterClose(t *testing.T) {
	store := newGatedStore()
	w := NewWriter(store, WithMinWriteInterval(0))
	w.Close()
	w.Save(msgsWith("late"))

	if saves, _ := store.counts(); saves != 0 {
		t.Errorf("saves = %d, want 0", saves)
	}
	if err := w.Flush(context.Background()); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Flush after Close = %v, want ErrWriterClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

type failingStore struct{ MemoryStore }

func (*failingStore) Save(context.Context, []Message) error { return errors.New("disk full") }

func TestWriter_FlushReportsLastError(t *testing.T) {
	w := NewWriter(&failingStore{}, WithMinWriteInterval(0))
	defer w.Close()
	w.Save(msgsWith("a"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Flush(ctx); err == nil || err.Error() != "disk full" {
		t.Errorf("Flush = %v, want disk full", err)
	}
}
