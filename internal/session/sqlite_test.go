package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath, "default")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_ProfilesShareDatabase(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	work, err := NewSQLiteStore(dbPath, "work")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer work.Close()
	home, err := NewSQLiteStore(dbPath, "home")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer home.Close()

	if err := work.Save(ctx, sampleTranscript()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := home.Save(ctx, sampleTranscript()[:1]); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := home.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("home has %d messages, want 1", len(got))
	}

	infos, err := work.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List len = %d, want 2", len(infos))
	}
	// Ordered by updated_at DESC.
	if infos[0].Profile != "home" {
		t.Errorf("first = %q, want %q", infos[0].Profile, "home")
	}
	if infos[1].Messages != 3 {
		t.Errorf("work count = %d, want 3", infos[1].Messages)
	}
	if infos[0].UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set after Save")
	}
}

func TestSQLiteStore_ClearOnlyOwnProfile(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	a, _ := NewSQLiteStore(dbPath, "a")
	defer a.Close()
	b, _ := NewSQLiteStore(dbPath, "b")
	defer b.Close()

	a.Save(ctx, sampleTranscript())
	b.Save(ctx, sampleTranscript())
	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := b.Load(ctx); len(got) != 3 {
		t.Errorf("clearing a removed b's snapshot")
	}
}

func TestSQLiteStore_Corrupt(t *testing.T) {
	store := newTestStore(t)
	_, err := store.db.Exec(`INSERT INTO snapshots (key, messages, updated_at) VALUES (?, ?, ?)`,
		"default", "[{oops", "2025-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := store.Load(context.Background())
	if !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("expected ErrCorruptSnapshot, got %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	s1, err := NewSQLiteStore(dbPath, "")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s1.Save(ctx, sampleTranscript()); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(dbPath, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assertSameMessages(t, got, sampleTranscript())
}
