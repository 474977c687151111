package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrCorruptSnapshot is returned by Load when the stored snapshot cannot be
// decoded. The returned messages are empty in that case.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Store abstracts snapshot persistence (SQLite, JSON file, Redis, memory).
// A snapshot is the whole transcript of one profile; Save overwrites it.
// System-role entries are never written.
type Store interface {
	Load(ctx context.Context) ([]Message, error)
	Save(ctx context.Context, msgs []Message) error
	Clear(ctx context.Context) error
	Close() error
}

// Lister is implemented by stores that can enumerate every profile they hold.
type Lister interface {
	List(ctx context.Context) ([]SnapshotInfo, error)
}

// SnapshotInfo is a lightweight summary of a stored snapshot (for listing).
type SnapshotInfo struct {
	Profile   string
	Messages  int
	UpdatedAt time.Time
}

// DefaultProfile names the snapshot used when no profile is configured.
const DefaultProfile = "default"

// DataDir returns the default data directory (~/.local/share/streamchat).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "streamchat"), nil
}

// persistable returns msgs without system-role entries.
func persistable(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

func encodeSnapshot(msgs []Message) ([]byte, error) {
	data, err := json.Marshal(persistable(msgs))
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// decodeSnapshot parses a stored snapshot. Empty input means no snapshot.
// Entries without an id get a fresh one; unknown roles make the whole
// snapshot corrupt.
func decodeSnapshot(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	out := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		if !m.Role.valid() {
			return nil, fmt.Errorf("%w: entry %d has role %q", ErrCorruptSnapshot, i, m.Role)
		}
		if m.Role == RoleSystem {
			continue
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.IsError = m.Role == RoleError
		out = append(out, m)
	}
	return out, nil
}
