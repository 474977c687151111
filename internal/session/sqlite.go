package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    key        TEXT PRIMARY KEY,
    messages   TEXT NOT NULL DEFAULT '[]',
    message_count INTEGER DEFAULT 0,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_updated_at ON snapshots(updated_at);
`

// Fixed-width so updated_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store backed by a SQLite database. Every profile
// is one row keyed by its name.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

var (
	_ Store  = (*SQLiteStore)(nil)
	_ Lister = (*SQLiteStore)(nil)
)

// DefaultDBPath returns the default database path (~/.local/share/streamchat/snapshots.db).
func DefaultDBPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "snapshots.db"), nil
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists. profile selects the row this store reads and writes.
func NewSQLiteStore(dbPath, profile string) (*SQLiteStore, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets `streamchat history` read while a chat session writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db, key: profile}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Message, error) {
	var msgJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM snapshots WHERE key = ?`, s.key).Scan(&msgJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot([]byte(msgJSON))
}

func (s *SQLiteStore) Save(ctx context.Context, msgs []Message) error {
	data, err := encodeSnapshot(msgs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (key, messages, message_count, updated_at)
		VALUES (?, ?, ?, ?)`,
		s.key,
		string(data),
		len(persistable(msgs)),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE key = ?", s.key); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, message_count, updated_at
		FROM snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var updatedAt string
		if err := rows.Scan(&info.Profile, &info.Messages, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
