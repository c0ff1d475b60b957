package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openbridge/openbridge-backend/pkg/kv"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS kv_expires_at ON kv (expires_at) WHERE expires_at > 0;
`

// Store keeps keys in a single SQLite table. Expired rows are filtered on read
// and removed lazily.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database file at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection: SQLite serializes writers, and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = normal;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &Store{db: db}, nil
}

func expiry(ttl []time.Duration) int64 {
	if d := kv.TTLFrom(ttl); d > 0 {
		return time.Now().Add(d).UnixNano()
	}
	return 0
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiry(ttl))
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).
		Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND expires_at = ?`, key, expiresAt)
		return nil, kv.ErrNotFound
	}
	return value, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func keyArgs(keys []string) []any {
	args := make([]any, 0, len(keys)+1)
	args = append(args, time.Now().UnixNano())
	for _, k := range keys {
		args = append(args, k)
	}
	return args
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	live, err := s.Exists(ctx, keys...)
	if err != nil {
		return 0, err
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key IN (`+placeholders(len(keys))+`)`, args...); err != nil {
		return 0, fmt.Errorf("sqlite del: %w", err)
	}
	return live, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kv WHERE (expires_at = 0 OR expires_at >= ?) AND key IN (`+placeholders(len(keys))+`)`,
		keyArgs(keys)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite exists: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
