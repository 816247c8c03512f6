// Package cache persists market data responses in a small sqlite
// database shared across kiban processes. On-chain reads never land
// here. Freshness is decided at read time against the TTL and the
// stale-serve budget the store was opened with.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

type Store struct {
	db       *sql.DB
	lock     *flock.Flock
	ttl      time.Duration
	maxStale time.Duration
}

type Result struct {
	Hit   bool
	Value []byte
	Age   time.Duration

	// Stale means older than the TTL but still inside the stale-serve
	// budget. TooStale means past the budget entirely.
	Stale    bool
	TooStale bool
}

// DefaultPaths returns the cache database and lock file locations under
// the user cache directory.
func DefaultPaths() (dbPath, lockPath string, err error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", "", fmt.Errorf("resolve cache directory: %w", err)
	}
	dir := filepath.Join(base, "kiban")
	return filepath.Join(dir, "market.db"), filepath.Join(dir, "market.lock"), nil
}

// Open creates or opens the response store. Entries are considered
// fresh for ttl, servable while stale for another maxStale, and pruned
// beyond that.
func Open(path, lockPath string, ttl, maxStale time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	if maxStale < 0 {
		maxStale = 0
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS market_responses (key TEXT PRIMARY KEY, payload BLOB NOT NULL, fetched_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath), ttl: ttl, maxStale: maxStale}
	// Prune on startup to prevent unbounded growth.
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes every entry too old to ever be served again.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := time.Now().UTC().Add(-(s.ttl + s.maxStale)).Unix()
	_, err := s.db.Exec("DELETE FROM market_responses WHERE fetched_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

func (s *Store) Get(key string) (Result, error) {
	var payload []byte
	var fetchedUnix int64
	err := s.db.QueryRow("SELECT payload, fetched_at FROM market_responses WHERE key = ?", key).Scan(&payload, &fetchedUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{Hit: false}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	age := time.Since(time.Unix(fetchedUnix, 0).UTC())
	if age < 0 {
		age = 0
	}
	stale := age > s.ttl
	return Result{
		Hit:      true,
		Value:    payload,
		Age:      age,
		Stale:    stale,
		TooStale: stale && age > s.ttl+s.maxStale,
	}, nil
}

func (s *Store) Set(key string, payload []byte) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(`
		INSERT INTO market_responses (key, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload=excluded.payload,
			fetched_at=excluded.fetched_at
	`, key, payload, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
