// Package indexcache implements the Index Cache: an advisory, SQLite-backed
// store that lets the Parallel Scanner skip unchanged subtrees and reuse
// previously computed content fingerprints on repeat scans. Every method is
// safe to treat as a cold-cache miss; nothing here is ever authoritative
// over what the filesystem reports.
package indexcache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"sync"
	"time"

	_ "modernc.org/sqlite" // driver registration

	"github.com/dsklean/dsklean/internal/core"
)

// Store is the SQLite-backed IndexCache implementation.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Config configures the Index Cache.
type Config struct {
	Path string
}

// Open opens or creates the index cache database and its schema.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, core.NewError(core.KindIO, cfg.Path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, core.NewError(core.KindIO, cfg.Path, err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, core.NewError(core.KindIO, cfg.Path, err)
	}
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS dir_summary (
		dir TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		total_size INTEGER NOT NULL,
		mod_time_max TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS fingerprint (
		path TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		mod_time TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		last_seen_session TEXT,
		updated_at TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Summary returns the cached entry count/size/freshest-mtime for dir, if any.
func (s *Store) Summary(ctx context.Context, dir string) (core.DirSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	var totalSize int64
	var modTimeMax string
	err := s.db.QueryRowContext(ctx,
		`SELECT count, total_size, mod_time_max FROM dir_summary WHERE dir = ?`, dir,
	).Scan(&count, &totalSize, &modTimeMax)
	if err != nil {
		return core.DirSummary{}, false
	}
	parsed, _ := time.Parse(time.RFC3339Nano, modTimeMax)
	return core.DirSummary{Count: count, TotalSize: totalSize, ModTimeMax: parsed}, true
}

// PutSummary upserts a directory's cached summary.
func (s *Store) PutSummary(ctx context.Context, dir string, summary core.DirSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dir_summary (dir, count, total_size, mod_time_max, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(dir) DO UPDATE SET
			count = excluded.count,
			total_size = excluded.total_size,
			mod_time_max = excluded.mod_time_max,
			updated_at = excluded.updated_at
	`, dir, summary.Count, summary.TotalSize,
		summary.ModTimeMax.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.NewError(core.KindIO, dir, err)
	}
	return nil
}

// Fingerprint returns a previously computed content fingerprint for path,
// but only if size and modTime still match what was recorded — any drift
// is treated as a cache miss, never as stale truth.
func (s *Store) Fingerprint(ctx context.Context, path string, size int64, modTime time.Time) (*[32]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var storedSize int64
	var storedMod, fpHex string
	err := s.db.QueryRowContext(ctx,
		`SELECT size, mod_time, fingerprint FROM fingerprint WHERE path = ?`, path,
	).Scan(&storedSize, &storedMod, &fpHex)
	if err != nil {
		return nil, false
	}
	if storedSize != size {
		return nil, false
	}
	parsedMod, err := time.Parse(time.RFC3339Nano, storedMod)
	if err != nil || !parsedMod.Equal(modTime) {
		return nil, false
	}
	raw, err := hex.DecodeString(fpHex)
	if err != nil || len(raw) != 32 {
		return nil, false
	}
	var fp [32]byte
	copy(fp[:], raw)
	return &fp, true
}

// PutFingerprint persists a computed fingerprint keyed by path, size, and
// mtime so a later scan can short-circuit re-hashing unchanged content.
func (s *Store) PutFingerprint(ctx context.Context, entry core.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fpHex := ""
	if entry.Fingerprint != nil {
		fpHex = hex.EncodeToString(entry.Fingerprint[:])
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprint (path, size, mod_time, fingerprint, last_seen_session, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			fingerprint = excluded.fingerprint,
			last_seen_session = excluded.last_seen_session,
			updated_at = excluded.updated_at
	`, entry.Path, entry.Size, entry.ModTime.UTC().Format(time.RFC3339Nano), fpHex,
		entry.LastSeenSessionID.String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return core.NewError(core.KindIO, entry.Path, err)
	}
	return nil
}

// Persist is a no-op for the SQLite backend: every write already commits.
// It exists so alternate (e.g. in-memory) implementations of IndexCache
// have somewhere to flush to disk on demand.
func (s *Store) Persist(_ context.Context) error {
	return nil
}

// Load is a no-op for the SQLite backend: the database is already the
// live store, nothing needs to be read into memory first.
func (s *Store) Load(_ context.Context) error {
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Prune removes cache rows not refreshed within maxAge, keeping the cache
// from growing unbounded across the lifetime of a long-lived install.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx, `DELETE FROM fingerprint WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()

	result2, err := s.db.ExecContext(ctx, `DELETE FROM dir_summary WHERE updated_at < ?`, cutoff)
	if err != nil {
		return n, err
	}
	n2, _ := result2.RowsAffected()
	return n + n2, nil
}

var _ core.IndexCache = (*Store)(nil)
