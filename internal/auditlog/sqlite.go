package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // driver registration

	"github.com/dsklean/dsklean/internal/core"
)

// SQLiteSink persists audit records to a queryable SQLite database
// alongside the tamper-evident Chain. It does not itself verify a hash
// chain (that's Chain's job) but stores each record's chain hashes
// verbatim so a cross-check against the primary log remains possible.
type SQLiteSink struct {
	db *sql.DB
	mu sync.Mutex
}

// SQLiteConfig configures the SQLite audit sink.
type SQLiteConfig struct {
	Path      string
	Retention time.Duration // 0 = keep forever
}

// NewSQLiteSink opens or creates the audit database and its schema.
func NewSQLiteSink(cfg SQLiteConfig) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createAuditSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func createAuditSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		session_id TEXT NOT NULL,
		transaction_id TEXT,
		operation_kind TEXT NOT NULL,
		target_path TEXT,
		detail TEXT,
		prev_hash TEXT NOT NULL,
		self_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation_kind);
	CREATE INDEX IF NOT EXISTS idx_audit_path ON audit_log(target_path);
	`
	_, err := db.Exec(schema)
	return err
}

// Append inserts the record as-is; PrevHash/SelfHash are expected to have
// already been computed by a Chain upstream of this sink (see Multi).
func (s *SQLiteSink) Append(ctx context.Context, rec core.AuditLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detailJSON := ""
	if len(rec.Detail) > 0 {
		if b, err := json.Marshal(rec.Detail); err == nil {
			detailJSON = string(b)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, session_id, transaction_id, operation_kind, target_path, detail, prev_hash, self_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.SessionID.String(),
		rec.TransactionID.String(),
		rec.OperationKind,
		rec.TargetPath,
		detailJSON,
		rec.PrevHash,
		rec.SelfHash,
	)
	if err != nil {
		return core.NewError(core.KindIO, rec.TargetPath, err)
	}
	return nil
}

// Verify recomputes nothing itself (the chain's own file is authoritative)
// but reports whether every stored row still carries a non-empty self_hash,
// catching gross corruption such as truncated inserts.
func (s *SQLiteSink) Verify(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var badCount int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE self_hash = '' OR self_hash IS NULL`).Scan(&badCount)
	if err != nil {
		return false, core.NewError(core.KindIO, "", err)
	}
	return badCount == 0, nil
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// QueryFilter narrows a Query call.
type QueryFilter struct {
	Since         time.Time
	Until         time.Time
	OperationKind string
	PathContains  string
	Limit         int
}

// Query retrieves audit records matching filter, most recent first.
func (s *SQLiteSink) Query(ctx context.Context, filter QueryFilter) ([]core.AuditLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT timestamp, session_id, transaction_id, operation_kind, target_path, detail, prev_hash, self_hash FROM audit_log WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	if filter.OperationKind != "" {
		query += " AND operation_kind = ?"
		args = append(args, filter.OperationKind)
	}
	if filter.PathContains != "" {
		query += " AND target_path LIKE ?"
		args = append(args, "%"+filter.PathContains+"%")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []core.AuditLogRecord
	for rows.Next() {
		var ts, sessionID, txID, detailJSON string
		var rec core.AuditLogRecord
		if err := rows.Scan(&ts, &sessionID, &txID, &rec.OperationKind, &rec.TargetPath, &detailJSON, &rec.PrevHash, &rec.SelfHash); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if detailJSON != "" {
			_ = json.Unmarshal([]byte(detailJSON), &rec.Detail)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes rows older than the given duration and returns the count removed.
func (s *SQLiteSink) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Stats is summary statistics over the audit log, for the daemon's
// /api/audit/stats endpoint.
type Stats struct {
	TotalRecords int64
	FirstRecord  time.Time
	LastRecord   time.Time
	ItemsDeleted int64
}

// Stats computes summary statistics from the audit log.
func (s *SQLiteSink) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&st.TotalRecords); err != nil {
		return nil, err
	}

	var firstTS, lastTS sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM audit_log").Scan(&firstTS, &lastTS); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if firstTS.Valid {
		st.FirstRecord, _ = time.Parse(time.RFC3339Nano, firstTS.String)
	}
	if lastTS.Valid {
		st.LastRecord, _ = time.Parse(time.RFC3339Nano, lastTS.String)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log WHERE operation_kind = 'clean'").Scan(&st.ItemsDeleted); err != nil {
		return nil, err
	}

	return st, nil
}

var _ core.AuditLog = (*SQLiteSink)(nil)
