package auditlog

import (
	"context"
	"errors"

	"github.com/dsklean/dsklean/internal/core"
)

// Multi fans one audit record out to several sinks. The primary is the
// chain-of-record: it computes PrevHash/SelfHash, and that exact hashed
// record is mirrored to every additional sink so a SQLite mirror's rows
// always agree with the tamper-evident chain.
type Multi struct {
	primary *Chain
	mirrors []core.AuditLog
}

// NewMulti builds a fan-out log; primary is always the hash-chaining sink.
func NewMulti(primary *Chain, mirrors ...core.AuditLog) *Multi {
	return &Multi{primary: primary, mirrors: mirrors}
}

// Append writes to the primary first, then mirrors the resulting
// (now-hashed) record to every additional sink. Mirror failures are
// joined but do not undo the primary write: the tamper-evident chain of
// record must never be rolled back by a secondary sink's failure.
func (m *Multi) Append(ctx context.Context, rec core.AuditLogRecord) error {
	hashed, err := m.primary.AppendAndReturn(ctx, rec)

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, sink := range m.mirrors {
		if err := sink.Append(ctx, hashed); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Verify delegates to the primary (chain-hashing) sink; mirrors are
// advisory copies and are not independently authoritative.
func (m *Multi) Verify(ctx context.Context) (bool, error) {
	return m.primary.Verify(ctx)
}

// Close closes every sink, joining any errors encountered.
func (m *Multi) Close() error {
	var errs []error
	if err := m.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, sink := range m.mirrors {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

var _ core.AuditLog = (*Multi)(nil)
