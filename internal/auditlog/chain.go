// Package auditlog implements the Audit Log: the append-only, tamper
// evident record of every scan and clean decision. The primary sink is a
// chain-hashed NDJSON file (Chain); a SQLite sink and a fan-out combinator
// are also provided for sites that want queryable retention alongside the
// tamper-evident trail.
package auditlog

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dsklean/dsklean/internal/core"
)

// genesisHash seeds the chain for a brand-new log file: 64 hex zeros.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Chain is an append-only NDJSON audit log where every record's SelfHash
// commits to its own fields plus the prior record's SelfHash, so any
// edit or deletion of a historical line is detectable by Verify.
type Chain struct {
	mu       sync.Mutex
	path     string
	f        *os.File
	w        *bufio.Writer
	prevHash string
	writeErr error
}

// NewChain opens (or creates) a chain-hashed audit log at path, replaying
// the last record to resume the hash chain.
func NewChain(path string) (*Chain, error) {
	last, err := lastSelfHash(path)
	if err != nil {
		return nil, core.NewError(core.KindIO, path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, core.NewError(core.KindIO, path, err)
	}

	prev := genesisHash
	if last != "" {
		prev = last
	}
	return &Chain{path: path, f: f, w: bufio.NewWriterSize(f, 64*1024), prevHash: prev}, nil
}

func lastSelfHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	var last string
	dec := json.NewDecoder(f)
	for {
		var rec core.AuditLogRecord
		if err := dec.Decode(&rec); err != nil {
			break
		}
		last = rec.SelfHash
	}
	return last, nil
}

// Append writes one record, chaining it onto the prior SelfHash. It is
// fail-open for callers (errors are reported but never panic), matching
// the pipeline's stated error-handling design: auditing must not itself
// block a clean operation, but failures are never silently swallowed.
func (c *Chain) Append(ctx context.Context, rec core.AuditLogRecord) error {
	_, err := c.AppendAndReturn(ctx, rec)
	return err
}

// AppendAndReturn behaves like Append but also returns the record with
// its PrevHash/SelfHash populated, so a fan-out combinator can mirror the
// exact hashed record to secondary sinks.
func (c *Chain) AppendAndReturn(_ context.Context, rec core.AuditLogRecord) (core.AuditLogRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.PrevHash = c.prevHash
	rec.SelfHash = computeSelfHash(rec)

	b, err := json.Marshal(rec)
	if err != nil {
		c.writeErr = err
		return rec, core.NewError(core.KindIO, c.path, err)
	}
	if _, err := c.w.Write(append(b, '\n')); err != nil {
		c.writeErr = err
		return rec, core.NewError(core.KindIO, c.path, err)
	}
	if err := c.w.Flush(); err != nil {
		c.writeErr = err
		return rec, core.NewError(core.KindIO, c.path, err)
	}

	c.prevHash = rec.SelfHash
	return rec, nil
}

// Verify replays the entire log, recomputing every SelfHash and
// confirming the PrevHash chain is unbroken.
func (c *Chain) Verify(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, core.NewError(core.KindIO, c.path, err)
	}
	defer f.Close()

	expectedPrev := genesisHash
	dec := json.NewDecoder(f)
	line := 0
	for {
		var rec core.AuditLogRecord
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return false, core.NewError(core.KindIntegrity, c.path,
				fmt.Errorf("record %d: %w", line+1, err))
		}
		line++
		if rec.PrevHash != expectedPrev {
			return false, core.NewError(core.KindIntegrity, c.path,
				fmt.Errorf("record %d: prev_hash mismatch", line))
		}
		want := rec.SelfHash
		got := computeSelfHash(core.AuditLogRecord{
			Timestamp:     rec.Timestamp,
			SessionID:     rec.SessionID,
			TransactionID: rec.TransactionID,
			OperationKind: rec.OperationKind,
			TargetPath:    rec.TargetPath,
			Detail:        rec.Detail,
			PrevHash:      rec.PrevHash,
		})
		if got != want {
			return false, core.NewError(core.KindIntegrity, c.path,
				fmt.Errorf("record %d: self_hash mismatch", line))
		}
		expectedPrev = rec.SelfHash
	}
	return true, nil
}

// Close flushes and closes the underlying file.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	_ = c.w.Flush()
	err := c.f.Close()
	c.f = nil
	return err
}

// Err returns the first write error encountered, if any.
func (c *Chain) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

// computeSelfHash hashes the record's canonical field encoding together
// with its PrevHash; SelfHash itself is never part of the input.
func computeSelfHash(rec core.AuditLogRecord) string {
	detail, _ := json.Marshal(rec.Detail)
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s|%s|%s",
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.SessionID.String(), rec.TransactionID.String(),
		rec.OperationKind, rec.TargetPath, rec.PrevHash, detail)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

var _ core.AuditLog = (*Chain)(nil)
