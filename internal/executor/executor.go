// Package executor implements the Clean Executor: the only component
// permitted to mutate the filesystem. It re-audits every item
// immediately before acting (the TOCTOU hard gate), prefers trash over
// permanent deletion, and can stage a backup and roll back a
// partially-failed transaction.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dsklean/dsklean/internal/core"
	"github.com/dsklean/dsklean/internal/logger"
	"github.com/dsklean/dsklean/internal/metrics"
	"github.com/dsklean/dsklean/internal/trash"
)

// ErrConfirmationRequired is returned when a clean request exceeds
// opts.ConfirmOverBytes without a matching opts.ConfirmationToken.
var ErrConfirmationRequired = errors.New("executor: confirmation required for large deletion")

// Executor is the default core.Executor implementation.
type Executor struct {
	auditor  core.SecurityAuditor
	auditLog core.AuditLog
	trash    *trash.Manager
	log      logger.Logger
	metrics  core.Metrics
	now      func() time.Time
}

// New creates an Executor with no-op logging/metrics and no audit log.
func New(auditor core.SecurityAuditor) *Executor {
	return &Executor{
		auditor: auditor,
		log:     logger.NewNop(),
		metrics: metrics.NewNoop(),
		now:     time.Now,
	}
}

// NewWithDeps creates an Executor with explicit dependencies. Any nil
// dependency falls back to a safe no-op.
func NewWithDeps(auditor core.SecurityAuditor, auditLog core.AuditLog, t *trash.Manager, log logger.Logger, m core.Metrics) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Executor{auditor: auditor, auditLog: auditLog, trash: t, log: log, metrics: m, now: time.Now}
}

// Clean re-audits and deletes (or, in dry-run mode, reports on) every
// item. Items are processed under a bounded worker pool; a transaction
// that fails partway through is rolled back unless opts.Atomic is false
// or opts.AllowPartialCommit is true.
func (e *Executor) Clean(ctx context.Context, items []core.CleanableItem, opts core.CleanOptions) (core.CleanResult, error) {
	transactionID := core.NewItemID()
	result := core.CleanResult{TransactionID: transactionID, DryRun: opts.DryRun}

	var totalBytes int64
	for _, item := range items {
		totalBytes += item.SizeBytes
	}
	if opts.ConfirmOverBytes > 0 && totalBytes > opts.ConfirmOverBytes {
		if opts.ConfirmationToken == "" || opts.ConfirmationToken != confirmationToken(transactionID) {
			return result, core.NewError(core.KindConfiguration, "", ErrConfirmationRequired)
		}
	}

	var backupRef string
	if !opts.DryRun && opts.BackupBeforeDelete && opts.BackupProvider != nil {
		manifest := buildManifest(items)
		ref, err := opts.BackupProvider.Stage(ctx, manifest)
		if err != nil {
			return result, core.NewError(core.KindBackupFailed, "", err)
		}
		backupRef = ref
		result.BackupRef = ref
	}

	workers := opts.ConcurrencyLimit
	if workers <= 0 {
		workers = 4
	}
	if workers > len(items) {
		workers = len(items)
	}
	if workers == 0 {
		return result, nil
	}

	type indexed struct {
		idx  int
		item core.CleanableItem
	}
	jobs := make(chan indexed)
	results := make([]core.ItemResult, len(items))

	var aborted int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				mu.Lock()
				shouldAbort := opts.Atomic && !opts.AllowPartialCommit && aborted != 0
				mu.Unlock()
				if shouldAbort {
					results[job.idx] = core.ItemResult{Item: job.item, Outcome: core.OutcomeSkippedUser}
					continue
				}
				res := e.cleanOne(ctx, job.item, opts)
				results[job.idx] = res
				if res.Outcome == core.OutcomeFailed {
					mu.Lock()
					aborted++
					mu.Unlock()
				}
			}
		}()
	}
loop:
	for i, item := range items {
		select {
		case jobs <- indexed{idx: i, item: item}:
		case <-ctx.Done():
			break loop
		}
	}
	close(jobs)
	wg.Wait()

	if opts.Atomic && !opts.AllowPartialCommit && aborted > 0 && !opts.DryRun {
		e.rollback(ctx, results, backupRef, opts.BackupProvider)
	}

	for i, res := range results {
		if res.Item.Path == "" {
			res = core.ItemResult{Item: items[i], Outcome: core.OutcomeSkippedUser}
		}
		result.Items = append(result.Items, res)
		if res.Outcome == core.OutcomeDeleted {
			result.ReclaimedBytes += res.Item.SizeBytes
			e.metrics.IncItemsDeleted(res.Item.Category)
			e.metrics.AddBytesReclaimed(res.Item.SizeBytes)
		}
		if e.auditLog != nil {
			_ = e.auditLog.Append(ctx, core.NewCleanAuditRecord(res.Item.ID, transactionID, res))
		}
	}

	return result, nil
}

// cleanOne re-audits and, unless dry-run, deletes a single item.
func (e *Executor) cleanOne(ctx context.Context, item core.CleanableItem, opts core.CleanOptions) core.ItemResult {
	verdict := e.auditor.Audit(ctx, item.Path, core.AuditOptions{ScanRoot: item.Root})
	e.metrics.IncSafetyVerdict(verdict.Risk.String(), verdict.BlocksDeletion)
	if verdict.BlocksDeletion {
		e.log.Warn("clean skipped: blocked by auditor", logger.Path(item.Path), logger.F("reason", verdict.Reason))
		return core.ItemResult{Item: item, Outcome: core.OutcomeSkippedUnsafe}
	}
	if opts.RequireSafetyScore > 0 && item.Score < opts.RequireSafetyScore {
		return core.ItemResult{Item: item, Outcome: core.OutcomeSkippedUser}
	}

	if opts.DryRun {
		return core.ItemResult{Item: item, Outcome: core.OutcomeDeleted}
	}

	if e.trash != nil {
		trashPath, err := e.trash.MoveToTrash(item.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return core.ItemResult{Item: item, Outcome: core.OutcomeAlreadyDeleted}
			}
			e.log.Warn("trash failed", logger.Path(item.Path), logger.F("error", err.Error()))
			e.metrics.IncCleanErrors("trash_failed")
			return core.ItemResult{Item: item, Outcome: core.OutcomeFailed, Err: err}
		}
		return core.ItemResult{Item: item, Outcome: core.OutcomeDeleted, TrashPath: trashPath}
	}

	if err := os.Remove(item.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.ItemResult{Item: item, Outcome: core.OutcomeAlreadyDeleted}
		}
		e.log.Warn("delete failed", logger.Path(item.Path), logger.F("error", err.Error()))
		e.metrics.IncCleanErrors("delete_failed")
		return core.ItemResult{Item: item, Outcome: core.OutcomeFailed, Err: err}
	}
	return core.ItemResult{Item: item, Outcome: core.OutcomeDeleted}
}

// rollback restores every successfully deleted item: items moved to
// trash are restored via the trash manager, items unlinked directly fall
// back to backupRef if a backup was staged. Items that could not be
// restored either way are marked rolled-back-partial.
func (e *Executor) rollback(ctx context.Context, results []core.ItemResult, backupRef string, provider core.BackupProvider) {
	for i, res := range results {
		if res.Outcome != core.OutcomeDeleted {
			continue
		}
		if e.trash != nil && res.TrashPath != "" {
			if _, err := e.trash.Restore(res.TrashPath); err == nil {
				results[i].Outcome = core.OutcomeRolledBack
				continue
			}
			e.log.Warn("rollback restore failed", logger.Path(res.Item.Path))
		}
		if provider != nil && backupRef != "" {
			if data, err := provider.Retrieve(ctx, backupRef, res.Item.Path); err == nil {
				if writeErr := os.WriteFile(res.Item.Path, data, 0o644); writeErr == nil {
					results[i].Outcome = core.OutcomeRolledBack
					continue
				}
			}
		}
		results[i].Outcome = core.OutcomeRolledBackPartial
		e.log.Error("rollback could not restore item", logger.Path(res.Item.Path))
	}
}

func buildManifest(items []core.CleanableItem) core.BackupManifest {
	manifest := core.BackupManifest{}
	for _, item := range items {
		manifest.Items = append(manifest.Items, core.BackupManifestItem{
			Path:        item.Path,
			SizeBytes:   item.SizeBytes,
			Fingerprint: item.Fingerprint,
		})
	}
	return manifest
}

func confirmationToken(transactionID core.ItemID) string {
	return fmt.Sprintf("confirm-%s", transactionID.String())
}

var _ core.Executor = (*Executor)(nil)
