// Package scanner implements the Parallel Scanner: a bounded worker-pool
// filesystem walk that classifies entries into categories and assembles
// a ScanResults for downstream scoring and recommendation.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dsklean/dsklean/internal/core"
	"github.com/dsklean/dsklean/internal/logger"
)

// dirJob is one directory queued for a worker to list.
type dirJob struct {
	root string
	path string
}

type cycleKey struct {
	dev uint64
	ino uint64
}

// Scanner is the bounded worker-pool implementation of core.Scanner.
type Scanner struct {
	log   logger.Logger
	rules Rules
}

// New builds a Scanner using the default classification rules.
func New() *Scanner { return &Scanner{log: logger.NewNop(), rules: DefaultRules()} }

// NewWithRules builds a Scanner with custom classification rules.
func NewWithRules(rules Rules, log logger.Logger) *Scanner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scanner{log: log, rules: rules}
}

// Scan walks roots concurrently (bounded by cfg.MaxConcurrency workers),
// classifying every entry that matches one of categories into a
// CleanableItem. It never follows symlinks onto a different device and,
// where the platform reports device and inode numbers, never revisits a
// (device, inode) pair already seen in this scan.
func (s *Scanner) Scan(ctx context.Context, categories core.ScanCategories, roots []string, cfg core.ScanConfig) (core.ScanResults, error) {
	workers := cfg.MaxConcurrency
	if workers <= 0 {
		workers = 8
	}

	results := core.ScanResults{
		SessionID:  core.NewItemID(),
		ByCategory: make(map[core.Category][]core.CleanableItem),
	}

	var (
		mu        sync.Mutex
		workerWG  sync.WaitGroup
		itemsSeen int64
		cancelled int32
		pending   int64
		closeOnce sync.Once
	)
	seen := make(map[cycleKey]struct{})
	var seenMu sync.Mutex

	jobs := make(chan dirJob, 256)
	done := make(chan struct{})
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	enqueue := func(j dirJob) {
		atomic.AddInt64(&pending, 1)
		select {
		case jobs <- j:
		case <-ctx.Done():
			if atomic.AddInt64(&pending, -1) == 0 {
				closeDone()
			}
		}
	}

	worker := func() {
		defer workerWG.Done()
		for {
			select {
			case <-done:
				return
			case j, ok := <-jobs:
				if !ok {
					return
				}
				s.processDir(ctx, j, categories, cfg, &mu, &results, &itemsSeen, seen, &seenMu, enqueue)
				if atomic.AddInt64(&pending, -1) == 0 {
					closeDone()
				}
			}
		}
	}

	workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}

	// All initial Add(1)s (via enqueue, above the pending counter) happen
	// in this loop before any goroutine can observe pending == 0, so the
	// close-on-zero below can only fire once real work has fully drained:
	// a job's own decrement always happens after its subdir enqueues
	// (inside processDir), so pending never dips to zero mid-walk.
	for _, root := range roots {
		root = core.Normalize(root)
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		enqueue(dirJob{root: root, path: root})
	}
	if atomic.LoadInt64(&pending) == 0 {
		closeDone()
	}

	select {
	case <-ctx.Done():
		atomic.StoreInt32(&cancelled, 1)
		closeDone()
	case <-done:
	}
	if ctx.Err() != nil {
		atomic.StoreInt32(&cancelled, 1)
	}
	close(jobs)
	workerWG.Wait()

	if cfg.Progress != nil {
		select {
		case cfg.Progress <- core.ScanProgress{RootsDone: len(roots), RootsTotal: len(roots), ItemsFound: int(atomic.LoadInt64(&itemsSeen))}:
		default:
		}
	}

	results.Cancelled = atomic.LoadInt32(&cancelled) == 1
	if err := ctx.Err(); err != nil && results.Cancelled {
		return results, err
	}
	return results, nil
}

func (s *Scanner) processDir(
	ctx context.Context,
	j dirJob,
	categories core.ScanCategories,
	cfg core.ScanConfig,
	mu *sync.Mutex,
	results *core.ScanResults,
	itemsSeen *int64,
	seen map[cycleKey]struct{},
	seenMu *sync.Mutex,
	enqueue func(dirJob),
) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	entries, err := os.ReadDir(j.path)
	if err != nil {
		s.log.Warn("scanner: read dir failed", logger.Path(j.path), logger.F("error", err.Error()))
		return
	}

	var rootDev uint64
	if rootInfo, err := os.Lstat(j.root); err == nil {
		rootDev, _ = getDeviceID(rootInfo)
	}

	for _, entry := range entries {
		if !cfg.IncludeHidden && len(entry.Name()) > 0 && entry.Name()[0] == '.' {
			continue
		}
		full := filepath.Join(j.path, entry.Name())

		info, err := entry.Info()
		if err != nil {
			continue
		}

		isSymlink := info.Mode()&os.ModeSymlink != 0
		var linkTarget string
		if isSymlink {
			if target, err := os.Readlink(full); err == nil {
				if !filepath.IsAbs(target) {
					target = filepath.Join(filepath.Dir(full), target)
				}
				linkTarget = filepath.Clean(target)
			}
			if !cfg.FollowSymlinks {
				continue
			}
			if resolved, err := os.Stat(full); err == nil {
				if d, ok := getDeviceID(resolved); ok && d != rootDev {
					continue
				}
				info = resolved
			} else {
				continue
			}
		}

		dev, devOK := getDeviceID(info)
		ino, inoOK := getInode(info)
		if devOK && inoOK {
			key := cycleKey{dev: dev, ino: ino}
			seenMu.Lock()
			_, revisited := seen[key]
			if !revisited {
				seen[key] = struct{}{}
			}
			seenMu.Unlock()
			if revisited {
				continue
			}
		}

		if excluded(cfg.Exclusions, full, entry.Name()) {
			continue
		}

		if info.IsDir() {
			if cat, ok := s.rules.classify(full, entry.Name(), true, 0); ok && categories.Contains(cat) {
				item := s.buildItem(j.root, full, entry.Name(), core.TargetDir, cat, 0, info, dev, ino, rootDev, isSymlink, linkTarget)
				item, safe := s.score(ctx, cfg, item)
				s.record(mu, results, itemsSeen, item, safe)
				// A matched directory (e.g. node_modules) is treated as
				// a single reclaimable unit; its contents aren't walked
				// individually, but size is still attributed below via
				// a synchronous subtree walk.
				size := s.dirSize(full)
				mu.Lock()
				idx := len(results.ByCategory[cat]) - 1
				if idx >= 0 {
					results.ByCategory[cat][idx].SizeBytes = size
				}
				for i := range results.Items {
					if results.Items[i].ID == item.ID {
						results.Items[i].SizeBytes = size
					}
				}
				results.TotalSize += size
				if safe {
					results.SafeTotalSize += size
				}
				mu.Unlock()
				continue
			}
			if cfg.Cache != nil {
				if modInfo, err := os.Stat(full); err == nil {
					if summary, ok := cfg.Cache.Summary(context.Background(), full); ok && summary.ModTimeMax.Equal(modInfo.ModTime()) {
						continue
					}
				}
			}
			enqueue(dirJob{root: j.root, path: full})
			continue
		}

		cat, ok := s.rules.classify(full, entry.Name(), false, info.Size())
		if !ok || !categories.Contains(cat) {
			continue
		}
		if cfg.MinSizeBytes > 0 && info.Size() < cfg.MinSizeBytes {
			continue
		}
		if cfg.MinAgeDays > 0 && time.Since(info.ModTime()) < time.Duration(cfg.MinAgeDays)*24*time.Hour {
			continue
		}
		item := s.buildItem(j.root, full, entry.Name(), core.TargetFile, cat, info.Size(), info, dev, ino, rootDev, isSymlink, linkTarget)
		item, safe := s.score(ctx, cfg, item)
		s.record(mu, results, itemsSeen, item, safe)
	}
}

// score runs the first-pass safety scoring described in spec §4.2: the
// Detector is consulted synchronously for every item, but the Auditor is
// only consulted lazily, for items that would otherwise qualify as safe,
// since its verdict can only ever lower the score.
func (s *Scanner) score(ctx context.Context, cfg core.ScanConfig, item core.CleanableItem) (core.CleanableItem, bool) {
	if cfg.Scorer == nil {
		return item, false
	}
	item.Score = cfg.Scorer.SafetyScore(item)
	blocksDeletion := false
	if item.Score >= core.SafeThreshold && cfg.Auditor != nil {
		verdict := cfg.Auditor.Audit(ctx, item.Path, core.AuditOptions{ScanRoot: item.Root})
		item.Score = core.CapScoreByRisk(item.Score, verdict.Risk)
		blocksDeletion = verdict.BlocksDeletion
	}
	safe := item.Score >= core.SafeThreshold && !blocksDeletion
	return item, safe
}

func (s *Scanner) buildItem(root, path, name string, tt core.TargetType, cat core.Category, size int64, info os.FileInfo, dev, ino, rootDev uint64, isSymlink bool, linkTarget string) core.CleanableItem {
	accessTime := info.ModTime()
	return core.CleanableItem{
		ID:           core.NewItemID(),
		Root:         root,
		Path:         path,
		Name:         name,
		Type:         tt,
		Category:     cat,
		SizeBytes:    size,
		ModTime:      info.ModTime(),
		AccessTime:   accessTime,
		IsSymlink:    isSymlink,
		LinkTarget:   linkTarget,
		DeviceID:     dev,
		Inode:        ino,
		RootDeviceID: rootDev,
	}
}

func (s *Scanner) record(mu *sync.Mutex, results *core.ScanResults, itemsSeen *int64, item core.CleanableItem, safe bool) {
	mu.Lock()
	results.Items = append(results.Items, item)
	results.ByCategory[item.Category] = append(results.ByCategory[item.Category], item)
	results.TotalSize += item.SizeBytes
	if safe {
		results.SafeTotalSize += item.SizeBytes
	}
	mu.Unlock()
	atomic.AddInt64(itemsSeen, 1)
}

// dirSize sums file sizes under dir without applying category rules;
// used to size a directory that was itself matched as a single unit
// (e.g. node_modules) rather than walked entry-by-entry.
func (s *Scanner) dirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

var _ core.Scanner = (*Scanner)(nil)
