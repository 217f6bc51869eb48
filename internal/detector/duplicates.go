package detector

import (
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dsklean/dsklean/internal/core"
)

// sampleSize is the number of bytes read from the head and tail of a file
// before committing to a full-content hash. Mirrors the progressive
// "don't read the same byte twice" strategy: most false-positive
// size-matches are rejected after a head sample alone.
const sampleSize = 64 * 1024

// DuplicateConfig tunes FindDuplicates.
type DuplicateConfig struct {
	// IncludeZeroByteDuplicates controls whether zero-length files (which
	// are trivially "identical" and rarely worth reclaiming) are grouped.
	IncludeZeroByteDuplicates bool
	MaxConcurrency            int
	Cache                     core.IndexCache // optional fingerprint cache
}

// Detector implements core.DuplicateDetector via progressive hashing:
// size bucket -> head/tail sample -> full SHA-256 confirmation.
type Detector struct {
	cfg DuplicateConfig
}

// NewDetector builds a Detector with the given configuration.
func NewDetector(cfg DuplicateConfig) *Detector {
	return &Detector{cfg: cfg}
}

// FindDuplicates groups items with byte-identical content. Items that
// cannot be read are skipped rather than failing the whole scan.
func (d *Detector) FindDuplicates(ctx context.Context, items []core.CleanableItem) ([]core.DuplicateGroup, error) {
	bySize := make(map[int64][]core.CleanableItem)
	for _, item := range items {
		if item.Type == core.TargetDir {
			continue
		}
		if item.SizeBytes == 0 && !d.cfg.IncludeZeroByteDuplicates {
			continue
		}
		bySize[item.SizeBytes] = append(bySize[item.SizeBytes], item)
	}

	var candidates []core.CleanableItem
	for _, group := range bySize {
		if len(group) > 1 {
			candidates = append(candidates, group...)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	samples := d.hashAll(ctx, candidates, sampleHash)
	bySample := bucketBy(candidates, samples)

	var toFullHash []core.CleanableItem
	for _, group := range bySample {
		if len(group) > 1 {
			toFullHash = append(toFullHash, group...)
		}
	}
	if len(toFullHash) == 0 {
		return nil, nil
	}

	full := d.hashAll(ctx, toFullHash, fullHash)
	byFull := bucketBy(toFullHash, full)

	var groups []core.DuplicateGroup
	for hash, members := range byFull {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			di, dj := pathDepth(members[i].Path), pathDepth(members[j].Path)
			if di != dj {
				return di < dj
			}
			if !members[i].ModTime.Equal(members[j].ModTime) {
				return members[i].ModTime.Before(members[j].ModTime)
			}
			return members[i].Path < members[j].Path
		})
		groups = append(groups, core.DuplicateGroup{Fingerprint: hash, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Members[0].Path < groups[j].Members[0].Path })
	return groups, nil
}

type hashFunc func(path string) ([32]byte, bool)

// hashAll computes hash(item.Path) for each item using a bounded worker
// pool, skipping items whose content could not be read.
func (d *Detector) hashAll(ctx context.Context, items []core.CleanableItem, fn hashFunc) map[string][32]byte {
	results := make(map[string][32]byte, len(items))
	var mu sync.Mutex

	workers := d.cfg.MaxConcurrency
	if workers <= 0 {
		workers = 8
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan core.CleanableItem)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for item := range jobs {
				if d.cfg.Cache != nil {
					if fp, ok := d.cfg.Cache.Fingerprint(ctx, item.Path, item.SizeBytes, item.ModTime); ok {
						mu.Lock()
						results[item.Path] = *fp
						mu.Unlock()
						continue
					}
				}
				if hash, ok := fn(item.Path); ok {
					mu.Lock()
					results[item.Path] = hash
					mu.Unlock()
				}
			}
		}()
	}
loop:
	for _, item := range items {
		select {
		case jobs <- item:
		case <-ctx.Done():
			break loop
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

func bucketBy(items []core.CleanableItem, hashes map[string][32]byte) map[[32]byte][]core.CleanableItem {
	out := make(map[[32]byte][]core.CleanableItem)
	for _, item := range items {
		hash, ok := hashes[item.Path]
		if !ok {
			continue
		}
		out[hash] = append(out[hash], item)
	}
	return out
}

// sampleHash hashes the first and last sampleSize bytes of a file,
// sufficient to reject nearly all non-duplicate same-size files cheaply.
func sampleHash(path string) ([32]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return [32]byte{}, false
	}
	size := info.Size()

	h := sha256.New()
	head := make([]byte, sampleSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return [32]byte{}, false
	}
	h.Write(head[:n])

	if size > sampleSize {
		tailStart := size - sampleSize
		if tailStart < int64(n) {
			tailStart = int64(n)
		}
		if _, err := f.Seek(tailStart, io.SeekStart); err != nil {
			return [32]byte{}, false
		}
		tail := make([]byte, sampleSize)
		tn, err := io.ReadFull(f, tail)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return [32]byte{}, false
		}
		h.Write(tail[:tn])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, true
}

// pathDepth counts path separators in the normalized, slash-form path;
// used to pick the shallowest member of a duplicate group as primary.
func pathDepth(path string) int {
	return strings.Count(filepath.ToSlash(filepath.Clean(path)), "/")
}

// fullHash hashes a file's entire content.
func fullHash(path string) ([32]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, false
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [32]byte{}, false
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, true
}

var _ core.DuplicateDetector = (*Detector)(nil)
