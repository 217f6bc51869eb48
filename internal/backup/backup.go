// Package backup implements core.BackupProvider with a filesystem
// staging area: before the Clean Executor deletes anything, a manifest's
// files are streamed into a backup directory so a failed or rolled-back
// transaction can retrieve the original bytes.
package backup

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dsklean/dsklean/internal/core"
	"github.com/dsklean/dsklean/internal/logger"
)

// FilesystemProvider stages backups as plain files under a root
// directory, one subdirectory per backup ref.
type FilesystemProvider struct {
	root string
	log  logger.Logger
}

// Config configures a FilesystemProvider.
type Config struct {
	// Root is the directory under which backup refs are staged.
	Root string
}

// New creates a FilesystemProvider rooted at cfg.Root.
func New(cfg Config, log logger.Logger) (*FilesystemProvider, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("backup: root directory required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, fmt.Errorf("backup: creating root: %w", err)
	}
	return &FilesystemProvider{root: cfg.Root, log: log}, nil
}

// Stage streams every manifest item into a fresh backup ref directory,
// storing each under a flat name derived from a hash of its original
// path (see entryName), so Retrieve can locate it from the original path
// without needing the manifest again.
func (p *FilesystemProvider) Stage(ctx context.Context, manifest core.BackupManifest) (string, error) {
	ref := newRef()
	dir := filepath.Join(p.root, ref)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("backup: staging dir: %w", err)
	}

	for _, item := range manifest.Items {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		dst := filepath.Join(dir, entryName(item.Path))
		if err := stageFile(item.Path, dst); err != nil {
			p.log.Warn("backup: stage failed", logger.Path(item.Path), logger.F("error", err.Error()))
			return "", fmt.Errorf("backup: staging %s: %w", item.Path, err)
		}
	}

	manifestPath := filepath.Join(dir, "manifest.txt")
	var buf bytes.Buffer
	for _, item := range manifest.Items {
		fmt.Fprintf(&buf, "%s\t%d\n", item.Path, item.SizeBytes)
	}
	if err := os.WriteFile(manifestPath, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("backup: writing manifest: %w", err)
	}

	p.log.Info("backup staged", logger.F("ref", ref), logger.F("items", len(manifest.Items)))
	return ref, nil
}

// Verify checks that every file referenced in the manifest is still
// present and readable in the staged backup.
func (p *FilesystemProvider) Verify(ctx context.Context, ref string) (core.BackupStatus, error) {
	dir := filepath.Join(p.root, ref)
	manifestPath := filepath.Join(dir, "manifest.txt")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return core.BackupMissing, nil
		}
		return core.BackupCorrupt, err
	}

	for _, line := range splitLines(data) {
		select {
		case <-ctx.Done():
			return core.BackupCorrupt, ctx.Err()
		default:
		}
		if line == "" {
			continue
		}
		original := line
		if idx := indexTab(line); idx >= 0 {
			original = line[:idx]
		}
		staged := filepath.Join(dir, entryName(original))
		if _, err := os.Stat(staged); err != nil {
			return core.BackupCorrupt, nil
		}
	}
	return core.BackupOK, nil
}

// Retrieve reads the staged content for the original path out of ref.
func (p *FilesystemProvider) Retrieve(ctx context.Context, ref string, path string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	staged := filepath.Join(p.root, ref, entryName(path))
	return os.ReadFile(staged)
}

func stageFile(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("backup: refusing to stage directory %s", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// entryName derives a flat, collision-resistant filename for path so
// the staged layout never has to recreate the original directory tree.
func entryName(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:]) + "_" + filepath.Base(path)
}

func newRef() string {
	var b [16]byte
	_, _ = io.ReadFull(crand.Reader, b[:])
	return hex.EncodeToString(b[:])
}

func splitLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}

func indexTab(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\t' {
			return i
		}
	}
	return -1
}

var _ core.BackupProvider = (*FilesystemProvider)(nil)
