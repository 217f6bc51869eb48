package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dsklean/dsklean/internal/core"
	"github.com/dsklean/dsklean/internal/logger"
)

func TestFilesystemProvider_StageVerifyRetrieve(t *testing.T) {
	srcDir := t.TempDir()
	backupDir := t.TempDir()

	srcPath := filepath.Join(srcDir, "a.txt")
	content := []byte("hello world")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := New(Config{Root: backupDir}, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	manifest := core.BackupManifest{Items: []core.BackupManifestItem{{Path: srcPath, SizeBytes: int64(len(content))}}}
	ref, err := p.Stage(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	status, err := p.Verify(context.Background(), ref)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status != core.BackupOK {
		t.Fatalf("expected BackupOK, got %s", status)
	}

	got, err := p.Retrieve(context.Background(), ref, srcPath)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("expected retrieved content %q, got %q", content, got)
	}
}

func TestFilesystemProvider_VerifyMissingRef(t *testing.T) {
	p, err := New(Config{Root: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	status, err := p.Verify(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status != core.BackupMissing {
		t.Fatalf("expected BackupMissing, got %s", status)
	}
}
