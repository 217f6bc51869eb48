package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dsklean/dsklean/internal/core"
)

func writeFile(t *testing.T, dir, name string, content []byte) core.CleanableItem {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return core.CleanableItem{
		Path: path, Name: name, Type: core.TargetFile,
		SizeBytes: info.Size(), ModTime: info.ModTime(),
	}
}

func TestFindDuplicates_GroupsIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 200*1024) // bigger than sampleSize both ends
	for i := range content {
		content[i] = byte(i % 251)
	}

	a := writeFile(t, dir, "a.bin", content)
	b := writeFile(t, dir, "b.bin", content)
	c := writeFile(t, dir, "c.bin", append(append([]byte{}, content...), 0x01))

	det := NewDetector(DuplicateConfig{})
	groups, err := det.FindDuplicates(context.Background(), []core.CleanableItem{a, b, c})
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", len(groups))
	}
	if len(groups[0].Members) != 2 {
		t.Fatalf("expected 2 members in group, got %d", len(groups[0].Members))
	}
}

func TestFindDuplicates_ExcludesZeroByteByDefault(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "empty1", nil)
	b := writeFile(t, dir, "empty2", nil)

	det := NewDetector(DuplicateConfig{})
	groups, err := det.FindDuplicates(context.Background(), []core.CleanableItem{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected zero-byte files excluded by default, got %d groups", len(groups))
	}
}

func TestFindDuplicates_IncludesZeroByteWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "empty1", nil)
	b := writeFile(t, dir, "empty2", nil)

	det := NewDetector(DuplicateConfig{IncludeZeroByteDuplicates: true})
	groups, err := det.FindDuplicates(context.Background(), []core.CleanableItem{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected zero-byte files grouped when enabled, got %d", len(groups))
	}
}

func TestFindDuplicates_PrimaryIsOldest(t *testing.T) {
	dir := t.TempDir()
	content := []byte("duplicate-content")
	a := writeFile(t, dir, "newer", content)
	b := writeFile(t, dir, "older", content)

	older := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(b.Path, older, older); err != nil {
		t.Fatal(err)
	}
	b.ModTime = older

	det := NewDetector(DuplicateConfig{})
	groups, err := det.FindDuplicates(context.Background(), []core.CleanableItem{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Primary().Path != b.Path {
		t.Fatalf("expected oldest file to be primary, got %s", groups[0].Primary().Path)
	}
}

func TestScorer_SafetyScore_RespectsCategoryAndAge(t *testing.T) {
	s := NewDefaultScorer()
	trashItem := core.CleanableItem{Category: core.CategoryTrash, ModTime: time.Now().Add(-400 * 24 * time.Hour)}
	largeFileItem := core.CleanableItem{Category: core.CategoryLargeFiles, ModTime: time.Now()}

	trashScore := s.SafetyScore(trashItem)
	largeScore := s.SafetyScore(largeFileItem)

	if trashScore <= largeScore {
		t.Fatalf("expected old trash to score higher than fresh large file: trash=%d large=%d", trashScore, largeScore)
	}
	if trashScore > 100 || largeScore < 0 {
		t.Fatalf("scores out of bounds: trash=%d large=%d", trashScore, largeScore)
	}
}
