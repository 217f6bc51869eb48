// Package detector implements the Smart Detector: it turns a raw scanned
// CleanableItem into a scored candidate (SafetyScore) and groups
// byte-identical items into DuplicateGroups.
package detector

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dsklean/dsklean/internal/core"
)

// Weights tunes the additive safety-score heuristic. Each component
// contributes an independent adjustment on top of the category's base
// score; the sum is clamped to [0, 100].
type Weights struct {
	CategoryBase map[core.Category]int

	RecentAgeDays  int // last-accessed beyond this many days: +RecentAgeBonus
	RecentAgeBonus int
	StaleAgeDays   int // last-accessed beyond this many days: +StaleAgeBonus (supersedes RecentAgeBonus)
	StaleAgeBonus  int

	LargeFileBytes   int64 // size beyond this: LargeFilePenalty
	LargeFilePenalty int

	DocumentsPenalty     int // path under a Documents-like user directory
	OSSubtreePenalty     int // path under an operating-system subtree (forces unsafe)
	UserDocExtPenalty    int // file name matches a user-document extension
	HiddenDotfilePenalty int // hidden dotfile under a non-cache category

	DocumentsDirNames []string // case-insensitive path component match
	OSSubtreePrefixes []string
	UserDocExtensions map[string]struct{}
}

// cacheCategories are the categories treated as "cache roots" for the
// hidden-dotfile adjustment: a dotfile found there is expected, not a sign
// of an unnoticed personal file.
var cacheCategories = map[core.Category]struct{}{
	core.CategoryUserCaches:     {},
	core.CategoryAppCaches:      {},
	core.CategoryTrash:          {},
	core.CategoryTemporaryFiles: {},
}

// DefaultWeights implements the fixed scoring rubric: a base score per
// category, then additive age/size/location adjustments.
func DefaultWeights() Weights {
	return Weights{
		CategoryBase: map[core.Category]int{
			core.CategoryTrash:          95,
			core.CategoryTemporaryFiles: 90,
			core.CategoryLogs:           85,
			core.CategoryUserCaches:     80,
			core.CategoryAppCaches:      75,
			core.CategoryBuildArtifacts: 72,
			core.CategoryDeveloperJunk:  70,
			core.CategoryDuplicates:     60,
			core.CategoryLargeFiles:     50,
			core.CategoryOrphaned:       40,
		},
		RecentAgeDays:  30,
		RecentAgeBonus: 5,
		StaleAgeDays:   180,
		StaleAgeBonus:  10,

		LargeFileBytes:   1 << 30, // 1 GiB
		LargeFilePenalty: -5,

		DocumentsPenalty:     -25,
		OSSubtreePenalty:     -100,
		UserDocExtPenalty:    -20,
		HiddenDotfilePenalty: -10,

		DocumentsDirNames: []string{"documents", "my documents", "documenten"},
		OSSubtreePrefixes: []string{
			"/system", "/usr", "/bin", "/sbin", "/lib", "/lib64",
			"/boot", "/etc", "/private/var", "/windows",
		},
		UserDocExtensions: map[string]struct{}{
			".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
			".ppt": {}, ".pptx": {}, ".odt": {}, ".ods": {}, ".odp": {},
			".rtf": {}, ".pages": {}, ".key": {}, ".numbers": {},
		},
	}
}

// Scorer is the deterministic, weighted-sum SafetyScorer implementation.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

// NewScorer builds a Scorer with the given weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights, now: time.Now}
}

// NewDefaultScorer builds a Scorer using DefaultWeights.
func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultWeights())
}

// SafetyScore computes a 0-100 heuristic score: higher means safer to
// delete. It never consults the Security Auditor directly — the verdict
// cap described in spec §4.3 is applied by the caller once a verdict has
// actually been requested (see core.CapScoreByRisk).
func (s *Scorer) SafetyScore(item core.CleanableItem) int {
	base, ok := s.weights.CategoryBase[item.Category]
	if !ok {
		base = 40
	}
	score := base

	accessed := item.AccessTime
	if accessed.IsZero() {
		accessed = item.ModTime
	}
	if !accessed.IsZero() {
		days := int(s.now().Sub(accessed) / (24 * time.Hour))
		switch {
		case days > s.weights.StaleAgeDays:
			score += s.weights.StaleAgeBonus
		case days > s.weights.RecentAgeDays:
			score += s.weights.RecentAgeBonus
		}
	}

	if s.weights.LargeFileBytes > 0 && item.SizeBytes > s.weights.LargeFileBytes {
		score += s.weights.LargeFilePenalty
	}

	if s.underOSSubtree(item.Path) {
		score += s.weights.OSSubtreePenalty
	} else if s.underDocumentsDir(item.Path) {
		score += s.weights.DocumentsPenalty
	}

	if _, isDoc := s.weights.UserDocExtensions[strings.ToLower(filepath.Ext(item.Name))]; isDoc {
		score += s.weights.UserDocExtPenalty
	}

	if isHiddenName(item.Name) {
		if _, cache := cacheCategories[item.Category]; !cache {
			score += s.weights.HiddenDotfilePenalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func (s *Scorer) underOSSubtree(path string) bool {
	clean := strings.ToLower(filepath.ToSlash(filepath.Clean(path)))
	for _, prefix := range s.weights.OSSubtreePrefixes {
		p := strings.ToLower(prefix)
		if clean == p || strings.HasPrefix(clean, p+"/") {
			return true
		}
	}
	return false
}

func (s *Scorer) underDocumentsDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		lower := strings.ToLower(part)
		for _, name := range s.weights.DocumentsDirNames {
			if lower == name {
				return true
			}
		}
	}
	return false
}

func isHiddenName(name string) bool {
	return len(name) > 1 && name[0] == '.'
}

// Explain renders a short human-readable justification for a score.
func (s *Scorer) Explain(item core.CleanableItem, score int) string {
	age := "unknown age"
	if !item.ModTime.IsZero() {
		days := int(s.now().Sub(item.ModTime) / (24 * time.Hour))
		age = fmt.Sprintf("%d days old", days)
	}
	return fmt.Sprintf("category=%s, %s, %d bytes -> score %d", item.Category, age, item.SizeBytes, score)
}

var _ core.SafetyScorer = (*Scorer)(nil)
