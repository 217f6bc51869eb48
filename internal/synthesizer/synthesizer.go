// Package synthesizer implements the Recommendation Synthesizer: it turns
// scored, audited scan results into a small set of human-readable
// Recommendations ordered by reclaimable space.
package synthesizer

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/dsklean/dsklean/internal/core"
	"github.com/dsklean/dsklean/internal/logger"
	"github.com/dsklean/dsklean/internal/metrics"
)

// Synth is the default Synthesizer implementation.
type Synth struct {
	log     logger.Logger
	metrics core.Metrics
	scorer  core.SafetyScorer
}

// New creates a Synth with no-op logging, metrics, and scoring.
func New(scorer core.SafetyScorer) *Synth {
	return &Synth{log: logger.NewNop(), metrics: metrics.NewNoop(), scorer: scorer}
}

// NewWithDeps creates a Synth with explicit logger and metrics.
func NewWithDeps(scorer core.SafetyScorer, log logger.Logger, m core.Metrics) *Synth {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Synth{log: log, metrics: m, scorer: scorer}
}

// Synthesize builds recommendations from scan results. Every item is
// re-audited here: the Auditor's verdict is the final word, so an item
// scored highly safe by the Smart Detector but blocked by the Security
// Auditor is always excluded, regardless of score.
func (s *Synth) Synthesize(ctx context.Context, results core.ScanResults, auditor core.SecurityAuditor) ([]core.Recommendation, error) {
	s.log.Debug("synthesizing recommendations", logger.F("items", len(results.Items)))

	eligible := make(map[core.Category][]core.CleanableItem)
	var totalEligibleBytes int64

	for cat, items := range results.ByCategory {
		for _, item := range items {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			verdict := auditor.Audit(ctx, item.Path, core.AuditOptions{ScanRoot: item.Root})
			s.metrics.IncSafetyVerdict(verdict.Risk.String(), verdict.BlocksDeletion)
			if verdict.BlocksDeletion {
				continue
			}

			scored := item
			if s.scorer != nil {
				scored.Score = core.CapScoreByRisk(s.scorer.SafetyScore(item), verdict.Risk)
			}
			eligible[cat] = append(eligible[cat], scored)
			totalEligibleBytes += scored.SizeBytes
		}
	}

	var recs []core.Recommendation
	for cat, items := range eligible {
		if len(items) == 0 {
			continue
		}
		sort.Slice(items, func(i, j int) bool { return items[i].SizeBytes > items[j].SizeBytes })

		var reclaim int64
		for _, item := range items {
			reclaim += item.SizeBytes
		}

		recs = append(recs, core.Recommendation{
			Title:            categoryTitle(cat),
			Description:      describe(cat, len(items), reclaim),
			Priority:         priorityFor(reclaim, averageScore(items)),
			EstimatedReclaim: reclaim,
			Items:            items,
		})
	}

	for _, group := range results.Duplicates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if rec := s.duplicateRecommendation(ctx, group, auditor); rec != nil {
			recs = append(recs, *rec)
		}
	}

	// Ordering per spec: estimated reclaim descending, then priority
	// descending, then category name (the recommendation's title stands
	// in for category name since a Recommendation carries no raw Category).
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].EstimatedReclaim != recs[j].EstimatedReclaim {
			return recs[i].EstimatedReclaim > recs[j].EstimatedReclaim
		}
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		return recs[i].Title < recs[j].Title
	})

	s.metrics.SetRecommendationCount(len(recs))
	s.metrics.SetRecommendationBytes(totalEligibleBytes)
	s.log.Info("recommendations synthesized", logger.F("count", len(recs)), logger.F("bytes", totalEligibleBytes))
	return recs, nil
}

// duplicateRecommendation builds one recommendation per duplicate group,
// re-auditing every redundant member individually: a redundant the
// Auditor now blocks is dropped from the group rather than proposed for
// deletion, and a group left with nothing eligible is discarded entirely.
func (s *Synth) duplicateRecommendation(ctx context.Context, group core.DuplicateGroup, auditor core.SecurityAuditor) *core.Recommendation {
	redundant := group.Redundant()
	if len(redundant) == 0 {
		return nil
	}

	var items []core.CleanableItem
	var reclaim int64
	for _, item := range redundant {
		verdict := auditor.Audit(ctx, item.Path, core.AuditOptions{ScanRoot: item.Root})
		s.metrics.IncSafetyVerdict(verdict.Risk.String(), verdict.BlocksDeletion)
		if verdict.BlocksDeletion {
			continue
		}
		scored := item
		if s.scorer != nil {
			scored.Score = core.CapScoreByRisk(s.scorer.SafetyScore(item), verdict.Risk)
		}
		items = append(items, scored)
		reclaim += scored.SizeBytes
	}
	if len(items) == 0 {
		return nil
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SizeBytes > items[j].SizeBytes })

	return &core.Recommendation{
		Title:            "Duplicate files",
		Description:      fmt.Sprintf("%d duplicate copies of %s, keeping %s (%s reclaimable)", len(items), group.Primary().Name, group.Primary().Path, humanize.Bytes(uint64(reclaim))),
		Priority:         priorityFor(reclaim, averageScore(items)),
		EstimatedReclaim: reclaim,
		Items:            items,
	}
}

// averageScore returns the mean SafetyScore across items, used as the
// representative score for a recommendation bundle's priority band.
func averageScore(items []core.CleanableItem) int {
	if len(items) == 0 {
		return 0
	}
	var sum int
	for _, item := range items {
		sum += item.Score
	}
	return sum / len(items)
}

func categoryTitle(cat core.Category) string {
	switch cat {
	case core.CategoryUserCaches:
		return "User cache files"
	case core.CategoryAppCaches:
		return "Application cache files"
	case core.CategoryDeveloperJunk:
		return "Developer dependency/build junk"
	case core.CategoryBuildArtifacts:
		return "Build artifacts"
	case core.CategoryLogs:
		return "Log files"
	case core.CategoryTemporaryFiles:
		return "Temporary files"
	case core.CategoryTrash:
		return "Trash"
	case core.CategoryLargeFiles:
		return "Unusually large files"
	case core.CategoryOrphaned:
		return "Orphaned files"
	default:
		return string(cat)
	}
}

func describe(cat core.Category, count int, reclaim int64) string {
	return fmt.Sprintf("%d items in %s, %s reclaimable", count, categoryTitle(cat), humanize.Bytes(uint64(reclaim)))
}

// priorityFor bands a bundle by its total reclaim and representative
// score: critical needs >=1 GiB reclaimed AND score >=85; high needs
// >=100 MiB AND score >=80; medium needs >=10 MiB AND score >=70;
// anything short of that is low.
func priorityFor(reclaim int64, score int) core.Priority {
	switch {
	case reclaim >= 1<<30 && score >= 85:
		return core.PriorityCritical
	case reclaim >= 100*1024*1024 && score >= 80:
		return core.PriorityHigh
	case reclaim >= 10*1024*1024 && score >= 70:
		return core.PriorityMedium
	default:
		return core.PriorityLow
	}
}

var _ core.Synthesizer = (*Synth)(nil)
