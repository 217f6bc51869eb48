package metrics

import (
	"time"

	"github.com/dsklean/dsklean/internal/core"
)

// Noop is a no-op implementation of core.Metrics.
// Use this when metrics collection is disabled.
type Noop struct{}

// NewNoop creates a new no-op metrics collector.
func NewNoop() *Noop {
	return &Noop{}
}

// Scanning metrics
func (Noop) IncItemsScanned(string, core.Category)        {}
func (Noop) ObserveScanDuration(string, time.Duration) {}

// Synthesis metrics
func (Noop) IncSafetyVerdict(string, bool)       {}
func (Noop) SetRecommendationBytes(int64)        {}
func (Noop) SetRecommendationCount(int)          {}

// Execution metrics
func (Noop) IncItemsDeleted(core.Category) {}
func (Noop) AddBytesReclaimed(int64)       {}
func (Noop) IncCleanErrors(string)         {}

// System metrics
func (Noop) SetDiskUsage(float64) {}
func (Noop) SetCPUUsage(float64)  {}

// Ensure Noop implements core.Metrics
var _ core.Metrics = (*Noop)(nil)
