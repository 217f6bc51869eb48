package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dsklean/dsklean/internal/core"
)

// Prometheus implements core.Metrics using Prometheus client.
type Prometheus struct {
	// Scanning metrics
	itemsScanned *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec

	// Synthesis metrics
	safetyVerdicts      *prometheus.CounterVec
	recommendationBytes prometheus.Gauge
	recommendationCount prometheus.Gauge

	// Execution metrics
	itemsDeleted   *prometheus.CounterVec
	bytesReclaimed prometheus.Counter
	cleanErrors    *prometheus.CounterVec

	// System metrics
	diskUsage prometheus.Gauge
	cpuUsage  prometheus.Gauge
}

// NewPrometheus creates a new Prometheus metrics collector.
// All metrics are registered with the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Prometheus{
		itemsScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsklean",
			Subsystem: "scanner",
			Name:      "items_scanned_total",
			Help:      "Total number of items scanned",
		}, []string{"root", "category"}),

		scanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dsklean",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Time spent scanning roots",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		}, []string{"root"}),

		safetyVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsklean",
			Subsystem: "synthesizer",
			Name:      "safety_verdicts_total",
			Help:      "Total security auditor verdicts by risk level and blocked status",
		}, []string{"risk", "blocked"}),

		recommendationBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dsklean",
			Subsystem: "synthesizer",
			Name:      "recommendation_bytes",
			Help:      "Total bytes eligible for reclaim in the current recommendation set",
		}),

		recommendationCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dsklean",
			Subsystem: "synthesizer",
			Name:      "recommendation_count",
			Help:      "Number of recommendations in the current set",
		}),

		itemsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsklean",
			Subsystem: "executor",
			Name:      "items_deleted_total",
			Help:      "Total number of items deleted",
		}, []string{"category"}),

		bytesReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dsklean",
			Subsystem: "executor",
			Name:      "bytes_reclaimed_total",
			Help:      "Total bytes reclaimed by deletions",
		}),

		cleanErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsklean",
			Subsystem: "executor",
			Name:      "clean_errors_total",
			Help:      "Total clean errors by reason",
		}, []string{"reason"}),

		diskUsage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dsklean",
			Subsystem: "system",
			Name:      "disk_usage_percent",
			Help:      "Current disk usage percentage",
		}),

		cpuUsage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dsklean",
			Subsystem: "system",
			Name:      "cpu_usage_percent",
			Help:      "Current CPU usage percentage",
		}),
	}
}

// Scanning metrics

func (p *Prometheus) IncItemsScanned(root string, category core.Category) {
	p.itemsScanned.WithLabelValues(root, string(category)).Inc()
}

func (p *Prometheus) ObserveScanDuration(root string, duration time.Duration) {
	p.scanDuration.WithLabelValues(root).Observe(duration.Seconds())
}

// Synthesis metrics

func (p *Prometheus) IncSafetyVerdict(risk string, blocked bool) {
	p.safetyVerdicts.WithLabelValues(risk, boolStr(blocked)).Inc()
}

func (p *Prometheus) SetRecommendationBytes(bytes int64) {
	p.recommendationBytes.Set(float64(bytes))
}

func (p *Prometheus) SetRecommendationCount(count int) {
	p.recommendationCount.Set(float64(count))
}

// Execution metrics

func (p *Prometheus) IncItemsDeleted(category core.Category) {
	p.itemsDeleted.WithLabelValues(string(category)).Inc()
}

func (p *Prometheus) AddBytesReclaimed(bytes int64) {
	p.bytesReclaimed.Add(float64(bytes))
}

func (p *Prometheus) IncCleanErrors(reason string) {
	p.cleanErrors.WithLabelValues(reason).Inc()
}

// System metrics

func (p *Prometheus) SetDiskUsage(percent float64) {
	p.diskUsage.Set(percent)
}

func (p *Prometheus) SetCPUUsage(percent float64) {
	p.cpuUsage.Set(percent)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Ensure Prometheus implements core.Metrics
var _ core.Metrics = (*Prometheus)(nil)
