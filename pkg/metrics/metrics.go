package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "corral",
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "commit", "date"})

	StoreOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "corral",
		Name:      "store_operation_duration_seconds",
		Help:      "Duration of storage operations.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"store", "operation"})

	StoreOpTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corral",
		Name:      "store_operations_total",
		Help:      "Storage operations by outcome.",
	}, []string{"store", "operation", "status"})

	PointsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corral",
		Name:      "points_written_total",
		Help:      "Data points written per metric.",
	}, []string{"metric"})

	PointsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corral",
		Name:      "points_read_total",
		Help:      "Data points read per metric.",
	}, []string{"metric"})

	ActivityIncrements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corral",
		Name:      "activity_increments_total",
		Help:      "Activity counter increments.",
	})
)
