package aggregation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelAggregation = "aggregation"
	labelGranularity = "granularity"
	labelReason      = "reason"
)

// eventsIngested counts events accepted by the finest executor.
var eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "rollup",
	Name:      "events_ingested_total",
	Help:      "Total number of events folded into the finest granularity",
}, []string{labelAggregation})

// eventsSkipped counts events not folded, by reason (invalid_timestamp, late_dropped, replayed).
var eventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "rollup",
	Name:      "events_skipped_total",
	Help:      "Total number of events not folded into any bucket",
}, []string{labelAggregation, labelReason})

// bucketsClosed counts buckets durably written and forwarded.
var bucketsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "rollup",
	Name:      "buckets_closed_total",
	Help:      "Total number of buckets closed and persisted",
}, []string{labelAggregation, labelGranularity})

// lateCompensations counts read-merge-upsert updates to already-closed buckets.
var lateCompensations = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "rollup",
	Name:      "late_compensations_total",
	Help:      "Total number of late contributions merged into persisted buckets",
}, []string{labelAggregation, labelGranularity})

// persistenceFailures counts store failures seen by executors.
var persistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "rollup",
	Name:      "persistence_failures_total",
	Help:      "Total number of failed bucket store reads or writes",
}, []string{labelAggregation, labelGranularity})

// openBuckets tracks buckets currently held in memory.
var openBuckets = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "rollup",
	Name:      "open_buckets",
	Help:      "Number of open buckets held in memory",
}, []string{labelAggregation, labelGranularity})

// closeTime is the latency of a bucket close, including the cascade upward.
var closeTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "rollup",
	Name:      "close_time",
	Help:      "Bucket close time (1 to 1000000 microseconds)",
	Buckets:   prometheus.ExponentialBucketsRange(1, 1000000, 8),
}, []string{labelAggregation, labelGranularity})

// recoveryTime is the wall time of one recovery pass.
var recoveryTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "rollup",
	Name:      "recovery_time",
	Help:      "Recovery time (1 to 600000 milliseconds)",
	Buckets:   prometheus.ExponentialBucketsRange(1, 600000, 8),
}, []string{labelAggregation})
