package imgmatch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordDescriptorLoad is called after a collection has been loaded
	// into the database (or quantized for querying).
	RecordDescriptorLoad(images, descriptors int, duration time.Duration)

	// RecordQuery is called after each retrieval query.
	// k is the number of matches requested, results the number returned.
	RecordQuery(k, results int, duration time.Duration, err error)

	// RecordRun is called once per Run.
	RecordRun(mode RunMode, numPairs uint64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordDescriptorLoad(int, int, time.Duration)    {}
func (NoopMetricsCollector) RecordQuery(int, int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordRun(RunMode, uint64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LoadCount       atomic.Int64
	LoadImages      atomic.Int64
	LoadDescriptors atomic.Int64
	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryResults    atomic.Int64
	QueryTotalNanos atomic.Int64
	RunCount        atomic.Int64
	RunErrors       atomic.Int64
	BruteForceRuns  atomic.Int64
	IndexedRuns     atomic.Int64
	PairsTotal      atomic.Int64
	RunTotalNanos   atomic.Int64
}

// RecordDescriptorLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDescriptorLoad(images, descriptors int, duration time.Duration) {
	b.LoadCount.Add(1)
	b.LoadImages.Add(int64(images))
	b.LoadDescriptors.Add(int64(descriptors))
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(k, results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryResults.Add(int64(results))
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(mode RunMode, numPairs uint64, duration time.Duration, err error) {
	b.RunCount.Add(1)
	b.RunTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RunErrors.Add(1)
		return
	}
	switch mode {
	case RunBruteForce:
		b.BruteForceRuns.Add(1)
	case RunIndexed:
		b.IndexedRuns.Add(1)
	}
	b.PairsTotal.Add(int64(numPairs))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LoadCount:       b.LoadCount.Load(),
		LoadImages:      b.LoadImages.Load(),
		LoadDescriptors: b.LoadDescriptors.Load(),
		QueryCount:      b.QueryCount.Load(),
		QueryErrors:     b.QueryErrors.Load(),
		QueryResults:    b.QueryResults.Load(),
		QueryAvgNanos:   b.getAvgQueryNanos(),
		RunCount:        b.RunCount.Load(),
		RunErrors:       b.RunErrors.Load(),
		BruteForceRuns:  b.BruteForceRuns.Load(),
		IndexedRuns:     b.IndexedRuns.Load(),
		PairsTotal:      b.PairsTotal.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount       int64
	LoadImages      int64
	LoadDescriptors int64
	QueryCount      int64
	QueryErrors     int64
	QueryResults    int64
	QueryAvgNanos   int64
	RunCount        int64
	RunErrors       int64
	BruteForceRuns  int64
	IndexedRuns     int64
	PairsTotal      int64
}
