package rescache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordRequest is called after each request; err is nil if admitted.
	RecordRequest(duration time.Duration, err error)

	// RecordConstruct is called when a first construction settles.
	RecordConstruct(duration time.Duration, err error)

	// RecordReload is called when a hot reload settles.
	RecordReload(duration time.Duration, err error)

	// RecordDelete is called after an entry was deleted.
	RecordDelete(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRequest(time.Duration, error)   {}
func (NoopMetricsCollector) RecordConstruct(time.Duration, error) {}
func (NoopMetricsCollector) RecordReload(time.Duration, error)    {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	RequestCount        atomic.Int64
	RequestErrors       atomic.Int64
	ConstructCount      atomic.Int64
	ConstructErrors     atomic.Int64
	ConstructTotalNanos atomic.Int64
	ReloadCount         atomic.Int64
	ReloadErrors        atomic.Int64
	DeleteCount         atomic.Int64
	DeleteErrors        atomic.Int64
}

// RecordRequest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRequest(_ time.Duration, err error) {
	b.RequestCount.Add(1)
	if err != nil {
		b.RequestErrors.Add(1)
	}
}

// RecordConstruct implements MetricsCollector.
func (b *BasicMetricsCollector) RecordConstruct(duration time.Duration, err error) {
	b.ConstructCount.Add(1)
	b.ConstructTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ConstructErrors.Add(1)
	}
}

// RecordReload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReload(_ time.Duration, err error) {
	b.ReloadCount.Add(1)
	if err != nil {
		b.ReloadErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	stats := BasicMetricsStats{
		RequestCount:    b.RequestCount.Load(),
		RequestErrors:   b.RequestErrors.Load(),
		ConstructCount:  b.ConstructCount.Load(),
		ConstructErrors: b.ConstructErrors.Load(),
		ReloadCount:     b.ReloadCount.Load(),
		ReloadErrors:    b.ReloadErrors.Load(),
		DeleteCount:     b.DeleteCount.Load(),
		DeleteErrors:    b.DeleteErrors.Load(),
	}
	if stats.ConstructCount > 0 {
		stats.ConstructAvgNanos = b.ConstructTotalNanos.Load() / stats.ConstructCount
	}
	return stats
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RequestCount      int64
	RequestErrors     int64
	ConstructCount    int64
	ConstructErrors   int64
	ConstructAvgNanos int64
	ReloadCount       int64
	ReloadErrors      int64
	DeleteCount       int64
	DeleteErrors      int64
}
