package goRefresh

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single engine counter.
type MetricID int

const (
	// MetricIssueSuccess is an exported constant or variable used by the token lifecycle engine.
	MetricIssueSuccess MetricID = iota
	// MetricIssueBlocked counts issuance attempts rejected by a dead family.
	MetricIssueBlocked
	// MetricIssueFailure is an exported constant or variable used by the token lifecycle engine.
	MetricIssueFailure
	// MetricRotateSuccess is an exported constant or variable used by the token lifecycle engine.
	MetricRotateSuccess
	// MetricRotateNotFound is an exported constant or variable used by the token lifecycle engine.
	MetricRotateNotFound
	// MetricRotateReuse counts reuse detections, each of which locked a family.
	MetricRotateReuse
	// MetricRotateFamilyRevoked is an exported constant or variable used by the token lifecycle engine.
	MetricRotateFamilyRevoked
	// MetricRotateFailure is an exported constant or variable used by the token lifecycle engine.
	MetricRotateFailure
	// MetricRevokeToken is an exported constant or variable used by the token lifecycle engine.
	MetricRevokeToken
	// MetricRevokeFamily is an exported constant or variable used by the token lifecycle engine.
	MetricRevokeFamily
	// MetricRevokeMember is an exported constant or variable used by the token lifecycle engine.
	MetricRevokeMember

	metricCount
)

// rotateLatencyBucketsMS are histogram upper bounds in milliseconds; the
// final implicit bucket is +Inf.
var rotateLatencyBucketsMS = [...]int64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

// paddedCounter keeps each hot counter on its own cache line so unrelated
// metrics do not false-share under load.
type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

type engineMetrics struct {
	enabled     bool
	histEnabled bool
	counters    [metricCount]paddedCounter
	latency     [len(rotateLatencyBucketsMS) + 1]atomic.Uint64
}

func newEngineMetrics(cfg MetricsConfig) *engineMetrics {
	return &engineMetrics{
		enabled:     cfg.Enabled,
		histEnabled: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *engineMetrics) inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= metricCount {
		return
	}
	m.counters[id].value.Add(1)
}

func (m *engineMetrics) observeRotateLatency(d time.Duration) {
	if m == nil || !m.histEnabled {
		return
	}
	m.latency[latencyBucketIndex(d.Milliseconds())].Add(1)
}

func latencyBucketIndex(ms int64) int {
	for i, upper := range rotateLatencyBucketsMS {
		if ms <= upper {
			return i
		}
	}
	return len(rotateLatencyBucketsMS)
}

// LatencyBucket is one cumulative-free histogram bucket. UpperMS is the
// inclusive upper bound in milliseconds; the last bucket has UpperMS == -1
// and counts everything above the largest bound.
type LatencyBucket struct {
	UpperMS int64
	Count   uint64
}

// MetricsSnapshot is a point-in-time copy of every engine counter.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	IssueSuccess        uint64
	IssueBlocked        uint64
	IssueFailure        uint64
	RotateSuccess       uint64
	RotateNotFound      uint64
	RotateReuse         uint64
	RotateFamilyRevoked uint64
	RotateFailure       uint64
	RevokeToken         uint64
	RevokeFamily        uint64
	RevokeMember        uint64

	// RotateLatency is nil unless latency histograms are enabled.
	RotateLatency []LatencyBucket
}

func (m *engineMetrics) snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{}
	}

	get := func(id MetricID) uint64 {
		return m.counters[id].value.Load()
	}

	snap := MetricsSnapshot{
		IssueSuccess:        get(MetricIssueSuccess),
		IssueBlocked:        get(MetricIssueBlocked),
		IssueFailure:        get(MetricIssueFailure),
		RotateSuccess:       get(MetricRotateSuccess),
		RotateNotFound:      get(MetricRotateNotFound),
		RotateReuse:         get(MetricRotateReuse),
		RotateFamilyRevoked: get(MetricRotateFamilyRevoked),
		RotateFailure:       get(MetricRotateFailure),
		RevokeToken:         get(MetricRevokeToken),
		RevokeFamily:        get(MetricRevokeFamily),
		RevokeMember:        get(MetricRevokeMember),
	}

	if m.histEnabled {
		buckets := make([]LatencyBucket, 0, len(m.latency))
		for i := range m.latency {
			upper := int64(-1)
			if i < len(rotateLatencyBucketsMS) {
				upper = rotateLatencyBucketsMS[i]
			}
			buckets = append(buckets, LatencyBucket{
				UpperMS: upper,
				Count:   m.latency[i].Load(),
			})
		}
		snap.RotateLatency = buckets
	}

	return snap
}
