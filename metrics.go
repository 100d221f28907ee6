package goOTP

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricCodeIssued MetricID = iota
	MetricCodeResendTooSoon
	MetricCodeDecoyIssued
	MetricCodeVerified
	MetricCodeInvalid
	MetricCodeExpiredOrNotFound
	MetricCodeAttemptsExceeded
	MetricDeliverySuccess
	MetricDeliveryFailure
	MetricDeliveryDropped
	MetricSignupCompleted
	MetricSignupDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricAdminLoginSuccess
	MetricAdminLoginFailure
	MetricLoginThrottled
	MetricPasswordRehashed
	MetricSessionCreated
	MetricSessionRejected
	MetricSessionForbidden
	MetricLogout
	MetricPasswordResetAuthorized
	MetricPasswordResetCompleted
	MetricPasswordResetRejected
	MetricValidateLatency
	metricIDCount
)

// latencyBoundsMs are the inclusive upper bounds of the first seven
// histogram buckets. The eighth bucket takes everything slower.
var latencyBoundsMs = [...]int64{5, 10, 25, 50, 100, 250, 500}

const latencyBucketCount = len(latencyBoundsMs) + 1

// counterSlot pads each counter to its own cache line so hot counters on
// different cores do not contend.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the Validate latency histogram. A nil
// or disabled Metrics ignores writes.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counterSlot
	latency       [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d. Only MetricValidateLatency carries a histogram; other
// ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricValidateLatency {
		return
	}
	m.latency[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.counters[id].n.Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.latency[i].Load()
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBoundsMs {
		if ms <= bound {
			return i
		}
	}
	return len(latencyBoundsMs)
}
