package otel

import (
	"context"
	"sync"
	"testing"

	goOTP "github.com/MrEthical07/goOTP"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goOTP.MetricsSnapshot
	dropped  uint64
	backlog  int
}

func (f *fakeSource) MetricsSnapshot() goOTP.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goOTP.MetricsSnapshot{
		Counters:   make(map[goOTP.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goOTP.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) DeliveryBacklog() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.backlog
}

func newReaderMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("gootp-test")

	src := &fakeSource{
		snapshot: goOTP.MetricsSnapshot{
			Counters: map[goOTP.MetricID]uint64{
				goOTP.MetricCodeIssued: 3,
			},
			Histograms: map[goOTP.MetricID][]uint64{
				goOTP.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
		backlog: 5,
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findSum(rm, "gootp_code_issued_total"); !ok || v != 3 {
		t.Fatalf("expected code issued counter 3, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gootp_delivery_backlog"); !ok || v != 5 {
		t.Fatalf("expected backlog gauge 5, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gootp_validate_latency_seconds_count"); !ok || v != 8 {
		t.Fatalf("expected histogram count 8, got %d (found=%v)", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReaderMeter()
	meter := provider.Meter("gootp-test")

	if _, err := NewExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
	if _, err := NewExporter(meter, nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReaderMeter()
	meter := provider.Meter("gootp-test")

	src := &fakeSource{
		snapshot: goOTP.MetricsSnapshot{
			Counters: map[goOTP.MetricID]uint64{
				goOTP.MetricLoginSuccess: 1,
			},
		},
	}

	exp, err := NewExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goOTP.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
