package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumInt64 returns the total of all data points of an int64 sum metric.
func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_TransportCounters(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.CaptureFrames(3)
	m.CaptureFrames(1)
	m.PlaybackBytes(640)
	m.Interruption()

	rm := collect(t, reader)

	frames := findMetric(rm, "aulos.capture.frames")
	if frames == nil {
		t.Fatal("aulos.capture.frames not found")
	}
	if got := sumInt64(t, frames); got != 4 {
		t.Errorf("capture frames = %d, want 4", got)
	}

	bytesMetric := findMetric(rm, "aulos.playback.bytes")
	if bytesMetric == nil {
		t.Fatal("aulos.playback.bytes not found")
	}
	if got := sumInt64(t, bytesMetric); got != 640 {
		t.Errorf("playback bytes = %d, want 640", got)
	}

	interruptions := findMetric(rm, "aulos.interruptions")
	if interruptions == nil {
		t.Fatal("aulos.interruptions not found")
	}
	if got := sumInt64(t, interruptions); got != 1 {
		t.Errorf("interruptions = %d, want 1", got)
	}
}

func TestMetrics_PacerInterval(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.PacerInterval(5 * time.Millisecond)
	m.PacerInterval(7 * time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "aulos.pacer.interval")
	if met == nil {
		t.Fatal("aulos.pacer.interval not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("pacer interval is %T, want Histogram[float64]", met.Data)
	}
	var count uint64
	var sum float64
	for _, dp := range hist.DataPoints {
		count += dp.Count
		sum += dp.Sum
	}
	if count != 2 {
		t.Errorf("histogram count = %d, want 2", count)
	}
	if sum < 0.011 || sum > 0.013 {
		t.Errorf("histogram sum = %v, want ≈0.012", sum)
	}
}

func TestMetrics_PacerReportSkipsZeroDeltas(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.PacerReport(0, 0)
	m.PacerReport(2, 1)

	rm := collect(t, reader)

	slow := findMetric(rm, "aulos.pacer.slow_writes")
	if slow == nil {
		t.Fatal("aulos.pacer.slow_writes not found")
	}
	if got := sumInt64(t, slow); got != 2 {
		t.Errorf("slow writes = %d, want 2", got)
	}

	under := findMetric(rm, "aulos.engine.underflows")
	if under == nil {
		t.Fatal("aulos.engine.underflows not found")
	}
	if got := sumInt64(t, under); got != 1 {
		t.Errorf("underflows = %d, want 1", got)
	}
}

func TestMetrics_RingLevels(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RingLevels(100, 200)
	m.RingLevels(150, 50)

	rm := collect(t, reader)
	capRing := findMetric(rm, "aulos.ring.capture_level")
	if capRing == nil {
		t.Fatal("aulos.ring.capture_level not found")
	}
	gauge, ok := capRing.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("ring level is %T, want Gauge[int64]", capRing.Data)
	}
	if len(gauge.DataPoints) == 0 {
		t.Fatal("no gauge data points")
	}
	if got := gauge.DataPoints[len(gauge.DataPoints)-1].Value; got != 150 {
		t.Errorf("capture ring level = %d, want 150 (latest sample)", got)
	}
}

func TestDefaultMetrics_SameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
