package authcore

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricOTPIssued)
	m.Observe(MetricLoginLatency, 7*time.Millisecond)
	m.Observe(MetricLoginLatency, 800*time.Millisecond)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("MetricLoginSuccess = %d, want 2", got)
	}

	s := m.Snapshot()
	if s.Counters[MetricLoginSuccess] != 2 || s.Counters[MetricOTPIssued] != 1 {
		t.Fatalf("snapshot counters = %v", s.Counters)
	}
	if s.Counters[MetricLoginFailure] != 0 {
		t.Fatalf("untouched counter = %d", s.Counters[MetricLoginFailure])
	}

	hist := s.Histograms[MetricLoginLatency]
	if len(hist) != histBucketCount {
		t.Fatalf("histogram length = %d", len(hist))
	}
	if hist[1] != 1 || hist[7] != 1 {
		t.Fatalf("histogram = %v", hist)
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, time.Millisecond)

	if m.Enabled() {
		t.Fatal("Enabled() = true")
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("Value = %d, want 0", got)
	}
	s := m.Snapshot()
	if len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatalf("disabled snapshot = %+v", s)
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, time.Millisecond)
	if m.Enabled() {
		t.Fatal("nil Enabled() = true")
	}
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil Value != 0")
	}
	s := m.Snapshot()
	if len(s.Counters) != 0 {
		t.Fatalf("nil snapshot = %+v", s)
	}
}

func TestMetricsOutOfRangeID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(metricIDCount)
	m.Inc(metricIDCount + 100)
	if got := m.Value(metricIDCount); got != 0 {
		t.Fatalf("out of range Value = %d", got)
	}
}

func TestBucketIndex(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{10 * time.Second, 7},
	}
	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Errorf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perGoroutine = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				m.Inc(MetricLoginFailure)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricLoginFailure); got != goroutines*perGoroutine {
		t.Fatalf("concurrent count = %d, want %d", got, goroutines*perGoroutine)
	}
}
