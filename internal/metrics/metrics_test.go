package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := NewCounter("events_total", "test", nil)
	c.Inc()
	c.Add(5)
	if c.Value() != 6 {
		t.Errorf("value = %d, want 6", c.Value())
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("x", "", nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if c.Value() != 8000 {
		t.Errorf("value = %d, want 8000", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("devices", "test", nil)
	g.Set(3)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 2 {
		t.Errorf("value = %d, want 2", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("lat", "test", nil, []float64{10, 100, 1000})
	for _, v := range []float64{5, 50, 500, 5000} {
		h.Observe(v)
	}
	if h.Count() != 4 {
		t.Errorf("count = %d, want 4", h.Count())
	}
	if h.Sum() != 5555 {
		t.Errorf("sum = %g, want 5555", h.Sum())
	}
	if got := h.Mean(); got != 5555.0/4 {
		t.Errorf("mean = %g", got)
	}
}

func TestHistogramQuantile(t *testing.T) {
	h := NewHistogram("lat", "test", nil, []float64{10, 100, 1000})
	for i := 0; i < 100; i++ {
		h.Observe(50) // all in the (10,100] bucket
	}
	p95 := h.Quantile(0.95)
	if p95 <= 10 || p95 > 100 {
		t.Errorf("p95 = %g, want within (10,100]", p95)
	}
}

func TestHistogramTimer(t *testing.T) {
	h := NewHistogram("lat", "test", nil, nil)
	timer := h.Timer()
	time.Sleep(time.Millisecond)
	d := timer.Stop()
	if d < time.Millisecond {
		t.Errorf("elapsed = %v", d)
	}
	if h.Count() != 1 {
		t.Errorf("count = %d", h.Count())
	}
}

func TestRegistryNamespace(t *testing.T) {
	r := NewRegistry("keyrx")
	c := r.RegisterCounter("events_total", "test", nil)
	if c.Name() != "keyrx_events_total" {
		t.Errorf("name = %q", c.Name())
	}
	// Same name returns the same counter.
	if r.RegisterCounter("events_total", "test", nil) != c {
		t.Error("re-registration should return existing counter")
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("keyrx")
	r.RegisterCounter("events_total", "Events processed", nil).Add(42)
	r.RegisterGauge("devices", "Attached devices", Labels{"kind": "keyboard"}).Set(2)
	r.RegisterHistogram("lat_us", "Latency", nil, []float64{10, 100}).Observe(50)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"# TYPE keyrx_events_total counter",
		"keyrx_events_total 42",
		"# TYPE keyrx_devices gauge",
		`keyrx_devices{kind="keyboard"} 2`,
		"# TYPE keyrx_lat_us histogram",
		`keyrx_lat_us_bucket{le="10"} 0`,
		`keyrx_lat_us_bucket{le="100"} 1`,
		`keyrx_lat_us_bucket{le="+Inf"} 1`,
		"keyrx_lat_us_count 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	r := NewRegistry("keyrx")
	r.RegisterCounter("events_total", "", nil).Add(7)

	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}
	var snap map[string]any
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if snap["keyrx_events_total"].(float64) != 7 {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestDaemonMetrics(t *testing.T) {
	m := NewDaemonMetrics(NewRegistry("test"))
	m.RecordProcess(50*time.Microsecond, 2)
	m.RecordProcess(80*time.Microsecond, 1)
	m.RecordDrop()
	m.RecordReload(10*time.Millisecond, true)
	m.RecordReload(0, false)

	if m.EventsProcessed.Value() != 2 {
		t.Errorf("processed = %d", m.EventsProcessed.Value())
	}
	if m.OutputsEmitted.Value() != 3 {
		t.Errorf("outputs = %d", m.OutputsEmitted.Value())
	}
	if m.EventsDropped.Value() != 1 {
		t.Errorf("dropped = %d", m.EventsDropped.Value())
	}
	if m.ProfileReloads.Value() != 1 || m.ReloadFailures.Value() != 1 {
		t.Errorf("reloads = %d, failures = %d", m.ProfileReloads.Value(), m.ReloadFailures.Value())
	}
	if m.ProcessLatencyUs.Count() != 2 {
		t.Errorf("latency observations = %d", m.ProcessLatencyUs.Count())
	}
	m.UpdateUptime()
	if m.UptimeSeconds.Value() < 0 {
		t.Errorf("uptime = %d", m.UptimeSeconds.Value())
	}
}
