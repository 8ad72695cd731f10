package metrics

import (
	"sync"
	"time"
)

// DaemonMetrics bundles the daemon's operational metrics.
type DaemonMetrics struct {
	registry *Registry

	// Counters.
	EventsProcessed *Counter
	EventsDropped   *Counter
	OutputsEmitted  *Counter
	TapsResolved    *Counter
	HoldsResolved   *Counter
	ProfileReloads  *Counter
	ReloadFailures  *Counter
	Errors          *Counter

	// Gauges.
	AttachedDevices *Gauge
	ActiveLayers    *Gauge
	QueueDepth      *Gauge
	UptimeSeconds   *Gauge

	// Histograms.
	ProcessLatencyUs *Histogram
	CompileMs        *Histogram

	startTime time.Time
}

// NewDaemonMetrics registers the daemon metrics in the given registry.
func NewDaemonMetrics(registry *Registry) *DaemonMetrics {
	if registry == nil {
		registry = Default()
	}
	return &DaemonMetrics{
		registry: registry,

		EventsProcessed: registry.RegisterCounter("events_processed_total",
			"Raw key events processed by the engine", nil),
		EventsDropped: registry.RegisterCounter("events_dropped_total",
			"Events dropped because the queue was full", nil),
		OutputsEmitted: registry.RegisterCounter("outputs_emitted_total",
			"Synthetic key events emitted", nil),
		TapsResolved: registry.RegisterCounter("taps_resolved_total",
			"Tap-hold keys that resolved to their tap action", nil),
		HoldsResolved: registry.RegisterCounter("holds_resolved_total",
			"Tap-hold keys that resolved to their hold action", nil),
		ProfileReloads: registry.RegisterCounter("profile_reloads_total",
			"Successful profile hot reloads", nil),
		ReloadFailures: registry.RegisterCounter("profile_reload_failures_total",
			"Profile reloads rejected by the compiler or loader", nil),
		Errors: registry.RegisterCounter("errors_total",
			"Internal errors logged", nil),

		AttachedDevices: registry.RegisterGauge("attached_devices",
			"Input devices currently managed", nil),
		ActiveLayers: registry.RegisterGauge("active_layers",
			"Devices currently on a non-base layer", nil),
		QueueDepth: registry.RegisterGauge("queue_depth",
			"Events waiting in the processing queue", nil),
		UptimeSeconds: registry.RegisterGauge("uptime_seconds",
			"Seconds since daemon start", nil),

		ProcessLatencyUs: registry.RegisterHistogram("process_latency_us",
			"Per-event processing latency in microseconds", nil, DefaultLatencyBuckets),
		CompileMs: registry.RegisterHistogram("compile_duration_ms",
			"Profile compile duration in milliseconds", nil,
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}),

		startTime: time.Now(),
	}
}

// RecordProcess observes one processed event and its latency.
func (m *DaemonMetrics) RecordProcess(d time.Duration, outputs int) {
	m.EventsProcessed.Inc()
	m.OutputsEmitted.Add(uint64(outputs))
	m.ProcessLatencyUs.ObserveDuration(d)
}

// RecordDrop records an event discarded under backpressure.
func (m *DaemonMetrics) RecordDrop() {
	m.EventsDropped.Inc()
}

// RecordReload records a profile reload attempt.
func (m *DaemonMetrics) RecordReload(compileTime time.Duration, ok bool) {
	if ok {
		m.ProfileReloads.Inc()
		m.CompileMs.Observe(float64(compileTime.Nanoseconds()) / 1e6)
	} else {
		m.ReloadFailures.Inc()
	}
}

// UpdateUptime refreshes the uptime gauge.
func (m *DaemonMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(m.startTime).Seconds()))
}

var (
	daemonMetrics     *DaemonMetrics
	daemonMetricsOnce sync.Once
)

// Daemon returns the global daemon metrics bound to the default registry.
func Daemon() *DaemonMetrics {
	daemonMetricsOnce.Do(func() {
		daemonMetrics = NewDaemonMetrics(Default())
	})
	return daemonMetrics
}
