// Package metrics exposes Prometheus counters for the capture pipelines,
// tracker, alert log, and HTTP query service.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application counters, mirrored into Prometheus gauges.
type Metrics struct {
	FramesCaptured  atomic.Uint64
	FramesAnalyzed  atomic.Uint64
	FramesDropped   atomic.Uint64
	CaptureErrors   atomic.Uint64
	InferenceErrors atomic.Uint64

	MotionEvents    atomic.Uint64
	MotionROIEvents atomic.Uint64
	TripwireEvents  atomic.Uint64
	LoiteringEvents atomic.Uint64

	TracksCreated atomic.Uint64
	TracksEvicted atomic.Uint64
	ActiveTracks  atomic.Uint64

	AlertsLogged   atomic.Uint64
	AlertsRemoved  atomic.Uint64
	SnapshotsSaved atomic.Uint64
	ExportsRun     atomic.Uint64

	HTTPRequests atomic.Uint64
	HTTPErrors   atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its Prometheus collectors registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) gauge(name, help string, f func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		f,
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	m.gauge("sentineld_frames_captured_total", "Total frames captured across all cameras",
		func() float64 { return float64(m.FramesCaptured.Load()) })
	m.gauge("sentineld_frames_analyzed_total", "Total frames passed through the analytics pipeline",
		func() float64 { return float64(m.FramesAnalyzed.Load()) })
	m.gauge("sentineld_frames_dropped_total", "Total analytic events dropped because the event bus was full",
		func() float64 { return float64(m.FramesDropped.Load()) })
	m.gauge("sentineld_capture_errors_total", "Total source-open/frame-grab failures",
		func() float64 { return float64(m.CaptureErrors.Load()) })
	m.gauge("sentineld_inference_errors_total", "Total detection adapter inference failures",
		func() float64 { return float64(m.InferenceErrors.Load()) })

	m.gauge("sentineld_motion_events_total", "Total global motion events emitted",
		func() float64 { return float64(m.MotionEvents.Load()) })
	m.gauge("sentineld_motion_roi_events_total", "Total ROI motion events emitted",
		func() float64 { return float64(m.MotionROIEvents.Load()) })
	m.gauge("sentineld_tripwire_events_total", "Total tripwire crossing events (motion + tracker)",
		func() float64 { return float64(m.TripwireEvents.Load()) })
	m.gauge("sentineld_loitering_events_total", "Total loitering events emitted",
		func() float64 { return float64(m.LoiteringEvents.Load()) })

	m.gauge("sentineld_tracks_created_total", "Total tracks created",
		func() float64 { return float64(m.TracksCreated.Load()) })
	m.gauge("sentineld_tracks_evicted_total", "Total tracks evicted on timeout",
		func() float64 { return float64(m.TracksEvicted.Load()) })
	m.gauge("sentineld_active_tracks", "Currently active tracks across all cameras",
		func() float64 { return float64(m.ActiveTracks.Load()) })

	m.gauge("sentineld_alerts_logged_total", "Total alerts appended to the alert log",
		func() float64 { return float64(m.AlertsLogged.Load()) })
	m.gauge("sentineld_alerts_removed_total", "Total alerts removed from the alert log",
		func() float64 { return float64(m.AlertsRemoved.Load()) })
	m.gauge("sentineld_snapshots_saved_total", "Total PNG snapshot exports",
		func() float64 { return float64(m.SnapshotsSaved.Load()) })
	m.gauge("sentineld_exports_run_total", "Total CSV/JSON export operations",
		func() float64 { return float64(m.ExportsRun.Load()) })

	m.gauge("sentineld_http_requests_total", "Total HTTP requests served by the query service",
		func() float64 { return float64(m.HTTPRequests.Load()) })
	m.gauge("sentineld_http_errors_total", "Total HTTP requests rejected with 405 for a non-GET method; other 4xx/5xx responses are not counted",
		func() float64 { return float64(m.HTTPErrors.Load()) })
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts a dedicated metrics HTTP server, separate from the
// public read-only query service (see internal/httpapi).
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
