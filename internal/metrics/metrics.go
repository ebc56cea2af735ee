package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_clients_connected",
		Help: "Currently connected downstream clients",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_active",
		Help: "Currently active relay sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_sessions_total",
		Help: "Total relay sessions started",
	})

	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_session_duration_seconds",
		Help:    "Session lifetime from start_recording to cleanup",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_stage_duration_seconds",
		Help:    "Per-stage latency (connect, configure, first_audio)",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	ResampleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_resample_duration_seconds",
		Help:    "Per-chunk resample latency",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	})

	FramesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_frames_enqueued_total",
		Help: "Audio frames accepted into session queues",
	})

	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_frames_sent_total",
		Help: "Audio frames forwarded upstream",
	})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_frames_dropped_total",
		Help: "Audio chunks dropped before reaching the upstream",
	}, []string{"reason"})

	UpstreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_upstream_events_total",
		Help: "Upstream events received by type",
	}, []string{"type"})

	Terminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_task_terminations_total",
		Help: "Sender/receiver exits by reason",
	}, []string{"task", "reason"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
