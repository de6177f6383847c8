// Package observability exposes the Prometheus instruments the turn
// workflow engine emits: session/turn counters, decomposition and
// collaborator-call latency histograms, and controller-channel traffic.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions       prometheus.Gauge
	SessionEvents        *prometheus.CounterVec
	TurnOutcomes         *prometheus.CounterVec
	DecomposeJobs        *prometheus.CounterVec
	DecomposeJobDuration prometheus.Histogram
	CollaboratorLatency  *prometheus.HistogramVec
	CollaboratorErrors   *prometheus.CounterVec
	ControllerConns      *prometheus.CounterVec
	WSMessages           *prometheus.CounterVec
	WSWriteErrors        *prometheus.CounterVec
	OutboundMessages     *prometheus.CounterVec
	FirstAudioLatency    prometheus.Histogram
	TurnStageLatency     *prometheus.HistogramVec
	turnStageWindow      *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions with a workflow currently running.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		TurnOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Per-slot turn outcomes by turn index, kind, and success.",
		}, []string{"turn_index", "kind", "success"}),
		DecomposeJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decompose_jobs_total",
			Help:      "Decomposition pool job outcomes by result.",
		}, []string{"result"}),
		DecomposeJobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decompose_job_duration_ms",
			Help:      "Wall-clock duration of one decomposition job in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 200, 400, 800, 1500, 3000, 6000, 12000},
		}),
		CollaboratorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_call_latency_ms",
			Help:      "LLM/TTS/STT collaborator call latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"collaborator"}),
		CollaboratorErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Collaborator call errors by collaborator and error kind.",
		}, []string{"collaborator", "kind"}),
		ControllerConns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_channel_connections_total",
			Help:      "Controller channel connect/disconnect/write-error events.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write errors by reason.",
		}, []string{"reason"}),
		OutboundMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound orchestrator messages by type and delivery result.",
		}, []string{"type", "result"}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from workflow start to the first turn-1 slot's audio being ready, in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 4000},
		}),
		TurnStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Per-turn wall-clock latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 900, 1500, 3000, 6000, 12000, 20000},
		}, []string{"stage"}),
		turnStageWindow: newTurnStageWindow(256),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	if m == nil || m.FirstAudioLatency == nil {
		return
	}
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil || m.TurnStageLatency == nil {
		return
	}
	ms := float64(d.Milliseconds())
	m.TurnStageLatency.WithLabelValues(stage).Observe(ms)
	m.turnStageWindow.Observe(stage, ms)
}

func (m *Metrics) ObserveTurnOutcome(turnIndex int, kind string, success bool) {
	if m == nil || m.TurnOutcomes == nil {
		return
	}
	m.TurnOutcomes.WithLabelValues(strconv.Itoa(turnIndex), kind, boolLabel(success)).Inc()
}

func (m *Metrics) ObserveDecomposeJob(result string, d time.Duration) {
	if m == nil || m.DecomposeJobs == nil {
		return
	}
	m.DecomposeJobs.WithLabelValues(result).Inc()
	if d > 0 {
		m.DecomposeJobDuration.Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) ObserveCollaboratorCall(collaborator string, d time.Duration) {
	if m == nil || m.CollaboratorLatency == nil {
		return
	}
	m.CollaboratorLatency.WithLabelValues(collaborator).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveCollaboratorError(collaborator, kind string) {
	if m == nil || m.CollaboratorErrors == nil {
		return
	}
	m.CollaboratorErrors.WithLabelValues(collaborator, kind).Inc()
}

func (m *Metrics) ObserveControllerConn(event string) {
	if m == nil || m.ControllerConns == nil {
		return
	}
	m.ControllerConns.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveOutboundMessage(msgType, result string) {
	m.OutboundMessages.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m.turnStageWindow == nil {
		return TurnStageSnapshot{}
	}
	return m.turnStageWindow.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil || m.turnStageWindow == nil {
		return
	}
	m.turnStageWindow.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
