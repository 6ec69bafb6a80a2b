// Package metrics defines Prometheus instrumentation for the interview
// engine. All recording methods are nil-safe so components can run without
// metrics wired.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the viva engine.
type Metrics struct {
	// Turn metrics
	TurnsAppended *prometheus.CounterVec

	// Score extraction metrics
	ScoreExtractions *prometheus.CounterVec

	// Capture metrics
	CaptureStarts prometheus.Counter
	CaptureErrors *prometheus.CounterVec
	FramesSent    prometheus.Counter

	// Playback metrics
	PlaybackDuration prometheus.Histogram

	// Bridge metrics
	BridgeEvents     *prometheus.CounterVec
	BridgeAgentTurns prometheus.Counter

	// Orchestrator metrics
	StageTransitions *prometheus.CounterVec
	SubmissionErrors prometheus.Counter
}

// New creates and registers all engine metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates and registers all engine metrics on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "viva_turns_appended_total",
			Help: "Total interview turns appended, by role",
		}, []string{"role"}),
		ScoreExtractions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "viva_score_extractions_total",
			Help: "Score extraction attempts, by outcome (found, fallback)",
		}, []string{"outcome"}),
		CaptureStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "viva_capture_starts_total",
			Help: "Total capture sessions started",
		}),
		CaptureErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "viva_capture_errors_total",
			Help: "Capture failures, by error kind",
		}, []string{"kind"}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "viva_capture_frames_sent_total",
			Help: "Audio frames forwarded to the transcription channel",
		}),
		PlaybackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "viva_playback_duration_seconds",
			Help:    "Wall time of synthesized speech playback",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		BridgeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "viva_bridge_events_total",
			Help: "Inbound bridge events, by classified kind",
		}, []string{"kind"}),
		BridgeAgentTurns: factory.NewCounter(prometheus.CounterOpts{
			Name: "viva_bridge_agent_turns_total",
			Help: "Agent-originated turns observed on the live bridge",
		}),
		StageTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "viva_stage_transitions_total",
			Help: "Orchestrator stage transitions, by target stage",
		}, []string{"stage"}),
		SubmissionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "viva_submission_errors_total",
			Help: "Answer submissions that failed and were recovered with an error turn",
		}),
	}
}

// TurnAppended records an appended turn.
func (m *Metrics) TurnAppended(role string) {
	if m == nil {
		return
	}
	m.TurnsAppended.WithLabelValues(role).Inc()
}

// ScoreExtraction records an extraction outcome.
func (m *Metrics) ScoreExtraction(outcome string) {
	if m == nil {
		return
	}
	m.ScoreExtractions.WithLabelValues(outcome).Inc()
}

// CaptureStarted records a capture session start.
func (m *Metrics) CaptureStarted() {
	if m == nil {
		return
	}
	m.CaptureStarts.Inc()
}

// CaptureError records a capture failure by kind.
func (m *Metrics) CaptureError(kind string) {
	if m == nil {
		return
	}
	m.CaptureErrors.WithLabelValues(kind).Inc()
}

// FrameSent records one forwarded audio frame.
func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// PlaybackFinished records a completed playback duration in seconds.
func (m *Metrics) PlaybackFinished(seconds float64) {
	if m == nil {
		return
	}
	m.PlaybackDuration.Observe(seconds)
}

// BridgeEvent records a classified inbound bridge event.
func (m *Metrics) BridgeEvent(kind string) {
	if m == nil {
		return
	}
	m.BridgeEvents.WithLabelValues(kind).Inc()
}

// BridgeAgentTurn records one agent turn.
func (m *Metrics) BridgeAgentTurn() {
	if m == nil {
		return
	}
	m.BridgeAgentTurns.Inc()
}

// StageTransition records an orchestrator stage change.
func (m *Metrics) StageTransition(stage string) {
	if m == nil {
		return
	}
	m.StageTransitions.WithLabelValues(stage).Inc()
}

// SubmissionError records a recovered answer submission failure.
func (m *Metrics) SubmissionError() {
	if m == nil {
		return
	}
	m.SubmissionErrors.Inc()
}
