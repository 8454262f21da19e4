package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	sessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_client_session_state",
		Help: "Session connection state (0=idle, 1=connecting, 2=connected, 3=error)",
	})

	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_client_sessions_total",
		Help: "Total number of live sessions opened",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_client_session_duration_seconds",
		Help:    "Duration of live sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_client_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	chunksScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_client_playback_chunks_scheduled_total",
		Help: "Total response audio chunks scheduled for playback",
	})

	interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_client_playback_interruptions_total",
		Help: "Total playback interruptions triggered by the live service",
	})

	// Video frame metrics
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_client_video_frames_total",
		Help: "Total camera frames captured, by submission outcome",
	}, []string{"status"}) // status: "sent" or "dropped"

	// Transcript metrics
	transcriptTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_client_transcript_turns_total",
		Help: "Total completed transcript turns appended to history",
	}, []string{"speaker"})

	// Recording metrics
	recordingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_client_recordings_total",
		Help: "Total recording sessions started",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_client_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// SessionMetrics tracks metrics for a single live session.
type SessionMetrics struct {
	startTime time.Time
}

// NewSessionMetrics creates a tracker for one session and records its start.
func NewSessionMetrics() *SessionMetrics {
	sessionsTotal.Inc()
	return &SessionMetrics{startTime: time.Now()}
}

// RecordEnd records the end of the session.
func (m *SessionMetrics) RecordEnd() {
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// SetSessionState updates the session state gauge.
func SetSessionState(state int) {
	sessionState.Set(float64(state))
}

// RecordAudioBytes records audio bytes processed in a direction.
func RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordChunkScheduled records one response chunk handed to the scheduler.
func RecordChunkScheduled() {
	chunksScheduled.Inc()
}

// RecordInterruption records a playback interruption.
func RecordInterruption() {
	interruptions.Inc()
}

// RecordFrame records a camera frame submission outcome.
func RecordFrame(status string) {
	framesTotal.WithLabelValues(status).Inc()
}

// RecordTranscriptTurn records a completed turn appended to history.
func RecordTranscriptTurn(speaker string) {
	transcriptTurns.WithLabelValues(speaker).Inc()
}

// RecordRecordingStart records a recording session start.
func RecordRecordingStart() {
	recordingsTotal.Inc()
}

// RecordError records an error.
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
