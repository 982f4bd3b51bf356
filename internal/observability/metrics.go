package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turn_engine_active_sessions",
		Help: "Number of active dialogue sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_engine_sessions_total",
		Help: "Total number of dialogue sessions processed",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turn_engine_session_duration_seconds",
		Help:    "Duration of dialogue sessions in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// Turn-taking metrics
	endpointDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_engine_endpoint_decisions_total",
		Help: "Endpoint decisions by confidence",
	}, []string{"confidence"})

	thresholdExtensions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_engine_threshold_extensions_total",
		Help: "Times the silence threshold was extended instead of endpointing",
	})

	effectiveThresholdMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turn_engine_effective_threshold_ms",
		Help:    "Effective silence threshold at each endpoint decision",
		Buckets: []float64{500, 750, 1000, 1500, 2000, 2500, 3000},
	})

	earlyCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_engine_fusion_early_commits_total",
		Help: "Turns committed by the fusion predictor before the silence threshold",
	})

	overlapClassifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_engine_overlap_classifications_total",
		Help: "Overlapping-audio classifications by label",
	}, []string{"label"})

	interruptionIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_engine_interruption_intents_total",
		Help: "Classified interruption intents by type",
	}, []string{"type"})

	duckingLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turn_engine_ducking_volume",
		Help: "Current assistant playback volume target (0-1)",
	})

	backchannelsPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_engine_backchannels_total",
		Help: "Acknowledgment clips played while the user was speaking",
	})

	// Delivery metrics
	chunksPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_engine_chunks_played_total",
		Help: "Speech chunks fully played to the user",
	})

	chunksAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_engine_chunks_aborted_total",
		Help: "Speech chunks discarded by an abort",
	})

	// External service metrics
	sttLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turn_engine_stt_latency_seconds",
		Help:    "STT processing latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turn_engine_tts_latency_seconds",
		Help:    "TTS first-audio latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turn_engine_generation_latency_seconds",
		Help:    "Text-generation first-token latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_engine_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "turn_engine_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_engine_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks per-session measurements
type Metrics struct {
	sessionID           string
	startTime           time.Time
	sttStartTime        time.Time
	ttsStartTime        time.Time
	generationStartTime time.Time
	mu                  sync.Mutex
}

// NewSessionMetrics creates a metrics tracker for a dialogue session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *Metrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordEndpointDecision records an endpoint decision and the threshold in force
func (m *Metrics) RecordEndpointDecision(confidence string, thresholdMs float64) {
	endpointDecisions.WithLabelValues(confidence).Inc()
	effectiveThresholdMs.Observe(thresholdMs)
}

// RecordThresholdExtension records a conservative threshold extension
func (m *Metrics) RecordThresholdExtension() {
	thresholdExtensions.Inc()
}

// RecordEarlyCommit records a fusion-predictor early turn commit
func (m *Metrics) RecordEarlyCommit() {
	earlyCommits.Inc()
}

// RecordOverlapClassification records an overlap classification label
func (m *Metrics) RecordOverlapClassification(label string) {
	overlapClassifications.WithLabelValues(label).Inc()
}

// RecordInterruptionIntent records a classified interruption intent
func (m *Metrics) RecordInterruptionIntent(intent string) {
	interruptionIntents.WithLabelValues(intent).Inc()
}

// RecordDuckingLevel publishes the current playback volume target
func (m *Metrics) RecordDuckingLevel(volume float64) {
	duckingLevel.Set(volume)
}

// RecordBackchannel records a played acknowledgment clip
func (m *Metrics) RecordBackchannel() {
	backchannelsPlayed.Inc()
}

// RecordChunkPlayed records a fully delivered speech chunk
func (m *Metrics) RecordChunkPlayed() {
	chunksPlayed.Inc()
}

// RecordChunksAborted records chunks discarded by an abort
func (m *Metrics) RecordChunksAborted(n int) {
	chunksAborted.Add(float64(n))
}

// RecordSTTStart records the start of STT processing
func (m *Metrics) RecordSTTStart() {
	m.mu.Lock()
	m.sttStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSTTEnd records the end of STT processing
func (m *Metrics) RecordSTTEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sttStartTime.IsZero() {
		sttLatency.Observe(time.Since(m.sttStartTime).Seconds())
		m.sttStartTime = time.Time{}
	}
}

// RecordTTSStart records the start of a synthesis request
func (m *Metrics) RecordTTSStart() {
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSFirstAudio records time to first synthesized audio
func (m *Metrics) RecordTTSFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ttsStartTime.IsZero() {
		ttsLatency.Observe(time.Since(m.ttsStartTime).Seconds())
		m.ttsStartTime = time.Time{}
	}
}

// RecordGenerationStart records the start of a generation request
func (m *Metrics) RecordGenerationStart() {
	m.mu.Lock()
	m.generationStartTime = time.Now()
	m.mu.Unlock()
}

// RecordGenerationFirstToken records time to the first generated token
func (m *Metrics) RecordGenerationFirstToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.generationStartTime.IsZero() {
		generationLatency.Observe(time.Since(m.generationStartTime).Seconds())
		m.generationStartTime = time.Time{}
	}
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
