package adaptive

import (
	"time"
)

// ProfileStats aggregates what the learner has observed about a user
type ProfileStats struct {
	InterruptionRate       float64 `json:"interruption_rate"`
	AverageTurnLength      float64 `json:"average_turn_length"`
	AverageSilenceDuration float64 `json:"average_silence_duration"`
	SuccessfulTurns        int     `json:"successful_turns"`
}

// UserProfile is the only durable engine state: one record per user ID.
// New fields must default safely so older stored records keep loading.
type UserProfile struct {
	UserID             string       `json:"user_id"`
	OptimalThresholdMs float64      `json:"optimal_threshold_ms"`
	LearningRate       float64      `json:"learning_rate"`
	Observations       int          `json:"observations"`
	Stats              ProfileStats `json:"stats"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// FeedbackType names the signals the learner consumes
type FeedbackType string

const (
	// FeedbackInterruption: the user re-prompted within ~2s with
	// overlapping or continuation content; we endpointed too early.
	FeedbackInterruption FeedbackType = "interruption"
	// FeedbackLongWait: silence ran past twice the threshold with no
	// interruption; we waited too long.
	FeedbackLongWait FeedbackType = "long_wait"
	// FeedbackPerfect: the turn hand-over landed cleanly.
	FeedbackPerfect FeedbackType = "perfect"
	// FeedbackExplicit: the user or UI gave direct feedback.
	FeedbackExplicit FeedbackType = "explicit"
)

// FeedbackContext captures the conditions the signal was observed under
type FeedbackContext struct {
	ThresholdMs       int `json:"threshold_ms"`
	SilenceDurationMs int `json:"silence_duration_ms"`
	TranscriptLength  int `json:"transcript_length,omitempty"`
}

// FeedbackSignal is a transient event consumed by the learner and mirrored
// to the telemetry sink
type FeedbackSignal struct {
	Type        FeedbackType    `json:"type"`
	TimestampMs int64           `json:"timestamp_ms"`
	Context     FeedbackContext `json:"context"`
}
