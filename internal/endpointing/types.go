package endpointing

// Confidence grades an endpoint decision
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Decision is produced once per evaluation tick while a segment is collecting
type Decision struct {
	Endpoint          bool
	Confidence        Confidence
	ExtendThresholdMs int // When >0, the caller should wait for this threshold instead
	Reason            string
}

// Verdict is the outcome of the semantic completeness pass
type Verdict int

const (
	// VerdictNone means the pass was skipped (no transcript available).
	// Empty input is the normal no-partial-transcript case, not evidence
	// of incompleteness.
	VerdictNone Verdict = iota
	VerdictComplete
	VerdictIncomplete
)

// SemanticResult pairs a verdict with its confidence
type SemanticResult struct {
	Verdict    Verdict
	Confidence float64
	Reason     string
}
