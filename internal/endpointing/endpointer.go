package endpointing

import (
	"fmt"
)

// Endpointer decides whether the user's turn has ended, combining an
// acoustic silence check with a semantic completeness check over the
// partial transcript.
type Endpointer struct {
	semantic *SemanticPass
}

// NewEndpointer creates the three-stage endpointing pipeline
func NewEndpointer() *Endpointer {
	return &Endpointer{semantic: NewSemanticPass()}
}

// acousticConfidence scales with how far past the threshold the silence
// already is: 0.5 at the threshold, 1.0 at twice the threshold.
func acousticConfidence(silenceMs, thresholdMs int) float64 {
	over := float64(silenceMs-thresholdMs) / float64(thresholdMs)
	if over > 1 {
		over = 1
	}
	return 0.5 + 0.5*over
}

// Evaluate runs one endpointing tick. transcript may be empty when no
// partial transcript is wired up; the semantic pass is then skipped.
func (e *Endpointer) Evaluate(silenceMs, thresholdMs int, transcript string) Decision {
	// Stage 1: acoustic pass
	if silenceMs < thresholdMs {
		return Decision{
			Endpoint: false,
			Reason:   fmt.Sprintf("silence %dms below threshold %dms", silenceMs, thresholdMs),
		}
	}
	acoustic := acousticConfidence(silenceMs, thresholdMs)

	// Stage 2: semantic pass (skipped without a transcript)
	sem := e.semantic.Evaluate(transcript)

	// Stage 3: arbitration
	switch sem.Verdict {
	case VerdictNone:
		// Acoustic-only decision
		conf := ConfidenceMedium
		if acoustic > 0.7 {
			conf = ConfidenceHigh
		}
		return Decision{Endpoint: true, Confidence: conf, Reason: "acoustic only"}

	case VerdictIncomplete:
		// Utterance reads unfinished: wait longer rather than endpoint
		factor := 1.2
		if sem.Confidence > 0.8 {
			factor = 1.5
		}
		return Decision{
			Endpoint:          false,
			ExtendThresholdMs: int(float64(thresholdMs) * factor),
			Reason:            fmt.Sprintf("semantic incomplete (%s)", sem.Reason),
		}

	case VerdictComplete:
		lower := acoustic
		if sem.Confidence < lower {
			lower = sem.Confidence
		}
		if lower > 0.7 {
			return Decision{Endpoint: true, Confidence: ConfidenceHigh, Reason: "acoustic and semantic agree"}
		}
		if lower >= 0.5 {
			return Decision{Endpoint: true, Confidence: ConfidenceMedium, Reason: "acoustic and semantic agree weakly"}
		}
		// Signals conflict: conservative default is to keep waiting
		return Decision{
			Endpoint:          false,
			ExtendThresholdMs: int(float64(thresholdMs) * 1.3),
			Reason:            "passes disagree",
		}
	}

	return Decision{Endpoint: false, Reason: "unreachable"}
}
