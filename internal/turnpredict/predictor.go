package turnpredict

import (
	"context"

	"github.com/convoflow/turn-engine/internal/audio"
	"github.com/convoflow/turn-engine/internal/endpointing"
)

// Decision is the predictor's verdict for one evaluation tick
type Decision struct {
	TakeTurn    bool
	Confidence  float64
	ThresholdMs int // Optional threshold override, 0 when absent
	Reason      string
}


// Predictor decides whether to take the turn before the full silence
// threshold elapses. Implementations must fail closed: when a signal is
// missing or degraded, confidence is 0 and the caller's threshold-based
// endpointing stays authoritative.
type Predictor interface {
	Decide(ctx context.Context, transcript string, features audio.Features, silenceMs int) Decision
}

// Fusion weights. Text carries most of the signal; prosody breaks ties.
const (
	textWeight    = 0.6
	prosodyWeight = 0.4
)

// FusionPredictor is the rule-based fusion of a text-completion signal and
// a prosody signal. It stands in for a learned model behind the same
// interface.
type FusionPredictor struct {
	semantic     *endpointing.SemanticPass
	minSilenceMs int
	commitAt     float64
}

// NewFusionPredictor creates a predictor that commits early once fused
// confidence exceeds commitAt and silence has run at least minSilenceMs
func NewFusionPredictor(minSilenceMs int, commitAt float64) *FusionPredictor {
	return &FusionPredictor{
		semantic:     endpointing.NewSemanticPass(),
		minSilenceMs: minSilenceMs,
		commitAt:     commitAt,
	}
}

// Decide fuses the text and prosody signals for the current tick
func (p *FusionPredictor) Decide(_ context.Context, transcript string, features audio.Features, silenceMs int) Decision {
	if silenceMs < p.minSilenceMs {
		return Decision{Reason: "silence below fusion minimum"}
	}

	text, textOK := p.textSignal(transcript)
	if !textOK {
		// No transcript means no evidence of completion, never the
		// other way around
		return Decision{Reason: "no transcript"}
	}

	prosody, prosodyOK := prosodySignal(features)
	fused := text
	if prosodyOK {
		fused = textWeight*text + prosodyWeight*prosody
	}

	if fused > p.commitAt {
		return Decision{TakeTurn: true, Confidence: fused, Reason: "fusion commit"}
	}
	return Decision{Confidence: fused, Reason: "fusion below commit threshold"}
}

// textSignal maps the semantic completeness verdict onto [0, 1]
func (p *FusionPredictor) textSignal(transcript string) (float64, bool) {
	r := p.semantic.Evaluate(transcript)
	switch r.Verdict {
	case endpointing.VerdictComplete:
		return r.Confidence, true
	case endpointing.VerdictIncomplete:
		return 1 - r.Confidence, true
	default:
		return 0, false
	}
}

// prosodySignal reads turn-final cues out of the last voiced burst. Pitch
// declination and falling intensity both mark a turn boundary in read and
// conversational speech.
func prosodySignal(f audio.Features) (float64, bool) {
	if f.DurationMs == 0 || f.Intensity == 0 {
		return 0, false
	}

	score := 0.5
	if f.FrequencyHz > 0 && f.FrequencyHz < 180 {
		score += 0.3
	}
	if f.Intensity < 0.05 {
		score += 0.2
	}
	return score, true
}
