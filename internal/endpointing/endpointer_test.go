package endpointing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_NoEndpointBelowThreshold(t *testing.T) {
	e := NewEndpointer()

	d := e.Evaluate(800, 1500, "I want to book a flight.")
	assert.False(t, d.Endpoint)
	assert.Zero(t, d.ExtendThresholdMs)
}

func TestEvaluate_AcousticOnlyWithoutTranscript(t *testing.T) {
	e := NewEndpointer()

	// No transcript: semantic pass skipped, acoustic decides alone
	d := e.Evaluate(1600, 1500, "")
	require.True(t, d.Endpoint, "missing transcript must not block an acoustic endpoint")
	assert.Equal(t, ConfidenceMedium, d.Confidence)

	// Far past threshold the acoustic-only call is high confidence
	d = e.Evaluate(3500, 1500, "   ")
	require.True(t, d.Endpoint)
	assert.Equal(t, ConfidenceHigh, d.Confidence)
}

func TestEvaluate_TrailingPrepositionExtends(t *testing.T) {
	e := NewEndpointer()

	// "I need to fly to..." at 1600ms silence with a 1500ms threshold:
	// semantic flags incomplete, so no commit and the threshold grows.
	d := e.Evaluate(1600, 1500, "I need to fly to...")
	require.False(t, d.Endpoint)
	assert.Greater(t, d.ExtendThresholdMs, 1500)
}

func TestEvaluate_BothAgreeHighConfidence(t *testing.T) {
	e := NewEndpointer()

	d := e.Evaluate(3200, 1500, "Book me a flight to Austin tomorrow.")
	require.True(t, d.Endpoint)
	assert.Equal(t, ConfidenceHigh, d.Confidence)
}

func TestEvaluate_AgreementAtLowerConfidenceIsMedium(t *testing.T) {
	e := NewEndpointer()

	// Barely past threshold (acoustic ~0.53), semantic default-complete (0.6)
	d := e.Evaluate(1550, 1500, "book a flight to Austin tomorrow morning")
	require.True(t, d.Endpoint)
	assert.Equal(t, ConfidenceMedium, d.Confidence)
}

func TestSemantic_EmptyTranscriptSkipsPass(t *testing.T) {
	p := NewSemanticPass()

	for _, transcript := range []string{"", "   ", "\t\n"} {
		r := p.Evaluate(transcript)
		assert.Equal(t, VerdictNone, r.Verdict,
			"empty transcript must never produce an incomplete verdict")
	}
}

func TestSemantic_IncompleteMarkers(t *testing.T) {
	p := NewSemanticPass()

	cases := map[string]string{
		"I was thinking...":     "trailing ellipsis",
		"give me the first,":    "trailing comma",
		"I need to fly to":      "trailing connective",
		"because":               "subordinate fragment",
		"if we":                 "subordinate fragment",
		"um":                    "filler only",
		"uh well":               "filler only",
		"send the report and":   "trailing connective",
	}

	for transcript, reason := range cases {
		r := p.Evaluate(transcript)
		assert.Equal(t, VerdictIncomplete, r.Verdict, "transcript %q", transcript)
		assert.Equal(t, reason, r.Reason, "transcript %q", transcript)
	}
}

func TestSemantic_CompleteMarkers(t *testing.T) {
	p := NewSemanticPass()

	r := p.Evaluate("Book the flight for Tuesday.")
	assert.Equal(t, VerdictComplete, r.Verdict)
	assert.InDelta(t, 0.9, r.Confidence, 0.001)

	r = p.Evaluate("send it to everyone, that's all")
	assert.Equal(t, VerdictComplete, r.Verdict)
	assert.InDelta(t, 0.95, r.Confidence, 0.001)

	// Fuzzy tolerance for transcription noise in the hand-over phrase
	r = p.Evaluate("thats all")
	assert.Equal(t, VerdictComplete, r.Verdict)
}

func TestSemantic_DefaultComplete(t *testing.T) {
	p := NewSemanticPass()

	r := p.Evaluate("book me a table for two tonight")
	assert.Equal(t, VerdictComplete, r.Verdict)
	assert.InDelta(t, 0.6, r.Confidence, 0.001)
}

func TestAdjustThreshold_Question(t *testing.T) {
	got := AdjustThreshold(1500, TurnContext{Transcript: "what time is the meeting?", TurnNumber: 10})
	assert.Equal(t, 1200, got)
}

func TestAdjustThreshold_SlowEarlySpeaker(t *testing.T) {
	got := AdjustThreshold(1500, TurnContext{
		Transcript:     "well I was hoping",
		WordsPerSecond: 1.5,
		TurnNumber:     1,
	})
	// 1.5 * 1.4 = 2.1x
	assert.Equal(t, 3150, got)
}

func TestAdjustThreshold_ClampUpper(t *testing.T) {
	got := AdjustThreshold(1000, TurnContext{
		Transcript:         string(make([]byte, 150)),
		WordsPerSecond:     1.0,
		TurnNumber:         1,
		NonNativePattern:   true,
		NoiseLevel:         0.6,
		InterruptionRate:   0.5,
		AvgTurnLengthWords: 30,
	})
	assert.Equal(t, 3000, got, "factor product must clamp at 3.0x")
}

func TestAdjustThreshold_ClampLower(t *testing.T) {
	// A single 0.8 factor cannot reach the lower clamp; verify the clamp
	// directly with a fast-speaking question
	got := AdjustThreshold(1000, TurnContext{
		Transcript:     "why?",
		WordsPerSecond: 5.0,
		TurnNumber:     10,
	})
	// 0.8 * 0.9 = 0.72x, above the 0.5x clamp
	assert.Equal(t, 720, got)
	assert.GreaterOrEqual(t, got, 500)
}

func TestAdjustThreshold_NeutralContext(t *testing.T) {
	got := AdjustThreshold(1500, TurnContext{Transcript: "bring up the dashboard please", TurnNumber: 8, WordsPerSecond: 3.5})
	assert.Equal(t, 1500, got)
}
