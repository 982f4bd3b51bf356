package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func classify(t *testing.T, transcript string) Result {
	t.Helper()
	c := NewClassifier()
	return c.Classify(Context{Transcript: transcript, IsAssistantSpeaking: true})
}

func TestClassify_NotSpeakingIsNone(t *testing.T) {
	c := NewClassifier()
	r := c.Classify(Context{Transcript: "hold on", IsAssistantSpeaking: false})
	assert.Equal(t, TypeNone, r.Type)
	assert.Equal(t, ActionContinue, r.SuggestedAction)
}

func TestClassify_PauseRequests(t *testing.T) {
	for _, transcript := range []string{
		"wait",
		"hold on",
		"can you wait one second",
		"hang on a minute",
	} {
		r := classify(t, transcript)
		assert.Equal(t, TypePause, r.Type, "transcript %q", transcript)
		assert.Equal(t, ActionPause, r.SuggestedAction)
		assert.InDelta(t, 0.95, r.Confidence, 0.001)
	}
}

func TestClassify_TopicShiftOpeners(t *testing.T) {
	for _, transcript := range []string{
		"actually let's talk about hotels",
		"by the way what's the weather",
		"anyway, about that other thing",
	} {
		r := classify(t, transcript)
		assert.Equal(t, TypeTopicShift, r.Type, "transcript %q", transcript)
		assert.Equal(t, ActionStopListen, r.SuggestedAction)
	}
}

func TestClassify_CorrectionMidAnswer(t *testing.T) {
	r := classify(t, "no, I meant Austin")
	assert.Equal(t, TypeCorrection, r.Type)
	assert.Equal(t, ActionStopListen, r.SuggestedAction)
	assert.InDelta(t, 0.9, r.Confidence, 0.001)

	r = classify(t, "that's not what I asked")
	assert.Equal(t, TypeCorrection, r.Type)
}

func TestClassify_PauseBeatsCorrection(t *testing.T) {
	// "wait" outranks the correction marker in the same utterance
	r := classify(t, "wait no I meant Austin")
	assert.Equal(t, TypePause, r.Type)
}

func TestClassify_Impatience(t *testing.T) {
	c := NewClassifier()
	r := c.Classify(Context{
		Transcript:              "come on",
		InterruptionCount:       3,
		MsSinceLastInterruption: 4000,
		IsAssistantSpeaking:     true,
	})
	assert.Equal(t, TypeImpatience, r.Type)
	assert.Equal(t, ActionAcknowledge, r.SuggestedAction)

	// Outside the rolling window the same count is plain barge-in
	r = c.Classify(Context{
		Transcript:              "come on",
		InterruptionCount:       3,
		MsSinceLastInterruption: 15000,
		IsAssistantSpeaking:     true,
	})
	assert.Equal(t, TypeBargeIn, r.Type)
}

func TestClassify_GenericBargeIn(t *testing.T) {
	r := classify(t, "turn left at the light")
	assert.Equal(t, TypeBargeIn, r.Type)
	assert.InDelta(t, 0.7, r.Confidence, 0.001)
}

func TestClassify_EmptyTranscriptIsNone(t *testing.T) {
	r := classify(t, "   ")
	assert.Equal(t, TypeNone, r.Type)
}

func TestClassify_FuzzyPhraseTolerance(t *testing.T) {
	// Transcription noise in the pause phrase still classifies
	r := classify(t, "hold onn")
	assert.Equal(t, TypePause, r.Type)
}
