package intent

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Type names what the user meant by speaking over the assistant
type Type string

const (
	TypePause      Type = "PAUSE"
	TypeTopicShift Type = "TOPIC_SHIFT"
	TypeCorrection Type = "CORRECTION"
	TypeImpatience Type = "IMPATIENCE"
	TypeBargeIn    Type = "BARGE_IN"
	TypeNone       Type = "NONE"
)

// Action is the handling the classifier suggests to the state machine
type Action string

const (
	ActionPause       Action = "pause"
	ActionStopListen  Action = "stop_and_listen"
	ActionAcknowledge Action = "stop_and_acknowledge"
	ActionContinue    Action = "continue"
)

// Context is everything known about the overlap at classification time
type Context struct {
	Transcript              string
	PreviousTranscript      string
	MsSinceLastInterruption int64
	InterruptionCount       int // Interruptions within the rolling window
	IsAssistantSpeaking     bool
}

// Result is the classified intent plus a handling suggestion. The state
// machine decides; the classifier only recommends.
type Result struct {
	Type            Type
	Confidence      float64
	Reason          string
	SuggestedAction Action
}

const (
	phraseSimilarity = 0.88

	impatienceWindowMs  = 10000
	impatienceThreshold = 3
)

// Pattern strength sets the fixed confidence per category
const (
	pauseConfidence      = 0.95
	topicShiftConfidence = 0.85
	correctionConfidence = 0.9
	impatienceConfidence = 0.8
	bargeInConfidence    = 0.7
)

var pausePhrases = []string{
	"wait", "hold on", "one second", "one sec", "hang on",
	"give me a second", "just a moment", "pause",
}

// Topic shifts announce themselves at the start of the utterance
var topicShiftOpeners = []string{
	"actually", "by the way", "anyway", "oh wait", "speaking of",
	"on another note", "different question",
}

var correctionOpeners = []string{"no", "nope", "nah"}

var correctionPhrases = []string{
	"i meant", "that's not what", "that is not what", "not what i",
	"i didn't say", "that's wrong",
}

// Classifier resolves what an overlapping utterance asks the assistant to
// do. Categories are checked in strict priority order: PAUSE beats
// TOPIC_SHIFT beats CORRECTION beats IMPATIENCE beats BARGE_IN beats NONE.
type Classifier struct{}

// NewClassifier creates an interruption intent classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps one overlap onto an intent
func (c *Classifier) Classify(ctx Context) Result {
	if !ctx.IsAssistantSpeaking {
		return Result{Type: TypeNone, Confidence: 1.0, Reason: "no overlap", SuggestedAction: ActionContinue}
	}

	text := strings.ToLower(strings.TrimSpace(ctx.Transcript))
	words := strings.Fields(text)

	if containsPhrase(words, pausePhrases) {
		return Result{
			Type:            TypePause,
			Confidence:      pauseConfidence,
			Reason:          "pause request",
			SuggestedAction: ActionPause,
		}
	}

	if opensWithPhrase(words, topicShiftOpeners) {
		return Result{
			Type:            TypeTopicShift,
			Confidence:      topicShiftConfidence,
			Reason:          "topic shift opener",
			SuggestedAction: ActionStopListen,
		}
	}

	if isCorrection(words) {
		return Result{
			Type:            TypeCorrection,
			Confidence:      correctionConfidence,
			Reason:          "correction marker",
			SuggestedAction: ActionStopListen,
		}
	}

	if ctx.InterruptionCount >= impatienceThreshold && ctx.MsSinceLastInterruption <= impatienceWindowMs {
		return Result{
			Type:            TypeImpatience,
			Confidence:      impatienceConfidence,
			Reason:          "repeated interruptions",
			SuggestedAction: ActionAcknowledge,
		}
	}

	if len(words) > 0 {
		return Result{
			Type:            TypeBargeIn,
			Confidence:      bargeInConfidence,
			Reason:          "overlap while speaking",
			SuggestedAction: ActionStopListen,
		}
	}

	return Result{Type: TypeNone, Confidence: 1.0, Reason: "no transcript", SuggestedAction: ActionContinue}
}

// containsPhrase slides an n-gram window over the transcript and
// fuzzy-matches each against the candidate phrases, tolerating
// transcription noise
func containsPhrase(words []string, phrases []string) bool {
	for _, phrase := range phrases {
		n := len(strings.Fields(phrase))
		for i := 0; i+n <= len(words); i++ {
			window := strings.Trim(strings.Join(words[i:i+n], " "), ".,!?")
			if matchr.JaroWinkler(window, phrase, false) >= phraseSimilarity {
				return true
			}
		}
	}
	return false
}

// opensWithPhrase matches phrases against the start of the transcript only
func opensWithPhrase(words []string, phrases []string) bool {
	for _, phrase := range phrases {
		n := len(strings.Fields(phrase))
		if n > len(words) {
			continue
		}
		opener := strings.Trim(strings.Join(words[:n], " "), ".,!?")
		if matchr.JaroWinkler(opener, phrase, false) >= phraseSimilarity {
			return true
		}
	}
	return false
}

func isCorrection(words []string) bool {
	if len(words) == 0 {
		return false
	}
	first := strings.Trim(words[0], ".,!?")
	for _, opener := range correctionOpeners {
		if first == opener {
			return true
		}
	}
	return containsPhrase(words, correctionPhrases)
}
