package endpointing

import (
	"math"
	"strings"
)

// TurnContext carries the conversational signals that modulate how long the
// engine waits before taking the turn
type TurnContext struct {
	Transcript         string
	WordsPerSecond     float64 // 0 when unknown
	TurnNumber         int     // 1-based position in the conversation
	NonNativePattern   bool    // Detected non-native speech pattern
	NoiseLevel         float64 // Background noise estimate, 0..1
	InterruptionRate   float64 // Share of prior turns the user had to re-prompt
	AvgTurnLengthWords float64 // Historical average turn length
}

var interrogativeOpeners = map[string]struct{}{
	"what": {}, "where": {}, "when": {}, "who": {}, "why": {}, "how": {},
	"is": {}, "are": {}, "can": {}, "could": {}, "do": {}, "does": {},
	"did": {}, "will": {}, "would": {}, "should": {},
}

// isQuestion guesses whether the partial transcript is a question
func isQuestion(transcript string) bool {
	text := strings.TrimSpace(strings.ToLower(transcript))
	if text == "" {
		return false
	}
	if strings.HasSuffix(text, "?") {
		return true
	}
	first := strings.Fields(text)[0]
	_, ok := interrogativeOpeners[first]
	return ok
}

// AdjustThreshold scales the base silence threshold by a product of
// independent contextual factors. The final result is clamped to
// [0.5x, 3.0x] of the base.
//
// Questions end crisply, so they shorten the wait; long or slow or early
// or noisy turns lengthen it.
func AdjustThreshold(baseMs int, ctx TurnContext) int {
	factor := 1.0

	if isQuestion(ctx.Transcript) {
		factor *= 0.8
	}

	switch n := len(ctx.Transcript); {
	case n > 100:
		factor *= 1.3
	case n > 50:
		factor *= 1.1
	}

	if ctx.WordsPerSecond > 0 {
		switch {
		case ctx.WordsPerSecond < 2:
			factor *= 1.5
		case ctx.WordsPerSecond < 3:
			factor *= 1.2
		case ctx.WordsPerSecond > 4.5:
			factor *= 0.9
		}
	}

	if ctx.TurnNumber > 0 {
		switch {
		case ctx.TurnNumber < 3:
			factor *= 1.4
		case ctx.TurnNumber < 5:
			factor *= 1.2
		}
	}

	if ctx.NonNativePattern {
		factor *= 1.6
	}

	switch {
	case ctx.NoiseLevel > 0.5:
		factor *= 1.4
	case ctx.NoiseLevel > 0.3:
		factor *= 1.2
	}

	if ctx.InterruptionRate > 0.3 {
		factor *= 1.3
	}

	if ctx.AvgTurnLengthWords > 20 {
		factor *= 1.2
	}

	if factor < 0.5 {
		factor = 0.5
	} else if factor > 3.0 {
		factor = 3.0
	}

	return int(math.Round(float64(baseMs) * factor))
}
