package endpointing

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Words that leave an utterance dangling when they end it
var trailingConnectives = map[string]struct{}{
	"to": {}, "of": {}, "for": {}, "with": {}, "in": {}, "on": {}, "at": {},
	"from": {}, "by": {}, "about": {}, "the": {}, "a": {}, "an": {},
	"and": {}, "or": {}, "but": {}, "so": {}, "because": {}, "if": {},
}

// Words that open a subordinate clause
var subordinatingWords = map[string]struct{}{
	"because": {}, "if": {}, "when": {}, "since": {}, "although": {},
	"unless": {}, "while": {}, "after": {}, "before": {}, "until": {},
}

// Fillers that carry no content on their own
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "hmm": {}, "er": {}, "uhh": {}, "umm": {},
	"like": {}, "well": {}, "so": {},
}

// Phrases that explicitly hand the turn over
var completionPhrases = []string{
	"that's all",
	"that is all",
	"that's it",
	"i'm done",
	"done",
	"go ahead",
	"over to you",
}

const completionPhraseSimilarity = 0.88

// SemanticPass judges whether a partial transcript reads as a finished
// utterance. It never runs on empty input.
type SemanticPass struct{}

// NewSemanticPass creates the completeness pass
func NewSemanticPass() *SemanticPass {
	return &SemanticPass{}
}

// Evaluate returns a completeness verdict for the partial transcript.
// An empty transcript yields VerdictNone: the pass is skipped entirely.
func (p *SemanticPass) Evaluate(transcript string) SemanticResult {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return SemanticResult{Verdict: VerdictNone}
	}

	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	// Trailing ellipsis
	if strings.HasSuffix(text, "...") || strings.HasSuffix(text, "…") {
		return SemanticResult{Verdict: VerdictIncomplete, Confidence: 0.9, Reason: "trailing ellipsis"}
	}

	// Trailing comma
	if strings.HasSuffix(text, ",") {
		return SemanticResult{Verdict: VerdictIncomplete, Confidence: 0.8, Reason: "trailing comma"}
	}

	// Bare filler
	if allFillers(words) {
		return SemanticResult{Verdict: VerdictIncomplete, Confidence: 0.75, Reason: "filler only"}
	}

	// Short fragment opening a subordinate clause
	if len(words) <= 2 {
		if _, ok := subordinatingWords[words[0]]; ok {
			return SemanticResult{Verdict: VerdictIncomplete, Confidence: 0.8, Reason: "subordinate fragment"}
		}
	}

	// Explicit completion phrase, fuzzy-matched against the utterance tail
	if matchesCompletionPhrase(lower) {
		return SemanticResult{Verdict: VerdictComplete, Confidence: 0.95, Reason: "completion phrase"}
	}

	// Terminal sentence punctuation
	last := text[len(text)-1]
	if last == '.' || last == '!' || last == '?' {
		return SemanticResult{Verdict: VerdictComplete, Confidence: 0.9, Reason: "terminal punctuation"}
	}

	// Trailing preposition or conjunction
	lastWord := strings.Trim(words[len(words)-1], ".,!?;:")
	if _, ok := trailingConnectives[lastWord]; ok {
		return SemanticResult{Verdict: VerdictIncomplete, Confidence: 0.85, Reason: "trailing connective"}
	}

	return SemanticResult{Verdict: VerdictComplete, Confidence: 0.6, Reason: "default complete"}
}

func allFillers(words []string) bool {
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	for _, w := range words {
		if _, ok := fillerWords[strings.Trim(w, ".,!?")]; !ok {
			return false
		}
	}
	return true
}

// matchesCompletionPhrase compares the utterance tail against the known
// hand-over phrases, tolerating transcription noise
func matchesCompletionPhrase(lower string) bool {
	trimmed := strings.Trim(lower, " .,!?")
	for _, phrase := range completionPhrases {
		tail := trimmed
		if len(tail) > len(phrase)+4 {
			tail = tail[len(tail)-len(phrase)-4:]
			if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx < len(tail)-len(phrase) {
				tail = tail[idx+1:]
			}
		}
		if matchr.JaroWinkler(tail, phrase, false) >= completionPhraseSimilarity {
			return true
		}
	}
	return false
}
