package speechstate

import (
	"strings"

	"github.com/antzucaro/matchr"
)

var resumePhrases = []string{
	"continue", "go ahead", "keep going", "go on", "resume",
	"carry on", "please continue",
}

const resumeSimilarity = 0.9

// IsResumeUtterance reports whether the transcript asks the assistant to
// pick up where it left off. Only meaningful while paused; short utterances
// only, a long sentence is new input even if it contains "go on".
func IsResumeUtterance(transcript string) bool {
	text := strings.Trim(strings.ToLower(strings.TrimSpace(transcript)), ".,!?")
	if text == "" {
		return false
	}
	if len(strings.Fields(text)) > 3 {
		return false
	}

	for _, phrase := range resumePhrases {
		if matchr.JaroWinkler(text, phrase, false) >= resumeSimilarity {
			return true
		}
	}
	return false
}
