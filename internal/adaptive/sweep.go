package adaptive

import (
	"errors"
	"sort"
)

// SweepSample is one recorded turn hand-over: how long the user was silent
// before they actually wanted the floor handed back.
type SweepSample struct {
	SilenceMs int
	Feedback  FeedbackType
}

// SweepResult scores one candidate threshold against recorded feedback
type SweepResult struct {
	ThresholdMs   int     `json:"threshold_ms"`
	Interruptions int     `json:"interruptions"`
	LongWaits     int     `json:"long_waits"`
	CleanTurns    int     `json:"clean_turns"`
	Score         float64 `json:"score"`
}

// interruptions cost more than long waits: cutting a user off breaks the
// conversation, waiting merely slows it
const (
	interruptionWeight = 0.6
	longWaitWeight     = 0.3
)

var errNoSamples = errors.New("no sweep samples")

// Sweep evaluates every candidate threshold from minMs to maxMs in stepMs
// increments against the recorded samples and returns the candidates ranked
// best first. Offline tuning only; the live path uses the Learner.
func Sweep(samples []SweepSample, minMs, maxMs, stepMs int) ([]SweepResult, error) {
	if len(samples) == 0 {
		return nil, errNoSamples
	}
	if stepMs <= 0 {
		stepMs = 250
	}

	var results []SweepResult
	for threshold := minMs; threshold <= maxMs; threshold += stepMs {
		r := SweepResult{ThresholdMs: threshold}
		for _, s := range samples {
			switch {
			case s.Feedback == FeedbackInterruption && s.SilenceMs >= threshold:
				// This threshold would have committed before the user
				// finished
				r.Interruptions++
			case s.Feedback == FeedbackLongWait && s.SilenceMs < threshold:
				r.LongWaits++
			default:
				r.CleanTurns++
			}
		}

		n := float64(len(samples))
		r.Score = float64(r.CleanTurns)/n -
			interruptionWeight*float64(r.Interruptions)/n -
			longWaitWeight*float64(r.LongWaits)/n
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// Best returns the single best threshold for the samples
func Best(samples []SweepSample, minMs, maxMs, stepMs int) (SweepResult, error) {
	results, err := Sweep(samples, minMs, maxMs, stepMs)
	if err != nil {
		return SweepResult{}, err
	}
	return results[0], nil
}
