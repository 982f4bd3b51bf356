// Command sweep scores candidate silence thresholds against recorded
// feedback, for offline tuning of the endpointing defaults.
//
// Input is a JSON array of recorded hand-overs:
//
//	[{"silence_ms": 1800, "feedback": "interruption"}, ...]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/convoflow/turn-engine/internal/adaptive"
)

type sample struct {
	SilenceMs int    `json:"silence_ms"`
	Feedback  string `json:"feedback"`
}

func main() {
	var (
		input = flag.String("input", "", "JSON file of recorded feedback samples")
		minMs = flag.Int("min", 500, "lowest candidate threshold in ms")
		maxMs = flag.Int("max", 3000, "highest candidate threshold in ms")
		step  = flag.Int("step", 250, "candidate step in ms")
		top   = flag.Int("top", 5, "number of candidates to print")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: sweep -input feedback.json [-min 500] [-max 3000] [-step 250]")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *input, err)
		os.Exit(1)
	}

	var recorded []sample
	if err := json.Unmarshal(raw, &recorded); err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", *input, err)
		os.Exit(1)
	}

	samples := make([]adaptive.SweepSample, 0, len(recorded))
	for _, r := range recorded {
		samples = append(samples, adaptive.SweepSample{
			SilenceMs: r.SilenceMs,
			Feedback:  adaptive.FeedbackType(r.Feedback),
		})
	}

	results, err := adaptive.Sweep(samples, *minMs, *maxMs, *step)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-12s %-8s %-13s %-10s %-6s\n", "threshold_ms", "score", "interruptions", "long_waits", "clean")
	for i, r := range results {
		if i >= *top {
			break
		}
		fmt.Printf("%-12d %-8.3f %-13d %-10d %-6d\n", r.ThresholdMs, r.Score, r.Interruptions, r.LongWaits, r.CleanTurns)
	}
}
