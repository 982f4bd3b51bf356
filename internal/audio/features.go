package audio

// Features holds the scalar features extracted from one analyzed burst
type Features struct {
	DurationMs  int     // Running duration of continuous voiced energy
	Intensity   float64 // Normalized RMS in [0, 1]
	FrequencyHz float64 // Dominant frequency estimate from zero crossings
}

// Extractor turns raw sample buffers into Features
type Extractor struct {
	sampleRate int
}

// NewExtractor creates a feature extractor for the given sample rate
func NewExtractor(sampleRate int) *Extractor {
	return &Extractor{sampleRate: sampleRate}
}

// Extract computes features for one buffer plus the running voiced duration
func (e *Extractor) Extract(samples []int16, voicedDurationMs int) Features {
	return Features{
		DurationMs:  voicedDurationMs,
		Intensity:   NormalizedRMS(samples),
		FrequencyHz: e.zeroCrossingFrequency(samples),
	}
}

// zeroCrossingFrequency estimates the dominant frequency from the
// zero-crossing rate. Each full cycle produces two crossings.
func (e *Extractor) zeroCrossingFrequency(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}

	durationSec := float64(len(samples)) / float64(e.sampleRate)
	if durationSec == 0 {
		return 0
	}
	return float64(crossings) / 2.0 / durationSec
}
