package audio

// Label classifies an audio burst that overlaps assistant speech
type Label int

const (
	LabelSilence Label = iota
	LabelBackchannel
	LabelInterruption
)

// String returns the metric-friendly name of the label
func (l Label) String() string {
	switch l {
	case LabelSilence:
		return "silence"
	case LabelBackchannel:
		return "backchannel"
	case LabelInterruption:
		return "interruption"
	default:
		return "unknown"
	}
}

// Classification is the result of scoring one overlapping burst
type Classification struct {
	Label      Label
	Confidence float64
}

// ClassifierConfig holds the scored-rule thresholds
type ClassifierConfig struct {
	VoiceRMSThreshold  float64 // Below this the burst is silence
	BackchannelMaxMs   int     // Duration under which a burst scores toward backchannel
	BackchannelMaxRMS  float64 // Intensity under which a burst scores toward backchannel
	InterruptionMinRMS float64 // Intensity above which a burst is always an interruption
	NasalLowHz         float64 // Lower edge of the nasal frequency band
	NasalHighHz        float64 // Upper edge of the nasal frequency band
}

// DefaultClassifierConfig returns thresholds tuned for 16kHz speech
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		VoiceRMSThreshold:  0.015,
		BackchannelMaxMs:   1000,
		BackchannelMaxRMS:  0.04,
		InterruptionMinRMS: 0.06,
		NasalLowHz:         150,
		NasalHighHz:        450,
	}
}

// Classifier labels overlapping audio while the assistant is speaking
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier with the given thresholds
func NewClassifier(cfg ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify scores features into silence / backchannel / interruption.
// Only meaningful while the assistant is producing audio; when it is not,
// any voiced energy is simply the start of user speech and callers should
// not route it through here.
//
// The rules are scored rather than single-branch: short duration and low
// intensity each contribute 0.4 to backchannel confidence, a nasal-band
// frequency contributes 0.2. Ambiguity fails toward interruption so an
// unclear overlap is never silently swallowed.
func (c *Classifier) Classify(f Features) Classification {
	if f.Intensity < c.cfg.VoiceRMSThreshold {
		return Classification{Label: LabelSilence, Confidence: 1.0}
	}

	score := 0.0
	if f.DurationMs < c.cfg.BackchannelMaxMs {
		score += 0.4
	}
	if f.Intensity < c.cfg.BackchannelMaxRMS {
		score += 0.4
	}
	if f.FrequencyHz >= c.cfg.NasalLowHz && f.FrequencyHz <= c.cfg.NasalHighHz {
		score += 0.2
	}

	if score >= 0.7 {
		if score > 0.95 {
			score = 0.95
		}
		return Classification{Label: LabelBackchannel, Confidence: score}
	}

	if f.DurationMs > c.cfg.BackchannelMaxMs || f.Intensity > c.cfg.InterruptionMinRMS {
		conf := 0.8
		if f.DurationMs > c.cfg.BackchannelMaxMs && f.Intensity > c.cfg.InterruptionMinRMS {
			conf = 0.9
		}
		return Classification{Label: LabelInterruption, Confidence: conf}
	}

	// Ambiguous burst: treat as an interruption at low confidence
	return Classification{Label: LabelInterruption, Confidence: 0.4}
}
