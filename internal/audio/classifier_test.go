package audio

import (
	"testing"
)

func TestClassify_BackchannelTolerance(t *testing.T) {
	// Short, quiet, nasal-band burst while assistant speaks: mm-hmm
	c := NewClassifier(DefaultClassifierConfig())

	result := c.Classify(Features{
		DurationMs:  400,
		Intensity:   0.02,
		FrequencyHz: 250,
	})

	if result.Label != LabelBackchannel {
		t.Fatalf("Expected backchannel, got %v", result.Label)
	}
	if result.Confidence < 0.7 {
		t.Errorf("Expected confidence >= 0.7, got %f", result.Confidence)
	}
}

func TestClassify_ClearInterruption(t *testing.T) {
	// Long, loud burst must never be labeled a backchannel
	c := NewClassifier(DefaultClassifierConfig())

	result := c.Classify(Features{
		DurationMs:  1500,
		Intensity:   0.08,
		FrequencyHz: 250,
	})

	if result.Label != LabelInterruption {
		t.Fatalf("Expected interruption, got %v", result.Label)
	}
	if result.Confidence < 0.9 {
		t.Errorf("Expected confidence >= 0.9, got %f", result.Confidence)
	}
}

func TestClassify_Silence(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	result := c.Classify(Features{DurationMs: 0, Intensity: 0.001, FrequencyHz: 0})
	if result.Label != LabelSilence {
		t.Errorf("Expected silence, got %v", result.Label)
	}
}

func TestClassify_AmbiguousFailsTowardInterruption(t *testing.T) {
	// Mid-duration, mid-intensity, non-nasal: score below 0.7 and neither
	// hard interruption rule fires. Must default to interruption, not
	// swallow the overlap.
	c := NewClassifier(DefaultClassifierConfig())

	result := c.Classify(Features{
		DurationMs:  800,
		Intensity:   0.05,
		FrequencyHz: 1200,
	})

	if result.Label != LabelInterruption {
		t.Fatalf("Expected interruption for ambiguous burst, got %v", result.Label)
	}
	if result.Confidence >= 0.7 {
		t.Errorf("Expected low confidence for ambiguous burst, got %f", result.Confidence)
	}
}

func TestClassify_QuietButLongIsNotBackchannel(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig())

	// Quiet and nasal but 2s long: 0.4 + 0.2 = 0.6 < 0.7
	result := c.Classify(Features{
		DurationMs:  2000,
		Intensity:   0.02,
		FrequencyHz: 250,
	})

	if result.Label == LabelBackchannel {
		t.Error("A 2s burst must not be classified as a backchannel")
	}
}

func TestDucker_TargetsPerClassification(t *testing.T) {
	d := NewDucker(0.05)

	d.Observe(Classification{Label: LabelBackchannel, Confidence: 0.9})
	if d.Target() != VolumeBackchannel {
		t.Errorf("Expected backchannel target 0.80, got %f", d.Target())
	}

	d.Observe(Classification{Label: LabelInterruption, Confidence: 0.9})
	if d.Target() != VolumeInterruption {
		t.Errorf("Expected interruption target 0.20, got %f", d.Target())
	}

	d.Observe(Classification{Label: LabelInterruption, Confidence: 0.4})
	if d.Target() != VolumeTentative {
		t.Errorf("Expected tentative target 0.50 for ambiguous overlap, got %f", d.Target())
	}

	d.Release()
	if d.Target() != VolumeFull {
		t.Errorf("Expected full volume target after release, got %f", d.Target())
	}
}

func TestDucker_RateLimitedSteps(t *testing.T) {
	d := NewDucker(0.05)
	d.Observe(Classification{Label: LabelInterruption, Confidence: 0.9})

	prev := d.Current()
	for i := 0; i < 20; i++ {
		v := d.Tick()
		step := prev - v
		if step < 0 {
			step = -step
		}
		if step > 0.05+1e-9 {
			t.Fatalf("Volume step %f exceeds rate limit on tick %d", step, i)
		}
		prev = v
	}

	if diff := d.Current() - VolumeInterruption; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected convergence to 0.20, got %f", d.Current())
	}
}

func TestExtractor_Features(t *testing.T) {
	e := NewExtractor(16000)

	// 100Hz square-ish wave: 16000/100 = 160 samples per cycle
	samples := make([]int16, 1600) // 100ms
	for i := range samples {
		if (i/80)%2 == 0 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}

	f := e.Extract(samples, 100)
	if f.DurationMs != 100 {
		t.Errorf("Expected duration 100ms, got %d", f.DurationMs)
	}
	if f.Intensity < 0.2 || f.Intensity > 0.3 {
		t.Errorf("Expected intensity near 0.244, got %f", f.Intensity)
	}
	// 10 cycles in 100ms -> 100Hz
	if f.FrequencyHz < 90 || f.FrequencyHz > 110 {
		t.Errorf("Expected frequency near 100Hz, got %f", f.FrequencyHz)
	}
}

func TestExtractor_EmptyBuffer(t *testing.T) {
	e := NewExtractor(16000)
	f := e.Extract(nil, 0)
	if f.Intensity != 0 || f.FrequencyHz != 0 {
		t.Errorf("Expected zero features for empty buffer, got %+v", f)
	}
}
