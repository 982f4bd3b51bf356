package audio

import (
	"testing"
)

func TestSegment_VoiceStartsCollection(t *testing.T) {
	s := NewSegment(16000)

	if s.Collecting() {
		t.Fatal("New segment should not be collecting")
	}

	// Silence before any voice is ignored
	s.AddSilence(make([]int16, 160))
	if s.Collecting() || s.SilenceMs() != 0 {
		t.Error("Leading silence must not start collection")
	}

	s.AddVoiced(make([]int16, 1600)) // 100ms at 16kHz
	if !s.Collecting() {
		t.Error("Voice should start collection")
	}
	if s.VoiceMs() != 100 {
		t.Errorf("Expected 100ms voice, got %d", s.VoiceMs())
	}
}

func TestSegment_TrailingSilenceAccumulates(t *testing.T) {
	s := NewSegment(16000)
	s.AddVoiced(make([]int16, 1600))

	s.AddSilence(make([]int16, 1600))
	s.AddSilence(make([]int16, 1600))
	if s.SilenceMs() != 200 {
		t.Errorf("Expected 200ms trailing silence, got %d", s.SilenceMs())
	}

	// New voice resets the trailing silence counter
	s.AddVoiced(make([]int16, 160))
	if s.SilenceMs() != 0 {
		t.Errorf("Expected silence reset on voice, got %d", s.SilenceMs())
	}
}

func TestSegment_PCMKeepsPauses(t *testing.T) {
	s := NewSegment(16000)
	voiced := make([]int16, 160)
	for i := range voiced {
		voiced[i] = 1000
	}
	s.AddVoiced(voiced)
	s.AddSilence(make([]int16, 160))
	s.AddVoiced(voiced)

	pcm := s.PCM()
	if len(pcm) != 480 {
		t.Errorf("Expected 480 samples including the pause, got %d", len(pcm))
	}
}

func TestSegment_Reset(t *testing.T) {
	s := NewSegment(16000)
	s.AddVoiced(make([]int16, 1600))
	s.AddSilence(make([]int16, 1600))

	s.Reset()
	if s.Collecting() || s.VoiceMs() != 0 || s.SilenceMs() != 0 || len(s.PCM()) != 0 {
		t.Error("Reset should clear all segment state")
	}
}

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(8)

	in := []int16{1, 2, 3, 4}
	if n := rb.Write(in); n != 4 {
		t.Fatalf("Expected 4 written, got %d", n)
	}
	if rb.Available() != 4 {
		t.Errorf("Expected 4 available, got %d", rb.Available())
	}

	out := make([]int16, 4)
	if n := rb.Read(out); n != 4 {
		t.Fatalf("Expected 4 read, got %d", n)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}
}

func TestRingBuffer_FullDropsExcess(t *testing.T) {
	rb := NewRingBuffer(4) // Holds 3 samples

	n := rb.Write([]int16{1, 2, 3, 4, 5})
	if n != 3 {
		t.Errorf("Expected 3 written into a size-4 ring, got %d", n)
	}
}

func TestRingBuffer_Drain(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write([]int16{7, 8, 9})

	out := rb.Drain()
	if len(out) != 3 || out[0] != 7 || out[2] != 9 {
		t.Errorf("Unexpected drain result: %v", out)
	}
	if !rb.IsEmpty() {
		t.Error("Buffer should be empty after drain")
	}
}

func TestBytesToSamplesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	data := SamplesToBytes(samples)

	back, err := BytesToSamples(data)
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}

func TestBytesToSamples_OddLength(t *testing.T) {
	if _, err := BytesToSamples([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestResample_Downsample(t *testing.T) {
	samples := make([]int16, 480) // 10ms at 48kHz
	for i := range samples {
		samples[i] = int16(i)
	}

	out := Resample(samples, 48000, 16000)
	if len(out) != 160 {
		t.Errorf("Expected 160 samples after 48k->16k resample, got %d", len(out))
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	rms := CalculateRMS(samples)

	// sqrt((1000^2 + 1000^2 + 2000^2 + 2000^2) / 4)
	expected := 1581.14
	if rms < expected-1 || rms > expected+1 {
		t.Errorf("Expected RMS near %.2f, got %.2f", expected, rms)
	}
}
