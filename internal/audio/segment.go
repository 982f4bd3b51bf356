package audio

// Segment accumulates one in-progress user utterance. It is owned by the
// evaluation loop and never shared across goroutines.
type Segment struct {
	buffers    [][]int16
	voiceMs    int
	silenceMs  int
	collecting bool
	sampleRate int
}

// NewSegment creates an empty segment
func NewSegment(sampleRate int) *Segment {
	return &Segment{sampleRate: sampleRate}
}

// AddVoiced appends a voiced buffer; starts collection on first voice
func (s *Segment) AddVoiced(samples []int16) {
	if !s.collecting {
		s.collecting = true
	}
	buf := make([]int16, len(samples))
	copy(buf, samples)
	s.buffers = append(s.buffers, buf)
	s.voiceMs += len(samples) * 1000 / s.sampleRate
	s.silenceMs = 0
}

// AddSilence accounts for a silent buffer. Silence before collection starts
// is ignored; silence during collection is buffered too so the committed
// audio keeps natural pauses.
func (s *Segment) AddSilence(samples []int16) {
	if !s.collecting {
		return
	}
	buf := make([]int16, len(samples))
	copy(buf, samples)
	s.buffers = append(s.buffers, buf)
	s.silenceMs += len(samples) * 1000 / s.sampleRate
}

// Collecting reports whether voice has been detected since the last reset
func (s *Segment) Collecting() bool { return s.collecting }

// VoiceMs returns accumulated voiced duration
func (s *Segment) VoiceMs() int { return s.voiceMs }

// SilenceMs returns the current trailing silence duration
func (s *Segment) SilenceMs() int { return s.silenceMs }

// PCM returns the accumulated audio as one contiguous sample slice
func (s *Segment) PCM() []int16 {
	total := 0
	for _, b := range s.buffers {
		total += len(b)
	}
	out := make([]int16, 0, total)
	for _, b := range s.buffers {
		out = append(out, b...)
	}
	return out
}

// Reset clears the segment for the next utterance
func (s *Segment) Reset() {
	s.buffers = nil
	s.voiceMs = 0
	s.silenceMs = 0
	s.collecting = false
}
