package backchannel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PlayClipFunc plays one short acknowledgment clip at the given volume on
// an output channel of its own. It must never touch the assistant's speech
// state.
type PlayClipFunc func(ctx context.Context, volume float64) error

// Config bounds when a backchannel may fire
type Config struct {
	MinVoiced time.Duration // User must have been talking at least this long
	Cooldown  time.Duration // Gap between consecutive backchannels
	Hold      time.Duration // Endpointing inhibit window after a clip
	Volume    float64
}

// DefaultConfig returns the tuned scheduler limits
func DefaultConfig() Config {
	return Config{
		MinVoiced: 1800 * time.Millisecond,
		Cooldown:  8 * time.Second,
		Hold:      400 * time.Millisecond,
		Volume:    0.2,
	}
}

// Scheduler drops short acknowledgments ("mm-hmm") into long user turns.
// The clip plays on a dedicated channel so the speech state machine never
// sees the assistant as speaking.
type Scheduler struct {
	cfg  Config
	play PlayClipFunc

	mu           sync.Mutex
	lastPlayed   time.Time
	inhibitUntil time.Time

	now    func() time.Time
	logger zerolog.Logger
}

// NewScheduler creates a backchannel scheduler
func NewScheduler(cfg Config, play PlayClipFunc, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		play:   play,
		now:    time.Now,
		logger: logger.With().Str("component", "backchannel").Logger(),
	}
}

// Consider fires a backchannel when all gating conditions hold and reports
// whether one was played. Called from the evaluation loop each tick.
func (s *Scheduler) Consider(ctx context.Context, voicedMs int, assistantIdle, transcribing bool) bool {
	if time.Duration(voicedMs)*time.Millisecond < s.cfg.MinVoiced {
		return false
	}
	if !assistantIdle || transcribing {
		return false
	}

	s.mu.Lock()
	now := s.now()
	if !s.lastPlayed.IsZero() && now.Sub(s.lastPlayed) < s.cfg.Cooldown {
		s.mu.Unlock()
		return false
	}
	s.lastPlayed = now
	s.inhibitUntil = now.Add(s.cfg.Hold)
	s.mu.Unlock()

	go func() {
		if err := s.play(ctx, s.cfg.Volume); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("Backchannel clip failed")
		}
	}()

	s.logger.Debug().Int("voiced_ms", voicedMs).Msg("Backchannel fired")
	return true
}

// InhibitsEndpointing reports whether the engine is inside the short
// window after a clip where its own audio could bleed into the silence
// measurement
func (s *Scheduler) InhibitsEndpointing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.inhibitUntil)
}
