package adaptive

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultLearningRate = 0.5
	learningRateDecay   = 0.98
	learningRateFloor   = 0.02
	warmupObservations  = 10

	interruptionStepMs = 200.0
	longWaitStepMs     = 100.0
)

// Store persists user profiles durably
type Store interface {
	Load(userID string) (*UserProfile, error)
	Save(profile *UserProfile) error
	Delete(userID string) error
}

// Learner maintains one adaptive silence threshold per user. Updates are
// serialized per user ID so concurrent feedback never loses writes.
type Learner struct {
	store     Store
	minMs     float64
	maxMs     float64
	baseMs    float64
	logger    zerolog.Logger
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
	cache     map[string]*UserProfile
}

// NewLearner creates a learner over the given profile store
func NewLearner(s Store, baseMs, minMs, maxMs int, logger zerolog.Logger) *Learner {
	return &Learner{
		store:     s,
		baseMs:    float64(baseMs),
		minMs:     float64(minMs),
		maxMs:     float64(maxMs),
		logger:    logger,
		userLocks: make(map[string]*sync.Mutex),
		cache:     make(map[string]*UserProfile),
	}
}

// lockFor returns the per-user mutex, creating it lazily
func (l *Learner) lockFor(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.userLocks[userID]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.userLocks[userID] = m
	return m
}

// profile loads or lazily creates the user's profile. Caller must hold the
// per-user lock.
func (l *Learner) profile(userID string) (*UserProfile, error) {
	if p, ok := l.cache[userID]; ok {
		return p, nil
	}

	p, err := l.store.Load(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for %s: %w", userID, err)
	}
	if p == nil {
		p = &UserProfile{
			UserID:             userID,
			OptimalThresholdMs: l.baseMs,
			LearningRate:       defaultLearningRate,
		}
	}
	// Loose shape versioning: older records may predate these fields
	if p.OptimalThresholdMs == 0 {
		p.OptimalThresholdMs = l.baseMs
	}
	if p.LearningRate == 0 {
		p.LearningRate = defaultLearningRate
	}

	l.mu.Lock()
	l.cache[userID] = p
	l.mu.Unlock()
	return p, nil
}

// ThresholdMs returns the user's learned threshold, or the base threshold
// when the user is unknown or the store fails
func (l *Learner) ThresholdMs(userID string) int {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := l.profile(userID)
	if err != nil {
		l.logger.Warn().Err(err).Str("user_id", userID).Msg("Falling back to base threshold")
		return int(l.baseMs)
	}
	return int(p.OptimalThresholdMs)
}

// Observe applies one feedback signal to the user's profile and persists it
func (l *Learner) Observe(userID string, signal FeedbackSignal) error {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := l.profile(userID)
	if err != nil {
		return err
	}

	switch signal.Type {
	case FeedbackInterruption:
		// We cut the user off: wait longer next time
		p.OptimalThresholdMs += p.LearningRate * interruptionStepMs
		p.Stats.InterruptionRate = rollingRate(p.Stats.InterruptionRate, p.Observations, true)

	case FeedbackLongWait:
		// We left the user hanging: respond sooner
		p.OptimalThresholdMs -= p.LearningRate * longWaitStepMs
		p.Stats.InterruptionRate = rollingRate(p.Stats.InterruptionRate, p.Observations, false)

	case FeedbackPerfect:
		p.Stats.SuccessfulTurns++
		p.Stats.InterruptionRate = rollingRate(p.Stats.InterruptionRate, p.Observations, false)

	case FeedbackExplicit:
		// Explicit feedback carries the desired threshold in its context
		if signal.Context.ThresholdMs > 0 {
			p.OptimalThresholdMs = float64(signal.Context.ThresholdMs)
		}
	}

	if p.OptimalThresholdMs < l.minMs {
		p.OptimalThresholdMs = l.minMs
	} else if p.OptimalThresholdMs > l.maxMs {
		p.OptimalThresholdMs = l.maxMs
	}

	if signal.Context.SilenceDurationMs > 0 {
		p.Stats.AverageSilenceDuration = rollingMean(
			p.Stats.AverageSilenceDuration, p.Observations, float64(signal.Context.SilenceDurationMs))
	}
	if signal.Context.TranscriptLength > 0 {
		p.Stats.AverageTurnLength = rollingMean(
			p.Stats.AverageTurnLength, p.Observations, float64(signal.Context.TranscriptLength))
	}

	p.Observations++

	// Explore fast early, converge later
	if p.Observations > warmupObservations {
		p.LearningRate *= learningRateDecay
		if p.LearningRate < learningRateFloor {
			p.LearningRate = learningRateFloor
		}
	}

	p.UpdatedAt = time.Now().UTC()

	if err := l.store.Save(p); err != nil {
		return fmt.Errorf("failed to persist profile for %s: %w", userID, err)
	}

	l.logger.Debug().
		Str("user_id", userID).
		Str("feedback", string(signal.Type)).
		Float64("threshold_ms", p.OptimalThresholdMs).
		Float64("learning_rate", p.LearningRate).
		Int("observations", p.Observations).
		Msg("Applied feedback signal")

	return nil
}

// Profile returns a copy of the user's profile for inspection
func (l *Learner) Profile(userID string) (UserProfile, error) {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	p, err := l.profile(userID)
	if err != nil {
		return UserProfile{}, err
	}
	return *p, nil
}

// Reset deletes the user's profile. Profiles are never deleted otherwise.
func (l *Learner) Reset(userID string) error {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	delete(l.cache, userID)
	l.mu.Unlock()

	return l.store.Delete(userID)
}

func rollingMean(mean float64, n int, sample float64) float64 {
	return (mean*float64(n) + sample) / float64(n+1)
}

func rollingRate(rate float64, n int, hit bool) float64 {
	sample := 0.0
	if hit {
		sample = 1.0
	}
	return rollingMean(rate, n, sample)
}
