package speechstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the assistant's audio production state
type State string

const (
	StateIdle     State = "idle"
	StateSpeaking State = "speaking"
	StatePaused   State = "paused"
)

// ErrInvalidTransition reports a transition request the current state does
// not allow
var ErrInvalidTransition = errors.New("invalid state transition")

// Snapshot is a consistent read of the machine for external consumers
type Snapshot struct {
	State                 State
	ActiveMessageID       uuid.UUID
	PausedText            string
	PausedChunkIndex      int
	PausedAudioPositionMs int
}

// Machine is the single source of truth for whether the assistant is
// producing audio. All components read it; only its own request methods
// mutate it. External callers request transitions, never set state.
type Machine struct {
	mu                    sync.RWMutex
	state                 State
	activeMessageID       uuid.UUID
	pausedText            string
	pausedChunkIndex      int
	pausedAudioPositionMs int

	// Cancels the in-flight generation/synthesis for the active message
	cancelActive context.CancelFunc

	logger zerolog.Logger
}

// NewMachine creates the state machine in the idle state
func NewMachine(logger zerolog.Logger) *Machine {
	return &Machine{
		state:  StateIdle,
		logger: logger.With().Str("component", "speechstate").Logger(),
	}
}

// Snapshot returns a consistent view of the machine
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:                 m.state,
		ActiveMessageID:       m.activeMessageID,
		PausedText:            m.pausedText,
		PausedChunkIndex:      m.pausedChunkIndex,
		PausedAudioPositionMs: m.pausedAudioPositionMs,
	}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsSpeaking reports whether the assistant currently holds the floor
func (m *Machine) IsSpeaking() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateSpeaking || m.state == StatePaused
}

// RequestStartSpeaking moves idle to speaking for the given response
// message. cancel must abort that message's in-flight generation and
// synthesis when invoked.
func (m *Machine) RequestStartSpeaking(messageID uuid.UUID, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return fmt.Errorf("%w: start speaking from %s", ErrInvalidTransition, m.state)
	}

	m.state = StateSpeaking
	m.activeMessageID = messageID
	m.cancelActive = cancel
	m.logger.Debug().Str("message_id", messageID.String()).Msg("State: idle -> speaking")
	return nil
}

// RequestPause moves speaking to paused, capturing everything needed to
// resume without re-synthesizing audio the user already heard
func (m *Machine) RequestPause(pausedText string, chunkIndex, audioPositionMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSpeaking {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, m.state)
	}

	m.state = StatePaused
	m.pausedText = pausedText
	m.pausedChunkIndex = chunkIndex
	m.pausedAudioPositionMs = audioPositionMs
	m.logger.Debug().
		Int("chunk_index", chunkIndex).
		Int("audio_position_ms", audioPositionMs).
		Msg("State: speaking -> paused")
	return nil
}

// RequestResume moves paused back to speaking and returns the chunk index
// playback continues from. Already-delivered chunks are never replayed.
func (m *Machine) RequestResume() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePaused {
		return 0, fmt.Errorf("%w: resume from %s", ErrInvalidTransition, m.state)
	}

	resumeFrom := m.pausedChunkIndex
	m.state = StateSpeaking
	m.pausedText = ""
	m.pausedChunkIndex = 0
	m.pausedAudioPositionMs = 0
	m.logger.Debug().Int("resume_chunk", resumeFrom).Msg("State: paused -> speaking")
	return resumeFrom, nil
}

// RequestComplete moves speaking to idle when the last chunk finished
// naturally. Completion for a stale message ID is ignored.
func (m *Machine) RequestComplete(messageID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSpeaking || m.activeMessageID != messageID {
		return fmt.Errorf("%w: complete for inactive message", ErrInvalidTransition)
	}

	m.reset()
	m.logger.Debug().Str("message_id", messageID.String()).Msg("State: speaking -> idle (completed)")
	return nil
}

// Abort moves any state to idle, atomically cancelling the in-flight
// request and clearing paused fields. It returns the ID of the message
// that was cut off, uuid.Nil when nothing was active. Idempotent: aborting
// an idle machine is a no-op.
//
// The caller must mark the returned message as interrupted rather than
// deleting it; the user already heard part of it.
func (m *Machine) Abort(reason string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateIdle {
		return uuid.Nil
	}

	interrupted := m.activeMessageID
	from := m.state
	m.reset()
	m.logger.Info().
		Str("from", string(from)).
		Str("message_id", interrupted.String()).
		Str("reason", reason).
		Msg("State: -> idle (aborted)")
	return interrupted
}

// HandleDeliveryError decides whether a playback or synthesis error should
// tear the state down. A cancelled operation alone is not evidence of user
// intent: when paused, the machine stays paused so a resume still works.
// Real failures abort. Returns the interrupted message ID when it aborted.
func (m *Machine) HandleDeliveryError(err error) (uuid.UUID, bool) {
	if err == nil {
		return uuid.Nil, false
	}
	if errors.Is(err, context.Canceled) {
		m.mu.RLock()
		paused := m.state == StatePaused
		m.mu.RUnlock()
		if paused {
			m.logger.Debug().Msg("Delivery cancelled while paused, keeping resume state")
			return uuid.Nil, false
		}
	}
	return m.Abort(fmt.Sprintf("delivery error: %v", err)), true
}

// reset clears all state. Caller must hold the write lock.
func (m *Machine) reset() {
	if m.cancelActive != nil {
		m.cancelActive()
		m.cancelActive = nil
	}
	m.state = StateIdle
	m.activeMessageID = uuid.Nil
	m.pausedText = ""
	m.pausedChunkIndex = 0
	m.pausedAudioPositionMs = 0
}
