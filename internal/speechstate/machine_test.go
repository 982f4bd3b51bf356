package speechstate

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_StartsIdle(t *testing.T) {
	m := NewMachine(zerolog.Nop())
	assert.Equal(t, StateIdle, m.State())
	assert.False(t, m.IsSpeaking())
}

func TestMachine_SpeakPauseResumeRoundTrip(t *testing.T) {
	m := NewMachine(zerolog.Nop())
	id := uuid.New()

	require.NoError(t, m.RequestStartSpeaking(id, func() {}))
	assert.Equal(t, StateSpeaking, m.State())
	assert.True(t, m.IsSpeaking())

	require.NoError(t, m.RequestPause("the remaining reply text", 2, 340))
	assert.Equal(t, StatePaused, m.State())
	assert.True(t, m.IsSpeaking(), "paused still holds the floor")

	snap := m.Snapshot()
	assert.Equal(t, id, snap.ActiveMessageID)
	assert.Equal(t, 2, snap.PausedChunkIndex)
	assert.Equal(t, 340, snap.PausedAudioPositionMs)
	assert.Equal(t, "the remaining reply text", snap.PausedText)

	resumeFrom, err := m.RequestResume()
	require.NoError(t, err)
	assert.Equal(t, 2, resumeFrom, "resume continues from the paused chunk")
	assert.Equal(t, StateSpeaking, m.State())
	assert.Empty(t, m.Snapshot().PausedText)
}

func TestMachine_InvalidTransitions(t *testing.T) {
	m := NewMachine(zerolog.Nop())

	_, err := m.RequestResume()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.ErrorIs(t, m.RequestPause("x", 0, 0), ErrInvalidTransition)

	require.NoError(t, m.RequestStartSpeaking(uuid.New(), func() {}))
	assert.ErrorIs(t, m.RequestStartSpeaking(uuid.New(), func() {}), ErrInvalidTransition)
}

func TestMachine_AbortCancelsAndClears(t *testing.T) {
	m := NewMachine(zerolog.Nop())
	id := uuid.New()

	cancelled := false
	require.NoError(t, m.RequestStartSpeaking(id, func() { cancelled = true }))
	require.NoError(t, m.RequestPause("rest", 1, 100))

	interrupted := m.Abort("correction")
	assert.Equal(t, id, interrupted, "caller needs the ID to mark the message interrupted")
	assert.True(t, cancelled, "abort must cancel the in-flight request")

	snap := m.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, uuid.Nil, snap.ActiveMessageID)
	assert.Empty(t, snap.PausedText)
	assert.Zero(t, snap.PausedChunkIndex)
}

func TestMachine_AbortIsIdempotent(t *testing.T) {
	m := NewMachine(zerolog.Nop())

	assert.Equal(t, uuid.Nil, m.Abort("stop"), "aborting idle is a no-op")

	require.NoError(t, m.RequestStartSpeaking(uuid.New(), func() {}))
	m.Abort("stop")
	assert.Equal(t, uuid.Nil, m.Abort("stop"))
	assert.Equal(t, StateIdle, m.State())
}

func TestMachine_CompleteIgnoresStaleMessage(t *testing.T) {
	m := NewMachine(zerolog.Nop())
	id := uuid.New()

	require.NoError(t, m.RequestStartSpeaking(id, func() {}))
	assert.Error(t, m.RequestComplete(uuid.New()), "stale completion must not change state")
	assert.Equal(t, StateSpeaking, m.State())

	require.NoError(t, m.RequestComplete(id))
	assert.Equal(t, StateIdle, m.State())
}

func TestMachine_CancelledOpDoesNotAbandonPause(t *testing.T) {
	m := NewMachine(zerolog.Nop())

	require.NoError(t, m.RequestStartSpeaking(uuid.New(), func() {}))
	require.NoError(t, m.RequestPause("rest", 3, 0))

	_, aborted := m.HandleDeliveryError(context.Canceled)
	assert.False(t, aborted, "cancellation alone is not user intent")
	assert.Equal(t, StatePaused, m.State())

	// A real failure does tear the state down
	_, aborted = m.HandleDeliveryError(errors.New("synthesis backend unreachable"))
	assert.True(t, aborted)
	assert.Equal(t, StateIdle, m.State())
}

func TestIsResumeUtterance(t *testing.T) {
	assert.True(t, IsResumeUtterance("continue"))
	assert.True(t, IsResumeUtterance("go ahead"))
	assert.True(t, IsResumeUtterance("Keep going!"))
	assert.True(t, IsResumeUtterance("please continue"))

	assert.False(t, IsResumeUtterance(""))
	assert.False(t, IsResumeUtterance("what was the second option again"))
	assert.False(t, IsResumeUtterance("no stop"))
}
