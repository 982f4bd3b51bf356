package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures what the queue played, with optional gating per chunk
type recorder struct {
	mu     sync.Mutex
	played []int
	gate   chan struct{} // When set, each play waits for one token
	fail   map[int]error
}

func (r *recorder) play(ctx context.Context, chunk SpeechChunk) error {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err, ok := r.fail[chunk.Index]; ok {
		return err
	}
	r.mu.Lock()
	r.played = append(r.played, chunk.Index)
	r.mu.Unlock()
	return nil
}

func (r *recorder) playedIndices() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.played))
	copy(out, r.played)
	return out
}

func TestQueue_PlaysInFIFOOrder(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec.play, nil, nil, zerolog.Nop())
	q.Start(context.Background())

	for i := 0; i < 5; i++ {
		q.Enqueue(SpeechChunk{Text: "chunk", Index: i, IsFinal: i == 4})
	}

	require.Eventually(t, func() bool {
		return len(rec.playedIndices()) == 5
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, rec.playedIndices())
	assert.Equal(t, QueueIdle, q.State())
}

func TestQueue_CompletionCallbackOnFinalChunk(t *testing.T) {
	rec := &recorder{}
	done := make(chan struct{})
	q := NewQueue(rec.play, nil, func() { close(done) }, zerolog.Nop())
	q.Start(context.Background())

	q.Enqueue(SpeechChunk{Index: 0})
	q.Enqueue(SpeechChunk{Index: 1, IsFinal: true})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}
	assert.Equal(t, []int{0, 1}, rec.playedIndices())
}

func TestQueue_PauseResumeLossless(t *testing.T) {
	rec := &recorder{gate: make(chan struct{}, 10)}
	q := NewQueue(rec.play, nil, nil, zerolog.Nop())
	q.Start(context.Background())

	for i := 0; i < 3; i++ {
		q.Enqueue(SpeechChunk{Index: i, IsFinal: i == 2})
	}

	// Chunk 0 is in flight, held at the gate
	require.Eventually(t, func() bool {
		return q.State() == QueuePlaying
	}, time.Second, 5*time.Millisecond)

	// Pause does not abort the in-flight chunk; it finishes, then the
	// queue stops advancing
	q.Pause()
	assert.Equal(t, 1, q.PausedAtIndex())

	rec.gate <- struct{}{}
	require.Eventually(t, func() bool {
		return len(rec.playedIndices()) == 1
	}, time.Second, 5*time.Millisecond)

	rec.gate <- struct{}{}
	rec.gate <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int{0}, rec.playedIndices(), "nothing advances while paused")

	q.Resume()
	require.Eventually(t, func() bool {
		return len(rec.playedIndices()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2}, rec.playedIndices(), "resume plays the rest, replays nothing")
}

func TestQueue_PauseDuringFinalChunkPointsPastIt(t *testing.T) {
	rec := &recorder{gate: make(chan struct{}, 3)}
	q := NewQueue(rec.play, nil, nil, zerolog.Nop())
	q.Start(context.Background())

	for i := 0; i < 3; i++ {
		q.Enqueue(SpeechChunk{Index: i, IsFinal: i == 2})
	}

	// Let chunks 0 and 1 through; the final chunk holds at the gate with
	// nothing queued behind it
	rec.gate <- struct{}{}
	rec.gate <- struct{}{}
	require.Eventually(t, func() bool {
		return len(rec.playedIndices()) == 2 && q.InFlight() && q.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)

	q.Pause()
	assert.Equal(t, 3, q.PausedAtIndex(), "resume point lies past the chunk already playing")

	rec.gate <- struct{}{}
	require.Eventually(t, func() bool {
		return len(rec.playedIndices()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, QueuePaused, q.State(), "pause outlives the in-flight chunk")
}

func TestQueue_AbortDiscardsPendingAndCancelsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	cancelled := make(chan struct{})
	play := func(ctx context.Context, chunk SpeechChunk) error {
		started <- struct{}{}
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}

	q := NewQueue(play, nil, nil, zerolog.Nop())
	q.Start(context.Background())
	q.Enqueue(SpeechChunk{Index: 0})
	q.Enqueue(SpeechChunk{Index: 1})

	<-started
	q.Abort()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("abort did not cancel the in-flight chunk")
	}
	assert.Equal(t, QueueAborted, q.State())
	assert.Zero(t, q.PendingCount())
}

func TestQueue_AbortIsIdempotentAndTerminal(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec.play, nil, nil, zerolog.Nop())
	q.Start(context.Background())

	q.Abort()
	q.Abort()
	assert.Equal(t, QueueAborted, q.State())

	// Enqueues after abort are dropped
	q.Enqueue(SpeechChunk{Index: 0})
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.playedIndices())
	assert.Zero(t, q.PendingCount())
}

func TestQueue_ChunkErrorStopsAndReports(t *testing.T) {
	boom := errors.New("synthesis failed")
	rec := &recorder{fail: map[int]error{1: boom}}

	errCh := make(chan error, 1)
	q := NewQueue(rec.play, func(err error) { errCh <- err }, nil, zerolog.Nop())
	q.Start(context.Background())

	for i := 0; i < 3; i++ {
		q.Enqueue(SpeechChunk{Index: i})
	}

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("queue never reported the chunk error")
	}

	// Partial delivery: chunk 0 played, chunk 2 discarded
	assert.Equal(t, []int{0}, rec.playedIndices())
	assert.Zero(t, q.PendingCount())
}
