package delivery

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// QueueState is the delivery queue's lifecycle state
type QueueState string

const (
	QueueIdle    QueueState = "idle"
	QueuePlaying QueueState = "playing"
	QueuePaused  QueueState = "paused"
	QueueAborted QueueState = "aborted"
)

// PlayFunc synthesizes and plays one chunk. It must honor ctx cancellation.
type PlayFunc func(ctx context.Context, chunk SpeechChunk) error

// Queue plays chunks strictly in index order with at most one chunk in
// flight. Pausing stops advancement without cutting off the chunk already
// playing; aborting cancels it and discards everything pending. Aborted is
// terminal: a new response gets a new queue.
type Queue struct {
	play       PlayFunc
	onError    func(error) // Chunk failure, queue already stopped
	onComplete func()      // Final chunk finished cleanly

	mu             sync.Mutex
	state          QueueState
	pending        []SpeechChunk
	pausedAtIndex  int
	inFlightIndex  int // Index of the chunk being played; -1 before the first
	inFlightCancel context.CancelFunc
	wake           chan struct{}

	logger zerolog.Logger
}

// NewQueue creates an idle queue. onError and onComplete may be nil.
func NewQueue(play PlayFunc, onError func(error), onComplete func(), logger zerolog.Logger) *Queue {
	return &Queue{
		play:          play,
		onError:       onError,
		onComplete:    onComplete,
		state:         QueueIdle,
		inFlightIndex: -1,
		wake:          make(chan struct{}, 1),
		logger:        logger.With().Str("component", "delivery").Logger(),
	}
}

// Start launches the playback loop. It returns when ctx is cancelled or
// the queue aborts.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx)
}

// Enqueue appends a chunk. Chunks enqueued after an abort are dropped.
func (q *Queue) Enqueue(chunk SpeechChunk) {
	q.mu.Lock()
	if q.state == QueueAborted {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, chunk)
	q.mu.Unlock()
	q.signal()
}

// Pause stops advancement after the in-flight chunk finishes and records
// where playback will resume
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueueAborted || q.state == QueuePaused {
		return
	}
	q.state = QueuePaused
	if len(q.pending) > 0 {
		q.pausedAtIndex = q.pending[0].Index
	} else {
		// Nothing queued behind the in-flight chunk; it finishes, so
		// playback resumes past it
		q.pausedAtIndex = q.inFlightIndex + 1
	}
	q.logger.Debug().Int("paused_at_index", q.pausedAtIndex).Msg("Queue paused")
}

// Resume continues playback from where Pause left off
func (q *Queue) Resume() {
	q.mu.Lock()
	if q.state != QueuePaused {
		q.mu.Unlock()
		return
	}
	if len(q.pending) > 0 {
		q.state = QueuePlaying
	} else {
		q.state = QueueIdle
	}
	q.mu.Unlock()
	q.signal()
	q.logger.Debug().Msg("Queue resumed")
}

// Abort cancels the in-flight chunk, discards everything pending, and
// moves to the terminal aborted state. Idempotent.
func (q *Queue) Abort() {
	q.mu.Lock()
	if q.state == QueueAborted {
		q.mu.Unlock()
		return
	}
	q.state = QueueAborted
	q.pending = nil
	cancel := q.inFlightCancel
	q.inFlightCancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.signal()
	q.logger.Debug().Msg("Queue aborted")
}

// State returns the queue's current state
func (q *Queue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// PausedAtIndex returns the index playback will resume from
func (q *Queue) PausedAtIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pausedAtIndex
}

// InFlight reports whether a chunk is currently being played
func (q *Queue) InFlight() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlightCancel != nil
}

// PendingCount returns how many chunks wait behind the in-flight one
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for {
			chunk, playCtx, ok := q.takeNext(ctx)
			if !ok {
				break
			}

			err := q.play(playCtx, chunk)
			q.finishChunk()

			if q.State() == QueueAborted {
				return
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				// Partial delivery is a valid outcome: stop cleanly
				// and let the owner decide
				q.stopOnError(err)
				break
			}
			if chunk.IsFinal {
				q.finishMessage()
				break
			}
		}
	}
}

// takeNext pops the next chunk when the queue may advance
func (q *Queue) takeNext(ctx context.Context) (SpeechChunk, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == QueueAborted || q.state == QueuePaused {
		return SpeechChunk{}, nil, false
	}
	if len(q.pending) == 0 {
		if q.state == QueuePlaying {
			q.state = QueueIdle
		}
		return SpeechChunk{}, nil, false
	}

	chunk := q.pending[0]
	q.pending = q.pending[1:]
	q.state = QueuePlaying
	q.inFlightIndex = chunk.Index

	playCtx, cancel := context.WithCancel(ctx)
	q.inFlightCancel = cancel
	return chunk, playCtx, true
}

func (q *Queue) finishChunk() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlightCancel != nil {
		q.inFlightCancel()
		q.inFlightCancel = nil
	}
}

func (q *Queue) stopOnError(err error) {
	q.mu.Lock()
	q.pending = nil
	if q.state == QueuePlaying {
		q.state = QueueIdle
	}
	q.mu.Unlock()

	q.logger.Error().Err(err).Msg("Chunk playback failed, stopping queue")
	if q.onError != nil {
		q.onError(err)
	}
}

func (q *Queue) finishMessage() {
	q.mu.Lock()
	if q.state == QueuePlaying {
		q.state = QueueIdle
	}
	q.mu.Unlock()

	if q.onComplete != nil {
		q.onComplete()
	}
}
