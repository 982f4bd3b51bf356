package llm

import (
	"context"
	"errors"
)

// Failure classes the session loop handles differently. A no-match is a
// conversational outcome to relay to the user; an empty result or network
// failure is an infrastructure problem; cancellation is neither.
var (
	// ErrNoMatch: the backend understood the input but has no answer
	ErrNoMatch = errors.New("no response for input")

	// ErrEmptyResult: the backend answered with no usable text
	ErrEmptyResult = errors.New("generation produced empty result")
)

// Chunk is one increment of generated reply text. Err is set on the last
// chunk when the stream ended abnormally.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

// Client generates reply text as a stream of chunks so synthesis can start
// before generation finishes. A whole-text backend delivers one chunk.
type Client interface {
	// Generate streams the reply for one user turn
	Generate(ctx context.Context, prompt string) (<-chan Chunk, error)

	// Close releases the client
	Close() error
}
