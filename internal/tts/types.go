package tts

import "context"

// AudioChunk is one piece of synthesized audio ready for playback
type AudioChunk struct {
	Data       []byte // Raw PCM audio data
	SampleRate int    // Sample rate in Hz
	Channels   int    // Number of channels (1 for mono)
}

// Client defines the interface for a text-to-speech client. Synthesize
// streams audio as it is produced; cancelling ctx abandons the request and
// closes the chunk channel.
type Client interface {
	// Synthesize converts text to audio and streams it
	Synthesize(ctx context.Context, text string) (<-chan *AudioChunk, error)

	// Close closes the client and cleans up resources
	Close() error
}
