package stt

// Result is one transcription result from the streaming recognizer
type Result struct {
	// Text is the transcribed text
	Text string

	// IsFinal marks a final result; interim results may still be revised
	IsFinal bool

	// Confidence is the recognizer's confidence (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start of the utterance in seconds
	StartTime float64

	// Duration is the utterance duration in seconds
	Duration float64
}

// Client is the interface for streaming speech-to-text providers.
// An empty transcript means "no information", never "utterance complete".
type Client interface {
	// Start begins a new transcription session
	Start() error

	// SendAudio sends one PCM audio chunk to the recognizer
	SendAudio(audioData []byte) error

	// Results returns the channel transcription results arrive on
	Results() <-chan *Result

	// Stop ends the transcription session
	Stop() error

	// Close releases the client
	Close() error
}
