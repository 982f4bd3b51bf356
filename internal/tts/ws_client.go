package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/convoflow/turn-engine/internal/config"
	"github.com/convoflow/turn-engine/internal/resilience"
)

// synthesisRequest opens one streaming synthesis over the socket
type synthesisRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

// controlMessage is the server's non-audio frame
type controlMessage struct {
	Type  string `json:"type"` // "done" or "error"
	Error string `json:"error,omitempty"`
}

// WSClient streams synthesized audio over a WebSocket so playback can
// begin before the full utterance is rendered. One connection per
// Synthesize call; cancelling the context tears the connection down.
type WSClient struct {
	config *config.Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewWSClient creates a streaming synthesis client
func NewWSClient(cfg *config.Config, logger zerolog.Logger) *WSClient {
	return &WSClient{
		config: cfg,
		dialer: websocket.DefaultDialer,
		logger: logger.With().Str("component", "tts").Logger(),
	}
}

// Synthesize converts text to audio and streams it chunk by chunk
func (c *WSClient) Synthesize(ctx context.Context, text string) (<-chan *AudioChunk, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("tts client is closed")
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.config.SynthesisAPIKey != "" {
		header.Set("Authorization", "Bearer "+c.config.SynthesisAPIKey)
	}

	// Transient dial failures retry with backoff; synthesis latency is
	// visible to the user, so attempts are few and short
	retryCfg := resilience.DefaultRetryConfig()
	if c.config.RetryMaxAttempts > 0 {
		retryCfg.MaxAttempts = c.config.RetryMaxAttempts
	}
	if c.config.RetryInitialBackoff > 0 {
		retryCfg.InitialBackoff = time.Duration(c.config.RetryInitialBackoff) * time.Millisecond
	}

	var conn *websocket.Conn
	err := resilience.Retry(ctx, func() error {
		var resp *http.Response
		var err error
		conn, resp, err = c.dialer.DialContext(ctx, c.config.SynthesisURL, header)
		if err != nil && resp != nil {
			return fmt.Errorf("status %d: %w", resp.StatusCode, err)
		}
		return err
	}, retryCfg, resilience.IsRetryableNetworkError)
	if err != nil {
		return nil, fmt.Errorf("failed to dial synthesis endpoint: %w", err)
	}

	req := synthesisRequest{
		Text:       text,
		Voice:      c.config.SynthesisVoice,
		SampleRate: c.config.SampleRate,
		Encoding:   "linear16",
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send synthesis request: %w", err)
	}

	chunks := make(chan *AudioChunk, 10)

	// Cancellation closes the connection, which unblocks the reader
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(chunks)
		defer conn.Close()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.logger.Warn().Err(err).Msg("Synthesis stream ended unexpectedly")
				}
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				if len(data) == 0 {
					continue
				}
				chunk := &AudioChunk{
					Data:       data,
					SampleRate: c.config.SampleRate,
					Channels:   1,
				}
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}

			case websocket.TextMessage:
				var ctrl controlMessage
				if err := json.Unmarshal(data, &ctrl); err != nil {
					c.logger.Warn().Err(err).Msg("Unparseable synthesis control frame")
					continue
				}
				if ctrl.Type == "error" {
					c.logger.Error().Str("error", ctrl.Error).Msg("Synthesis backend reported error")
					return
				}
				if ctrl.Type == "done" {
					return
				}
			}
		}
	}()

	return chunks, nil
}

// Close marks the client closed; in-flight streams end via their contexts
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
