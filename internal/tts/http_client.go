package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/convoflow/turn-engine/internal/config"
)

// HTTPClient is the buffering fallback for synthesis backends without a
// streaming socket: one POST per utterance, the whole rendering arrives as
// a single chunk.
type HTTPClient struct {
	config     *config.Config
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

type httpSynthesisRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

// NewHTTPClient creates the non-streaming synthesis client
func NewHTTPClient(cfg *config.Config, endpoint string, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		config:     cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "tts").Logger(),
	}
}

// Synthesize renders the whole text and delivers it as one chunk
func (c *HTTPClient) Synthesize(ctx context.Context, text string) (<-chan *AudioChunk, error) {
	body, err := json.Marshal(httpSynthesisRequest{
		Text:       text,
		Voice:      c.config.SynthesisVoice,
		SampleRate: c.config.SampleRate,
		Encoding:   "linear16",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.SynthesisAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.SynthesisAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("synthesis endpoint returned status %d", resp.StatusCode)
	}

	chunks := make(chan *AudioChunk, 1)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)

		audioData, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("Failed to read synthesis response")
			}
			return
		}
		if len(audioData) == 0 {
			c.logger.Warn().Msg("Synthesis endpoint returned empty audio")
			return
		}

		select {
		case chunks <- &AudioChunk{Data: audioData, SampleRate: c.config.SampleRate, Channels: 1}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// Close is a no-op for the stateless HTTP client
func (c *HTTPClient) Close() error {
	return nil
}
