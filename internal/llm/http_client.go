package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/convoflow/turn-engine/internal/config"
	"github.com/convoflow/turn-engine/internal/resilience"
)

// generateRequest is the wire shape of one generation call
type generateRequest struct {
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// streamLine is one line of the line-delimited JSON response
type streamLine struct {
	Token string `json:"token,omitempty"`
	Text  string `json:"text,omitempty"` // Whole-text fallback shape
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"` // "no_match" or a message
}

// HTTPClient streams generated text over a chunked, line-delimited JSON
// response. Backends that only return whole replies are handled as a
// single-element stream.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// NewHTTPClient creates a generation client from config
func NewHTTPClient(cfg *config.Config, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: cfg.GenerationURL,
		apiKey:   cfg.GenerationAPIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.GenerationTimeout) * time.Second,
		},
		breaker: resilience.NewCircuitBreaker(
			"generation",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: logger.With().Str("component", "llm").Logger(),
	}
}

// Generate streams the reply for one prompt. The returned channel closes
// when the stream ends; abnormal ends carry their error on the last chunk.
func (c *HTTPClient) Generate(ctx context.Context, prompt string) (<-chan Chunk, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	var resp *http.Response
	err = c.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create generation request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("generation request failed: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity {
			resp.Body.Close()
			resp = nil
			return ErrNoMatch
		}
		if resp.StatusCode != http.StatusOK {
			code := resp.StatusCode
			resp.Body.Close()
			resp = nil
			return fmt.Errorf("generation endpoint returned status %d", code)
		}
		return nil
	})
	if err != nil {
		// Cancellation is the caller's doing, not a backend failure
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	chunks := make(chan Chunk, 16)
	go c.readStream(ctx, resp, chunks)
	return chunks, nil
}

// readStream decodes line-delimited JSON until done or failure
func (c *HTTPClient) readStream(ctx context.Context, resp *http.Response, chunks chan<- Chunk) {
	defer resp.Body.Close()
	defer close(chunks)

	emitted := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg streamLine
		if err := json.Unmarshal(line, &msg); err != nil {
			c.emit(ctx, chunks, Chunk{Err: fmt.Errorf("malformed generation stream: %w", err)})
			return
		}

		if msg.Error != "" {
			err := fmt.Errorf("generation backend error: %s", msg.Error)
			if msg.Error == "no_match" {
				err = ErrNoMatch
			}
			c.emit(ctx, chunks, Chunk{Err: err})
			return
		}

		text := msg.Token
		if text == "" {
			text = msg.Text
		}
		if text != "" {
			emitted = true
			if !c.emit(ctx, chunks, Chunk{Text: text}) {
				return
			}
		}

		if msg.Done {
			if !emitted {
				c.emit(ctx, chunks, Chunk{Err: ErrEmptyResult})
				return
			}
			c.emit(ctx, chunks, Chunk{Done: true})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			c.emit(ctx, chunks, Chunk{Err: ctx.Err()})
			return
		}
		c.emit(ctx, chunks, Chunk{Err: fmt.Errorf("generation stream failed: %w", err)})
		return
	}

	// Stream ended without a done marker
	if !emitted {
		c.emit(ctx, chunks, Chunk{Err: ErrEmptyResult})
		return
	}
	c.emit(ctx, chunks, Chunk{Done: true})
}

// emit sends unless the caller has gone away
func (c *HTTPClient) emit(ctx context.Context, chunks chan<- Chunk, chunk Chunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close releases the client
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
