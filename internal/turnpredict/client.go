package turnpredict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/convoflow/turn-engine/internal/audio"
	"github.com/convoflow/turn-engine/internal/resilience"
)

// decisionRequest is the wire shape of one remote prediction call
type decisionRequest struct {
	Transcript          string         `json:"transcript"`
	AudioFeatures       featurePayload `json:"audioFeatures"`
	SilenceDurationMs   int            `json:"silenceDurationMs"`
	FallbackThresholdMs int            `json:"fallbackThresholdMs"`
}

type featurePayload struct {
	DurationMs  int     `json:"durationMs"`
	Intensity   float64 `json:"intensity"`
	FrequencyHz float64 `json:"frequencyHz"`
}

type decisionResponse struct {
	TakeTurn    bool    `json:"takeTurn"`
	Confidence  float64 `json:"confidence"`
	ThresholdMs int     `json:"thresholdMs"`
}

// RemoteClient calls an external turn-prediction service. A circuit breaker
// shields the evaluation loop when the service degrades; on any failure the
// caller gets a zero Decision and falls back to local endpointing.
type RemoteClient struct {
	endpoint   string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

// NewRemoteClient creates a client for the decision endpoint
func NewRemoteClient(endpoint string, timeout time.Duration, logger zerolog.Logger) *RemoteClient {
	return &RemoteClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    resilience.NewCircuitBreaker("turnpredict", 5, 30*time.Second),
		logger:     logger.With().Str("component", "turnpredict").Logger(),
	}
}

// Predict asks the remote service for a turn decision
func (c *RemoteClient) Predict(ctx context.Context, transcript string, features audio.Features, silenceMs, fallbackThresholdMs int) (Decision, error) {
	var decision Decision

	err := c.breaker.Call(func() error {
		body, err := json.Marshal(decisionRequest{
			Transcript: transcript,
			AudioFeatures: featurePayload{
				DurationMs:  features.DurationMs,
				Intensity:   features.Intensity,
				FrequencyHz: features.FrequencyHz,
			},
			SilenceDurationMs:   silenceMs,
			FallbackThresholdMs: fallbackThresholdMs,
		})
		if err != nil {
			return fmt.Errorf("failed to encode decision request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create decision request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("decision request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("decision endpoint returned status %d", resp.StatusCode)
		}

		var payload decisionResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("failed to decode decision response: %w", err)
		}

		decision = Decision{
			TakeTurn:    payload.TakeTurn,
			Confidence:  payload.Confidence,
			ThresholdMs: payload.ThresholdMs,
			Reason:      "remote decision",
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Remote turn prediction unavailable, falling back to local endpointing")
		return Decision{}, err
	}
	return decision, nil
}
