package turnpredict

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/turn-engine/internal/audio"
)

func TestFusion_NoTranscriptFailsClosed(t *testing.T) {
	p := NewFusionPredictor(500, 0.7)

	d := p.Decide(context.Background(), "", audio.Features{DurationMs: 900, Intensity: 0.03, FrequencyHz: 150}, 900)
	assert.False(t, d.TakeTurn, "missing transcript must never commit the turn")
	assert.Zero(t, d.Confidence)
}

func TestFusion_BelowMinimumSilence(t *testing.T) {
	p := NewFusionPredictor(500, 0.7)

	d := p.Decide(context.Background(), "Book the flight.", audio.Features{DurationMs: 900, Intensity: 0.03, FrequencyHz: 150}, 300)
	assert.False(t, d.TakeTurn)
	assert.Zero(t, d.Confidence)
}

func TestFusion_CommitsOnCompleteTextAndFinalProsody(t *testing.T) {
	p := NewFusionPredictor(500, 0.7)

	// Terminal punctuation (0.9) fused with falling pitch and low
	// intensity (1.0): 0.6*0.9 + 0.4*1.0 = 0.94
	d := p.Decide(context.Background(), "Book the flight.", audio.Features{DurationMs: 900, Intensity: 0.03, FrequencyHz: 150}, 600)
	require.True(t, d.TakeTurn)
	assert.InDelta(t, 0.94, d.Confidence, 0.001)
}

func TestFusion_IncompleteTextHoldsTheFloor(t *testing.T) {
	p := NewFusionPredictor(500, 0.7)

	// Trailing connective maps to a near-zero text signal; even perfect
	// prosody cannot push the fusion past the commit threshold
	d := p.Decide(context.Background(), "I need to fly to", audio.Features{DurationMs: 900, Intensity: 0.03, FrequencyHz: 150}, 600)
	assert.False(t, d.TakeTurn)
	assert.Less(t, d.Confidence, 0.7)
}

func TestFusion_MissingProsodyUsesTextAlone(t *testing.T) {
	p := NewFusionPredictor(500, 0.7)

	// Text signal 0.9 stands alone when no features were extracted
	d := p.Decide(context.Background(), "Book the flight.", audio.Features{}, 600)
	require.True(t, d.TakeTurn)
	assert.InDelta(t, 0.9, d.Confidence, 0.001)
}

func TestRemoteClient_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req decisionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "that's all", req.Transcript)
		assert.Equal(t, 800, req.SilenceDurationMs)

		json.NewEncoder(w).Encode(decisionResponse{TakeTurn: true, Confidence: 0.88, ThresholdMs: 1200})
	}))
	defer srv.Close()

	c := NewRemoteClient(srv.URL, time.Second, zerolog.Nop())
	d, err := c.Predict(context.Background(), "that's all", audio.Features{DurationMs: 500, Intensity: 0.02}, 800, 1500)
	require.NoError(t, err)
	assert.True(t, d.TakeTurn)
	assert.InDelta(t, 0.88, d.Confidence, 0.001)
	assert.Equal(t, 1200, d.ThresholdMs)
}

func TestRemoteClient_ServerErrorReturnsZeroDecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRemoteClient(srv.URL, time.Second, zerolog.Nop())
	d, err := c.Predict(context.Background(), "hello", audio.Features{}, 800, 1500)
	require.Error(t, err)
	assert.False(t, d.TakeTurn)
	assert.Zero(t, d.Confidence)
}
