package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convoflow/turn-engine/internal/adaptive"
	"github.com/convoflow/turn-engine/internal/config"
	"github.com/convoflow/turn-engine/internal/llm"
	"github.com/convoflow/turn-engine/internal/observability"
	"github.com/convoflow/turn-engine/internal/session"
	"github.com/convoflow/turn-engine/internal/stt"
	"github.com/convoflow/turn-engine/internal/telemetry"
	"github.com/convoflow/turn-engine/internal/tts"
	"github.com/convoflow/turn-engine/internal/turnpredict"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("synthesis_url", cfg.SynthesisURL).
		Str("generation_url", cfg.GenerationURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Turn Engine Service starting")

	// Durable per-user threshold profiles
	store, err := adaptive.NewFileStore(cfg.ProfileDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.ProfileDir).Msg("Failed to open profile store")
	}
	learner := adaptive.NewLearner(store, cfg.BaseThresholdMs, cfg.MinThresholdMs, cfg.MaxThresholdMs, logger)

	// Shared service clients; the recognizer is per-session. The synthesis
	// endpoint scheme picks streaming vs buffered delivery.
	var ttsClient tts.Client
	if strings.HasPrefix(cfg.SynthesisURL, "http") {
		ttsClient = tts.NewHTTPClient(cfg, cfg.SynthesisURL, logger)
	} else {
		ttsClient = tts.NewWSClient(cfg, logger)
	}
	llmClient := llm.NewHTTPClient(cfg, logger)

	deps := session.Deps{
		NewSTT:    func() stt.Client { return stt.NewDeepgramClient(cfg, logger) },
		TTS:       ttsClient,
		LLM:       llmClient,
		Learner:   learner,
		Predictor: turnpredict.NewFusionPredictor(cfg.FusionMinSilenceMs, cfg.FusionThreshold),
	}

	if cfg.TurnPredictURL != "" {
		deps.Remote = turnpredict.NewRemoteClient(
			cfg.TurnPredictURL,
			time.Duration(cfg.TurnPredictTimeout)*time.Millisecond,
			logger,
		)
		logger.Info().Str("url", cfg.TurnPredictURL).Msg("Remote turn prediction enabled")
	}

	// Optional feedback mirroring for offline threshold tuning
	telemetryCtx, telemetryCancel := context.WithCancel(context.Background())
	defer telemetryCancel()
	if cfg.TelemetryAMQPURL != "" {
		publisher := telemetry.NewPublisher(cfg.TelemetryAMQPURL, cfg.TelemetryQueueName, logger)
		go publisher.Run(telemetryCtx)
		deps.Feedback = publisher
		logger.Info().Str("queue", cfg.TelemetryQueueName).Msg("Feedback telemetry enabled")
	}

	// Create HTTP server
	mux := http.NewServeMux()

	// Dialogue session WebSocket endpoint
	mux.HandleFunc("/session", session.Handler(cfg, deps))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint
	checks := map[string]observability.HealthCheckFunc{
		"profile_store": func(ctx context.Context) (bool, error) {
			if _, err := os.Stat(cfg.ProfileDir); err != nil {
				return false, err
			}
			return true, nil
		},
		"generation": func(ctx context.Context) (bool, error) {
			// Config-level check only; a live probe would bill per request
			if cfg.GenerationURL == "" {
				return false, fmt.Errorf("generation URL not configured")
			}
			return true, nil
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. No write timeout: session sockets
	// stay open for the life of the conversation.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/session", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	telemetryCancel()
	logger.Info().Msg("Server exited gracefully")
}
