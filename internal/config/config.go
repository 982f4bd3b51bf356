package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the turn-taking engine service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// Speech synthesis service configuration
	SynthesisURL    string `envconfig:"SYNTHESIS_URL" default:"ws://localhost:9443/synthesize"`
	SynthesisAPIKey string `envconfig:"SYNTHESIS_API_KEY" required:"true"`
	SynthesisVoice  string `envconfig:"SYNTHESIS_VOICE" default:"default"`

	// Text generation service configuration
	GenerationURL     string `envconfig:"GENERATION_URL" default:"http://localhost:9090/generate"`
	GenerationAPIKey  string `envconfig:"GENERATION_API_KEY" default:""`
	GenerationTimeout int    `envconfig:"GENERATION_TIMEOUT" default:"30"` // seconds

	// Turn prediction decision endpoint (optional; empty keeps fusion local)
	TurnPredictURL     string `envconfig:"TURN_PREDICT_URL" default:""`
	TurnPredictTimeout int    `envconfig:"TURN_PREDICT_TIMEOUT" default:"200"` // milliseconds

	// Audio processing configuration
	SampleRate         int     `envconfig:"SAMPLE_RATE" default:"16000"`         // PCM sample rate in Hz
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"16384"`   // Ring buffer size in samples
	VoiceRMSThreshold  float64 `envconfig:"VOICE_RMS_THRESHOLD" default:"0.015"` // Normalized RMS above which a frame is voiced
	EvaluationTickMs   int     `envconfig:"EVALUATION_TICK_MS" default:"30"`     // Evaluation loop tick interval
	DuckingVolumeStep  float64 `envconfig:"DUCKING_VOLUME_STEP" default:"0.05"`  // Max volume change per evaluation tick
	BackchannelMaxRMS  float64 `envconfig:"BACKCHANNEL_MAX_RMS" default:"0.04"`  // Intensity below which overlap may be a backchannel
	InterruptionMinRMS float64 `envconfig:"INTERRUPTION_MIN_RMS" default:"0.06"` // Intensity above which overlap is always an interruption

	// Endpointing configuration
	BaseThresholdMs    int     `envconfig:"BASE_THRESHOLD_MS" default:"1500"`    // Baseline silence threshold
	MinThresholdMs     int     `envconfig:"MIN_THRESHOLD_MS" default:"500"`      // Adaptive threshold lower clamp
	MaxThresholdMs     int     `envconfig:"MAX_THRESHOLD_MS" default:"3000"`     // Adaptive threshold upper clamp
	FusionMinSilenceMs int     `envconfig:"FUSION_MIN_SILENCE_MS" default:"500"` // Silence before the fusion predictor may fire
	FusionThreshold    float64 `envconfig:"FUSION_THRESHOLD" default:"0.7"`      // Combined confidence needed for an early commit

	// Speech delivery configuration
	ChunkMinLength    int     `envconfig:"CHUNK_MIN_LENGTH" default:"40"`       // Minimum characters before a strong boundary emits
	ChunkMaxLength    int     `envconfig:"CHUNK_MAX_LENGTH" default:"280"`      // Hard cap before a whitespace cut
	ChunkForceAfterMs int     `envconfig:"CHUNK_FORCE_AFTER_MS" default:"1800"` // Force a weak-boundary chunk after this long
	BackchannelMinMs  int     `envconfig:"BACKCHANNEL_MIN_MS" default:"1800"`   // Continuous user speech before a backchannel may play
	BackchannelGapMs  int     `envconfig:"BACKCHANNEL_GAP_MS" default:"8000"`   // Cooldown between backchannels
	BackchannelHoldMs int     `envconfig:"BACKCHANNEL_HOLD_MS" default:"400"`   // Endpointing inhibit window after a backchannel
	BackchannelVolume float64 `envconfig:"BACKCHANNEL_VOLUME" default:"0.2"`    // Playback volume for acknowledgment clips

	// Profile store configuration
	ProfileDir string `envconfig:"PROFILE_DIR" default:"./data/profiles"` // Durable per-user profile storage

	// Telemetry sink configuration (optional; empty disables publishing)
	TelemetryAMQPURL   string `envconfig:"TELEMETRY_AMQP_URL" default:""`
	TelemetryQueueName string `envconfig:"TELEMETRY_QUEUE_NAME" default:"turn-engine.feedback"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if c.SynthesisAPIKey == "" {
		return fmt.Errorf("SYNTHESIS_API_KEY is required")
	}
	if c.MinThresholdMs >= c.MaxThresholdMs {
		return fmt.Errorf("MIN_THRESHOLD_MS (%d) must be below MAX_THRESHOLD_MS (%d)", c.MinThresholdMs, c.MaxThresholdMs)
	}
	if c.BaseThresholdMs < c.MinThresholdMs || c.BaseThresholdMs > c.MaxThresholdMs {
		return fmt.Errorf("BASE_THRESHOLD_MS (%d) must lie within [%d, %d]", c.BaseThresholdMs, c.MinThresholdMs, c.MaxThresholdMs)
	}
	if c.FusionThreshold <= 0 || c.FusionThreshold > 1 {
		return fmt.Errorf("FUSION_THRESHOLD must be in (0, 1], got %f", c.FusionThreshold)
	}
	if c.ChunkMinLength <= 0 || c.ChunkMaxLength <= c.ChunkMinLength {
		return fmt.Errorf("chunk lengths invalid: min=%d max=%d", c.ChunkMinLength, c.ChunkMaxLength)
	}
	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
