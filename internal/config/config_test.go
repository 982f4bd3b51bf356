package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("DEEPGRAM_API_KEY", "test-key")
	os.Setenv("SYNTHESIS_API_KEY", "test-key")
	t.Cleanup(func() {
		os.Unsetenv("DEEPGRAM_API_KEY")
		os.Unsetenv("SYNTHESIS_API_KEY")
	})
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.BaseThresholdMs != 1500 {
		t.Errorf("Expected default base threshold 1500, got %d", cfg.BaseThresholdMs)
	}
	if cfg.MinThresholdMs != 500 || cfg.MaxThresholdMs != 3000 {
		t.Errorf("Expected threshold clamps [500, 3000], got [%d, %d]", cfg.MinThresholdMs, cfg.MaxThresholdMs)
	}
	if cfg.FusionThreshold != 0.7 {
		t.Errorf("Expected default fusion threshold 0.7, got %f", cfg.FusionThreshold)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", cfg.SampleRate)
	}
	if cfg.EvaluationTickMs != 30 {
		t.Errorf("Expected default evaluation tick 30ms, got %d", cfg.EvaluationTickMs)
	}
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("SYNTHESIS_API_KEY")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("BASE_THRESHOLD_MS", "2000")
	os.Setenv("CHUNK_MIN_LENGTH", "60")
	defer os.Unsetenv("BASE_THRESHOLD_MS")
	defer os.Unsetenv("CHUNK_MIN_LENGTH")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.BaseThresholdMs != 2000 {
		t.Errorf("Expected base threshold 2000, got %d", cfg.BaseThresholdMs)
	}
	if cfg.ChunkMinLength != 60 {
		t.Errorf("Expected chunk min length 60, got %d", cfg.ChunkMinLength)
	}
}

func TestValidate_InvalidClamps(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("MIN_THRESHOLD_MS", "3000")
	os.Setenv("MAX_THRESHOLD_MS", "500")
	defer os.Unsetenv("MIN_THRESHOLD_MS")
	defer os.Unsetenv("MAX_THRESHOLD_MS")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when MIN_THRESHOLD_MS >= MAX_THRESHOLD_MS")
	}
}

func TestValidate_InvalidFusionThreshold(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("FUSION_THRESHOLD", "1.5")
	defer os.Unsetenv("FUSION_THRESHOLD")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for fusion threshold above 1")
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_CONFIG_KEY", "value")
	defer os.Unsetenv("TEST_CONFIG_KEY")

	if got := GetEnv("TEST_CONFIG_KEY", "fallback"); got != "value" {
		t.Errorf("Expected value, got %s", got)
	}
	if got := GetEnv("TEST_CONFIG_MISSING", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %s", got)
	}
}
