package resilience

import (
	"context"
	"fmt"
	"time"
)

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of reconnection attempts
	Backoff     time.Duration // Initial backoff between attempts
	Multiplier  float64       // Backoff multiplier
	MaxBackoff  time.Duration // Maximum backoff duration
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc is a function that attempts to re-establish a connection
type ReconnectFunc func() error

// Reconnect attempts fn with exponential backoff until it succeeds, the
// attempts run out, or ctx is cancelled
func Reconnect(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	backoff := config.Backoff
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("reconnect failed after %d attempts: %w", config.MaxAttempts, lastErr)
}
