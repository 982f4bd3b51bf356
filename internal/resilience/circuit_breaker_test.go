package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	failing := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		if err := cb.Call(failing); err == nil {
			t.Fatalf("Expected failure on call %d", i)
		}
	}

	if cb.GetState() != StateOpen {
		t.Errorf("Expected open state after 3 failures, got %v", cb.GetState())
	}

	if err := cb.Call(failing); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)

	for i := 0; i < 10; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.RecordResult(true)
	cb.RecordResult(false)
	cb.RecordResult(false)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed state when failures never reach max consecutively, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Fatal("Expected open state")
	}

	time.Sleep(15 * time.Millisecond)

	// Probe calls succeed; after halfOpenMax successes the circuit closes
	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("Expected probe call %d to be allowed: %v", i, err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after successful probes, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)

	cb.RecordResult(false)
	time.Sleep(15 * time.Millisecond)

	if err := cb.Call(func() error { return errors.New("still down") }); err == nil {
		t.Fatal("Expected probe failure")
	}

	if cb.GetState() != StateOpen {
		t.Errorf("Expected re-open on half-open failure, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Fatal("Expected open state")
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected closed after reset, got %v", cb.GetState())
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker("test", 5, time.Minute)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requests, failures, rate := cb.GetStats()
	if state != StateClosed {
		t.Errorf("Expected closed, got %v", state)
	}
	if requests != 2 || failures != 1 {
		t.Errorf("Expected 2 requests / 1 failure, got %d / %d", requests, failures)
	}
	if rate != 50.0 {
		t.Errorf("Expected 50%% failure rate, got %f", rate)
	}
}
