package observability

import (
	"testing"
)

func TestWithSessionGeneratesIDWhenEmpty(t *testing.T) {
	a := WithSession("")
	b := WithSession("sess-abc")

	// Both must be usable loggers; the empty case fills in a generated ID
	a.Debug().Msg("generated session id")
	b.Debug().Msg("explicit session id")
}

func TestWithCorrelationID(t *testing.T) {
	id := NewCorrelationID()
	if id == "" {
		t.Fatal("expected non-empty correlation ID")
	}
	if id == NewCorrelationID() {
		t.Fatal("correlation IDs must be unique")
	}

	logger := WithCorrelationID(id)
	logger.Debug().Msg("bound correlation id")
}

func TestGetLoggerInitializesOnce(t *testing.T) {
	first := GetLogger()
	second := GetLogger()

	first.Debug().Msg("first")
	second.Debug().Msg("second")

	if !initialized {
		t.Fatal("GetLogger must initialize the global logger")
	}
}
