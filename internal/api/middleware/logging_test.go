package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerRecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	out := buf.String()
	if !strings.Contains(out, `"request completed"`) {
		t.Fatalf("expected request entry, got %s", out)
	}
	if !strings.Contains(out, `"latency"`) || !strings.Contains(out, `"status":200`) {
		t.Fatalf("expected latency and status fields, got %s", out)
	}
}

// Upgraded connections are logged once the socket closes, as a session
// with its own duration field rather than a request latency.
func TestLoggerDistinguishesWebsocketSessions(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))

	out := buf.String()
	if !strings.Contains(out, `"websocket session ended"`) {
		t.Fatalf("expected session entry, got %s", out)
	}
	if !strings.Contains(out, `"session"`) || strings.Contains(out, `"latency"`) {
		t.Fatalf("expected session duration instead of latency, got %s", out)
	}
}
