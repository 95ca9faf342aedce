package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reactorcore/substrate/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"":        "INFO",
		"info":    "INFO",
		"WARN":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input).String(), "input %q", input)
	}
}

func TestNew_BuildsJSONAndTextHandlers(t *testing.T) {
	jsonLogger := New(config.LogConfig{Level: "info", Format: "json", Output: "stdout"})
	require.NotNil(t, jsonLogger)

	textLogger := New(config.LogConfig{Level: "info", Format: "text", Output: "stdout"})
	require.NotNil(t, textLogger)
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestRequestIDFromContext_MissingReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestMiddleware_GeneratesRequestIDWhenAbsent(t *testing.T) {
	logger := New(config.LogConfig{Level: "error", Format: "json", Output: "stdout"})

	var seenID string
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get("X-Request-ID"))
}

func TestMiddleware_PropagatesIncomingRequestID(t *testing.T) {
	logger := New(config.LogConfig{Level: "error", Format: "json", Output: "stdout"})

	var seenID string
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied", seenID)
	assert.Equal(t, "caller-supplied", rec.Header().Get("X-Request-ID"))
}
