package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metrics registers its collectors against the global default registerer
// (promauto.New*, no custom registry), so every subtest below shares the
// one instance New() returns rather than constructing fresh ones — a
// second New() call in the same test binary would panic on duplicate
// collector registration.
var testMetrics = New()

func TestNew_ReturnsUsableMetrics(t *testing.T) {
	require.NotNil(t, testMetrics)
	require.NotNil(t, testMetrics.EventsPopped)
	require.NotNil(t, testMetrics.SchedulerLocksWon)
	require.NotNil(t, testMetrics.DispatcherQueued)
	require.NotNil(t, testMetrics.CacheHits)
}

func TestMiddleware_RecordsStatusCode(t *testing.T) {
	handler := testMetrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddleware_SkipsInstrumentingMetricsEndpoint(t *testing.T) {
	called := false
	handler := testMetrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ServesExpositionFormat(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	testMetrics.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
