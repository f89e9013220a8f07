package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/ratelimit"
)

type pipelineFixture struct {
	pipeline *Pipeline
	keys     *stubKeyStore
	registry *stubRegistry
	sink     *stubSink
}

func newPipelineFixture(t *testing.T, downstreamURL string) *pipelineFixture {
	t.Helper()

	keys := newStubKeyStore(activeCredential("abc123"))
	registry := newStubRegistry(healthyService("orders", downstreamURL))
	sink := &stubSink{}

	counters := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = counters.Close() })

	return &pipelineFixture{
		pipeline: NewPipeline(
			NewAuthenticator(keys),
			ratelimit.NewLimiter(counters),
			NewForwarder(registry, nil),
			NewRecorder(sink, 1000),
		),
		keys:     keys,
		registry: registry,
		sink:     sink,
	}
}

func (f *pipelineFixture) do(r *http.Request, service, rest string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.pipeline.Handle(w, r, service, rest)
	return w
}

func proxyRequest(key string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/proxy/orders/items?expand=lines", nil)
	r.RemoteAddr = "203.0.113.9:51234"
	if key != "" {
		r.Header.Set("X-API-Key", key)
	}
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestPipelineSuccess(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer downstream.Close()

	f := newPipelineFixture(t, downstream.URL)
	w := f.do(proxyRequest("abc123"), "orders", "items")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"items":[]}`, w.Body.String())
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	entries := f.sink.recorded()
	require.Len(t, entries, 1, "exactly one audit entry per request")
	entry := entries[0]
	require.Equal(t, "key-1", entry.APIKeyID)
	require.Equal(t, "test", entry.APIKeyName)
	require.Equal(t, "orders", entry.ServiceName)
	require.Equal(t, http.StatusOK, entry.StatusCode)
	require.Equal(t, "203.0.113.9", entry.ClientIP)
	require.False(t, entry.IsError)
	require.Contains(t, entry.DownstreamURL, "/items")
}

func TestPipelineMissingCredential(t *testing.T) {
	var downstreamHits int
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downstreamHits++
	}))
	defer downstream.Close()

	f := newPipelineFixture(t, downstream.URL)
	w := f.do(proxyRequest(""), "orders", "items")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, string(apperrors.KindMissingCredential), decodeError(t, w).Error)
	require.Zero(t, downstreamHits, "unauthenticated requests never reach the downstream")

	entries := f.sink.recorded()
	require.Len(t, entries, 1, "failures are audited too")
	require.True(t, entries[0].IsError)
	require.Empty(t, entries[0].APIKeyID)
	require.NotEmpty(t, entries[0].ErrorMessage)
}

func TestPipelineInvalidCredential(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer downstream.Close()

	f := newPipelineFixture(t, downstream.URL)
	w := f.do(proxyRequest("wrong"), "orders", "items")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, string(apperrors.KindInvalidCredential), decodeError(t, w).Error)
}

func TestPipelineRateLimit(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	f := newPipelineFixture(t, downstream.URL)
	cred := activeCredential("abc123")
	cred.RequestsPerMinute = 2
	f.keys.credentials["abc123"] = cred

	require.Equal(t, http.StatusOK, f.do(proxyRequest("abc123"), "orders", "items").Code)
	require.Equal(t, http.StatusOK, f.do(proxyRequest("abc123"), "orders", "items").Code)

	w := f.do(proxyRequest("abc123"), "orders", "items")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))

	resp := decodeError(t, w)
	require.Equal(t, string(apperrors.KindRateLimitExceeded), resp.Error)
	require.Equal(t, 60, resp.RetryAfter)

	entries := f.sink.recorded()
	require.Len(t, entries, 3)
	require.True(t, entries[2].IsError)
}

func TestPipelineUnknownService(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer downstream.Close()

	f := newPipelineFixture(t, downstream.URL)
	w := f.do(proxyRequest("abc123"), "ghost", "items")

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, string(apperrors.KindServiceNotConfigured), decodeError(t, w).Error)

	entries := f.sink.recorded()
	require.Len(t, entries, 1)
	require.Equal(t, "ghost", entries[0].ServiceName)
	require.Empty(t, entries[0].DownstreamURL)
}

func TestPipelineCapturesRequestBody(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	f := newPipelineFixture(t, downstream.URL)

	r := httptest.NewRequest(http.MethodPost, "/proxy/orders/items", strings.NewReader("{\n \"sku\": \"a\"\n}"))
	r.RemoteAddr = "203.0.113.9:51234"
	r.Header.Set("X-API-Key", "abc123")

	w := f.do(r, "orders", "items")
	require.Equal(t, http.StatusOK, w.Code)

	entries := f.sink.recorded()
	require.Len(t, entries, 1)
	require.Equal(t, `{"sku":"a"}`, entries[0].Body)
}

func TestPipelineAuditOmitsCredentialHeaders(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	f := newPipelineFixture(t, downstream.URL)

	r := proxyRequest("abc123")
	r.Header.Set("Accept", "application/json")

	f.do(r, "orders", "items")

	entries := f.sink.recorded()
	require.Len(t, entries, 1)
	require.NotContains(t, entries[0].Headers, "X-Api-Key")
	require.Equal(t, "application/json", entries[0].Headers["Accept"])
}
