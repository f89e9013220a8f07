package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

func TestHealthHandlerHealthy(t *testing.T) {
	hm := NewHealthManager("1.2.3")
	hm.RegisterChecker("store", checkerFunc(func(context.Context) error { return nil }))

	w := httptest.NewRecorder()
	hm.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "healthy", resp.Status)
	require.Equal(t, "1.2.3", resp.Version)
	require.Equal(t, "healthy", resp.Checks["store"])
}

func TestHealthHandlerUnhealthy(t *testing.T) {
	hm := NewHealthManager("1.2.3")
	hm.RegisterChecker("store", checkerFunc(func(context.Context) error {
		return errors.New("connection lost")
	}))

	w := httptest.NewRecorder()
	hm.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandlerNoCheckers(t *testing.T) {
	hm := NewHealthManager("1.2.3")

	w := httptest.NewRecorder()
	hm.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
}
