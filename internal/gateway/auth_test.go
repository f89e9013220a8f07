package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/core"
	apperrors "github.com/keygate/keygate/internal/errors"
)

type stubKeyStore struct {
	mu          sync.Mutex
	credentials map[string]*core.Credential
	touched     []string
	lookupErr   error
}

func newStubKeyStore(creds ...*core.Credential) *stubKeyStore {
	s := &stubKeyStore{credentials: make(map[string]*core.Credential)}
	for _, c := range creds {
		s.credentials[c.Key] = c
	}
	return s
}

func (s *stubKeyStore) LookupKey(_ context.Context, key string) (*core.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	cred, ok := s.credentials[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *stubKeyStore) TouchLastUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

func (s *stubKeyStore) touchedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.touched...)
}

func activeCredential(key string) *core.Credential {
	return &core.Credential{
		ID:                "key-1",
		Name:              "test",
		Key:               key,
		IsActive:          true,
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
	}
}

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"x-api-key header", map[string]string{"X-API-Key": "abc123"}, "abc123"},
		{"bearer token", map[string]string{"Authorization": "Bearer abc123"}, "abc123"},
		{"raw authorization", map[string]string{"Authorization": "abc123"}, "abc123"},
		{"x-api-key wins over authorization", map[string]string{"X-API-Key": "first", "Authorization": "Bearer second"}, "first"},
		{"no credentials", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/proxy/orders/items", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			require.Equal(t, tt.want, extractKey(r))
		})
	}
}

func TestAuthenticateMissingKey(t *testing.T) {
	auth := NewAuthenticator(newStubKeyStore())
	r := httptest.NewRequest(http.MethodGet, "/proxy/orders/items", nil)

	cred, gwErr := auth.Authenticate(r)
	require.Nil(t, cred)
	require.NotNil(t, gwErr)
	require.Equal(t, apperrors.KindMissingCredential, gwErr.Kind)
}

func TestAuthenticateUnknownKey(t *testing.T) {
	auth := NewAuthenticator(newStubKeyStore())
	r := httptest.NewRequest(http.MethodGet, "/proxy/orders/items", nil)
	r.Header.Set("X-API-Key", "nope")

	_, gwErr := auth.Authenticate(r)
	require.NotNil(t, gwErr)
	require.Equal(t, apperrors.KindInvalidCredential, gwErr.Kind)
}

func TestAuthenticateInactiveKey(t *testing.T) {
	cred := activeCredential("abc123")
	cred.IsActive = false
	auth := NewAuthenticator(newStubKeyStore(cred))

	r := httptest.NewRequest(http.MethodGet, "/proxy/orders/items", nil)
	r.Header.Set("X-API-Key", "abc123")

	_, gwErr := auth.Authenticate(r)
	require.NotNil(t, gwErr)
	require.Equal(t, apperrors.KindInvalidCredential, gwErr.Kind)
}

func TestAuthenticateSuccess(t *testing.T) {
	store := newStubKeyStore(activeCredential("abc123"))
	auth := NewAuthenticator(store)

	r := httptest.NewRequest(http.MethodGet, "/proxy/orders/items", nil)
	r.Header.Set("Authorization", "Bearer abc123")

	cred, gwErr := auth.Authenticate(r)
	require.Nil(t, gwErr)
	require.Equal(t, "key-1", cred.ID)

	require.Eventually(t, func() bool {
		return len(store.touchedIDs()) == 1
	}, time.Second, 10*time.Millisecond, "usage timestamp is updated off the request path")
}

func TestAuthenticateStoreFailure(t *testing.T) {
	store := newStubKeyStore()
	store.lookupErr = context.DeadlineExceeded
	auth := NewAuthenticator(store)

	r := httptest.NewRequest(http.MethodGet, "/proxy/orders/items", nil)
	r.Header.Set("X-API-Key", "abc123")

	_, gwErr := auth.Authenticate(r)
	require.NotNil(t, gwErr)
	require.Equal(t, apperrors.KindInternalError, gwErr.Kind)
}
