package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/core"
	apperrors "github.com/keygate/keygate/internal/errors"
	"github.com/keygate/keygate/internal/observability"
)

// KeyStore resolves API keys to credentials.
type KeyStore interface {
	LookupKey(ctx context.Context, key string) (*core.Credential, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// Authenticator resolves the request's API key against the key store.
type Authenticator struct {
	keys KeyStore
}

// NewAuthenticator returns an Authenticator over the given key store.
func NewAuthenticator(keys KeyStore) *Authenticator {
	return &Authenticator{keys: keys}
}

// Authenticate extracts the request's API key and resolves it to an active
// credential. Missing and invalid keys fail with distinct error kinds but
// the same HTTP status.
func (a *Authenticator) Authenticate(r *http.Request) (*core.Credential, *apperrors.GatewayError) {
	key := extractKey(r)
	if key == "" {
		return nil, apperrors.New(apperrors.KindMissingCredential,
			"API key required. Provide it via the X-API-Key header or an Authorization bearer token.")
	}

	cred, err := a.keys.LookupKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, apperrors.New(apperrors.KindInvalidCredential, "Invalid or inactive API key")
		}
		return nil, apperrors.Wrap(apperrors.KindInternalError, err, "An unexpected error occurred")
	}
	if !cred.IsActive {
		return nil, apperrors.New(apperrors.KindInvalidCredential, "Invalid or inactive API key")
	}

	a.touchLastUsed(cred.ID)
	return cred, nil
}

// touchLastUsed updates the usage timestamp off the request path. A failed
// update is logged and otherwise ignored.
func (a *Authenticator) touchLastUsed(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.keys.TouchLastUsed(ctx, id); err != nil && observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to update key usage timestamp",
				zap.String("api_key_id", id),
				zap.Error(err),
			)
		}
	}()
}

// extractKey pulls the API key from X-API-Key, falling back to the
// Authorization header with any Bearer prefix stripped.
func extractKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		auth = strings.TrimSpace(auth[len("bearer "):])
	}
	return auth
}
