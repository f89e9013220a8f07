package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keygate/keygate/internal/core"
	apperrors "github.com/keygate/keygate/internal/errors"
)

// KeyAdmin is the credential management surface of the store.
type KeyAdmin interface {
	ListKeys(ctx context.Context) ([]core.Credential, error)
	CreateKey(ctx context.Context, cred *core.Credential) error
	DeleteKey(ctx context.Context, id string) error
}

// KeyHandlers serves credential management requests.
type KeyHandlers struct {
	keys             KeyAdmin
	defaultPerMinute int
	defaultPerHour   int
}

// NewKeyHandlers returns key management handlers. The defaults apply when a
// creation request omits its quotas.
func NewKeyHandlers(keys KeyAdmin, defaultPerMinute, defaultPerHour int) *KeyHandlers {
	return &KeyHandlers{
		keys:             keys,
		defaultPerMinute: defaultPerMinute,
		defaultPerHour:   defaultPerHour,
	}
}

// KeyView is a credential listing entry. The secret appears only as a
// preview; the full value is returned once, at creation.
type KeyView struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	KeyPreview        string     `json:"key_preview"`
	IsActive          bool       `json:"is_active"`
	RequestsPerMinute int        `json:"requests_per_minute"`
	RequestsPerHour   int        `json:"requests_per_hour"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsed          *time.Time `json:"last_used,omitempty"`
}

type createKeyRequest struct {
	Name              string `json:"name"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	RequestsPerHour   int    `json:"requests_per_hour"`
}

type createKeyResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Key               string    `json:"key"`
	RequestsPerMinute int       `json:"requests_per_minute"`
	RequestsPerHour   int       `json:"requests_per_hour"`
	CreatedAt         time.Time `json:"created_at"`
}

// List handles GET /keys.
func (h *KeyHandlers) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	views := make([]KeyView, 0, len(keys))
	for i := range keys {
		k := &keys[i]
		views = append(views, KeyView{
			ID:                k.ID,
			Name:              k.Name,
			KeyPreview:        k.KeyPreview(),
			IsActive:          k.IsActive,
			RequestsPerMinute: k.RequestsPerMinute,
			RequestsPerHour:   k.RequestsPerHour,
			CreatedAt:         k.CreatedAt,
			LastUsed:          k.LastUsed,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"keys":  views,
		"total": len(views),
	})
}

// Create handles POST /keys. The response is the only place the full
// secret is ever rendered.
func (h *KeyHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.New(apperrors.KindInvalidRequest, "Invalid JSON payload"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondWithError(w, r, apperrors.New(apperrors.KindInvalidRequest, "Field 'name' is required"))
		return
	}

	secret, err := core.GenerateKey()
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	perMinute := req.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = h.defaultPerMinute
	}
	perHour := req.RequestsPerHour
	if perHour <= 0 {
		perHour = h.defaultPerHour
	}

	now := time.Now().UTC()
	cred := &core.Credential{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(req.Name),
		Key:               secret,
		IsActive:          true,
		RequestsPerMinute: perMinute,
		RequestsPerHour:   perHour,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := h.keys.CreateKey(r.Context(), cred); err != nil {
		respondWithError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, createKeyResponse{
		ID:                cred.ID,
		Name:              cred.Name,
		Key:               cred.Key,
		RequestsPerMinute: cred.RequestsPerMinute,
		RequestsPerHour:   cred.RequestsPerHour,
		CreatedAt:         cred.CreatedAt,
	})
}

// Delete handles DELETE /keys/{id}.
func (h *KeyHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.keys.DeleteKey(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondWithError(w, r, apperrors.New(apperrors.KindNotFound, "API key not found"))
			return
		}
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
