package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/core"
	apperrors "github.com/keygate/keygate/internal/errors"
)

// ServiceAdmin is the service registration surface of the store.
type ServiceAdmin interface {
	ListServices(ctx context.Context) ([]core.ServiceDescriptor, error)
	LookupService(ctx context.Context, name string) (*core.ServiceDescriptor, error)
	CreateService(ctx context.Context, desc *core.ServiceDescriptor) error
	DeleteService(ctx context.Context, name string) error
	SetHealth(ctx context.Context, name string, healthy bool, checkedAt time.Time) error
}

// ServiceProber runs on-demand health checks.
type ServiceProber interface {
	Probe(ctx context.Context, svc *core.ServiceDescriptor) (bool, string)
	ProbeAll(ctx context.Context) ([]core.ServiceHealth, error)
}

// ServiceHandlers serves service registration and health requests.
type ServiceHandlers struct {
	services ServiceAdmin
	prober   ServiceProber
}

// NewServiceHandlers returns service management handlers.
func NewServiceHandlers(services ServiceAdmin, prober ServiceProber) *ServiceHandlers {
	return &ServiceHandlers{services: services, prober: prober}
}

// ServiceView is a service listing entry.
type ServiceView struct {
	Name            string     `json:"name"`
	BaseURL         string     `json:"base_url"`
	TimeoutSeconds  int        `json:"timeout_seconds"`
	IsActive        bool       `json:"is_active"`
	HealthCheckPath string     `json:"health_check_path,omitempty"`
	IsHealthy       bool       `json:"is_healthy"`
	LastHealthCheck *time.Time `json:"last_health_check,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type createServiceRequest struct {
	Name            string `json:"name"`
	BaseURL         string `json:"base_url"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	HealthCheckPath string `json:"health_check_path"`
}

// List handles GET /services.
func (h *ServiceHandlers) List(w http.ResponseWriter, r *http.Request) {
	services, err := h.services.ListServices(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	views := make([]ServiceView, 0, len(services))
	for i := range services {
		views = append(views, serviceView(&services[i]))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"services": views,
		"total":    len(views),
	})
}

// Create handles POST /services. New services start healthy only after
// their first probe; until then the proxy refuses them.
func (h *ServiceHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.New(apperrors.KindInvalidRequest, "Invalid JSON payload"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondWithError(w, r, apperrors.New(apperrors.KindInvalidRequest, "Field 'name' is required"))
		return
	}
	baseURL := strings.TrimSpace(req.BaseURL)
	if parsed, err := url.Parse(baseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		respondWithError(w, r, apperrors.New(apperrors.KindInvalidRequest, "Field 'base_url' must be an absolute URL"))
		return
	}

	if _, err := h.services.LookupService(r.Context(), name); err == nil {
		respondWithError(w, r, apperrors.New(apperrors.KindConflict, "Service '"+name+"' already exists"))
		return
	} else if !errors.Is(err, core.ErrNotFound) {
		respondWithError(w, r, err)
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	now := time.Now().UTC()
	desc := &core.ServiceDescriptor{
		Name:            name,
		BaseURL:         baseURL,
		Timeout:         timeout,
		IsActive:        true,
		HealthCheckPath: req.HealthCheckPath,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.services.CreateService(r.Context(), desc); err != nil {
		respondWithError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, serviceView(desc))
}

// Delete handles DELETE /services/{service}.
func (h *ServiceHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "service")
	if err := h.services.DeleteService(r.Context(), name); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondWithError(w, r, apperrors.New(apperrors.KindNotFound, "Service not found"))
			return
		}
		respondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /services/{service}/health with an on-demand probe.
func (h *ServiceHandlers) Health(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "service")
	svc, err := h.services.LookupService(r.Context(), name)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondWithError(w, r, apperrors.New(apperrors.KindNotFound, "Service not found"))
			return
		}
		respondWithError(w, r, err)
		return
	}

	healthy, message := h.prober.Probe(r.Context(), svc)
	checkedAt := time.Now().UTC()
	if err := h.services.SetHealth(r.Context(), svc.Name, healthy, checkedAt); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, core.ServiceHealth{
		Name:            svc.Name,
		BaseURL:         svc.BaseURL,
		Healthy:         healthy,
		Message:         message,
		LastHealthCheck: &checkedAt,
	})
}

// Status handles GET /services/status, probing every active service.
func (h *ServiceHandlers) Status(w http.ResponseWriter, r *http.Request) {
	results, err := h.prober.ProbeAll(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"services": results,
		"total":    len(results),
	})
}

func serviceView(desc *core.ServiceDescriptor) ServiceView {
	return ServiceView{
		Name:            desc.Name,
		BaseURL:         desc.BaseURL,
		TimeoutSeconds:  int(desc.Timeout.Seconds()),
		IsActive:        desc.IsActive,
		HealthCheckPath: desc.HealthCheckPath,
		IsHealthy:       desc.IsHealthy,
		LastHealthCheck: desc.LastHealthCheck,
		CreatedAt:       desc.CreatedAt,
	}
}
