package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/keygate/keygate/internal/core"
	apperrors "github.com/keygate/keygate/internal/errors"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

// AuditReader is the audit query surface of the store.
type AuditReader interface {
	ListAuditEntries(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, int, error)
	Stats(ctx context.Context) (*core.AuditStats, error)
}

// LogHandlers serves audit log queries.
type LogHandlers struct {
	audit AuditReader
}

// NewLogHandlers returns audit log handlers.
func NewLogHandlers(audit AuditReader) *LogHandlers {
	return &LogHandlers{audit: audit}
}

// List handles GET /logs with limit, offset, service, and status_code
// query filters.
func (h *LogHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	entries, total, listErr := h.audit.ListAuditEntries(r.Context(), filter)
	if listErr != nil {
		respondWithError(w, r, listErr)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"logs":   entries,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// Stats handles GET /stats.
func (h *LogHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audit.Stats(r.Context())
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if stats.TopServices == nil {
		stats.TopServices = []core.ServiceCount{}
	}
	respondJSON(w, http.StatusOK, stats)
}

func parseAuditFilter(r *http.Request) (core.AuditFilter, error) {
	filter := core.AuditFilter{
		Limit:       defaultLogLimit,
		ServiceName: r.URL.Query().Get("service"),
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, apperrors.New(apperrors.KindInvalidRequest, "Parameter 'limit' must be a positive integer")
		}
		if limit > maxLogLimit {
			limit = maxLogLimit
		}
		filter.Limit = limit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, apperrors.New(apperrors.KindInvalidRequest, "Parameter 'offset' must be a non-negative integer")
		}
		filter.Offset = offset
	}

	if raw := r.URL.Query().Get("status_code"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil || status < 100 || status > 599 {
			return filter, apperrors.New(apperrors.KindInvalidRequest, "Parameter 'status_code' must be a valid HTTP status")
		}
		filter.StatusCode = status
	}

	return filter, nil
}
