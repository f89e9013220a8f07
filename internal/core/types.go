// Package core defines the domain types shared across the gateway:
// credentials, downstream service descriptors, and audit entries.
package core

import (
	"errors"
	"time"
)

// ErrNotFound reports that a credential, service, or audit entry does not
// exist. Storage backends return it so callers can distinguish absence from
// infrastructure failure.
var ErrNotFound = errors.New("not found")

// Credential is an issued API key together with its quotas. Credentials are
// created through the management surface; the request pipeline only reads
// them and updates LastUsed.
type Credential struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Key               string     `json:"-"`
	IsActive          bool       `json:"is_active"`
	RequestsPerMinute int        `json:"requests_per_minute"`
	RequestsPerHour   int        `json:"requests_per_hour"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastUsed          *time.Time `json:"last_used,omitempty"`
}

// KeyPreview returns the redacted form of the secret for listings. The full
// secret is only ever shown once, at creation time.
func (c *Credential) KeyPreview() string {
	if len(c.Key) <= 8 {
		return c.Key
	}
	return c.Key[:8] + "..."
}

// ServiceDescriptor describes a registered downstream service. The pipeline
// may only influence IsHealthy and LastHealthCheck (via probing); everything
// else is managed externally.
type ServiceDescriptor struct {
	Name            string        `json:"name"`
	BaseURL         string        `json:"base_url"`
	Timeout         time.Duration `json:"timeout"`
	IsActive        bool          `json:"is_active"`
	HealthCheckPath string        `json:"health_check_path"`
	IsHealthy       bool          `json:"is_healthy"`
	LastHealthCheck *time.Time    `json:"last_health_check,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AuditEntry is one durable record of a processed request. Exactly one entry
// is created per request that enters the pipeline, including failures, and it
// is never mutated after creation.
type AuditEntry struct {
	ID             string            `json:"id"`
	APIKeyID       string            `json:"api_key_id,omitempty"`
	APIKeyName     string            `json:"api_key_name,omitempty"`
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	QueryParams    string            `json:"query_params,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	StatusCode     int               `json:"status_code"`
	ResponseTimeMS float64           `json:"response_time_ms"`
	ClientIP       string            `json:"client_ip"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	ServiceName    string            `json:"service_name,omitempty"`
	DownstreamURL  string            `json:"downstream_url,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	IsError        bool              `json:"is_error"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Limit       int
	Offset      int
	ServiceName string
	StatusCode  int
}

// ServiceCount is one row of the top-services aggregation.
type ServiceCount struct {
	ServiceName string `json:"service_name"`
	Count       int    `json:"count"`
}

// AuditStats aggregates usage statistics over the audit log.
type AuditStats struct {
	TotalRequests         int            `json:"total_requests"`
	ErrorRequests         int            `json:"error_requests"`
	SuccessRate           float64        `json:"success_rate"`
	RecentRequests24h     int            `json:"recent_requests_24h"`
	AverageResponseTimeMS float64        `json:"average_response_time_ms"`
	TopServices           []ServiceCount `json:"top_services"`
}

// ServiceHealth is the probe outcome for a single downstream service.
type ServiceHealth struct {
	Name            string     `json:"name"`
	BaseURL         string     `json:"base_url,omitempty"`
	Healthy         bool       `json:"healthy"`
	Message         string     `json:"message"`
	LastHealthCheck *time.Time `json:"last_health_check,omitempty"`
}
