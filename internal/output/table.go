package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/keygate/keygate/internal/core"
)

// FormatKeys renders a credential listing.
func FormatKeys(format Format, keys []core.Credential) (string, error) {
	if format == FormatJSON {
		return FormatJSONValue(keyRows(keys))
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Name", "Key", "Active", "Per Minute", "Per Hour", "Last Used"})

	for i := range keys {
		k := &keys[i]
		t.AppendRow(table.Row{
			k.ID,
			k.Name,
			k.KeyPreview(),
			boolLabel(k.IsActive),
			k.RequestsPerMinute,
			k.RequestsPerHour,
			timeLabel(k.LastUsed),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d total", len(keys))})

	return t.Render(), nil
}

// FormatServices renders a service listing.
func FormatServices(format Format, services []core.ServiceDescriptor) (string, error) {
	if format == FormatJSON {
		return FormatJSONValue(services)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Base URL", "Timeout", "Active", "Healthy", "Last Check"})

	for i := range services {
		svc := &services[i]
		t.AppendRow(table.Row{
			svc.Name,
			svc.BaseURL,
			svc.Timeout.String(),
			boolLabel(svc.IsActive),
			boolLabel(svc.IsHealthy),
			timeLabel(svc.LastHealthCheck),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d total", len(services))})

	return t.Render(), nil
}

// FormatAuditEntries renders an audit log listing.
func FormatAuditEntries(format Format, entries []core.AuditEntry) (string, error) {
	if format == FormatJSON {
		return FormatJSONValue(entries)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Timestamp", "Method", "Path", "Service", "Status", "Time (ms)", "Client IP", "Key"})

	for i := range entries {
		e := &entries[i]
		t.AppendRow(table.Row{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Method,
			e.Path,
			e.ServiceName,
			e.StatusCode,
			fmt.Sprintf("%.1f", e.ResponseTimeMS),
			e.ClientIP,
			e.APIKeyName,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", fmt.Sprintf("%d total", len(entries))})

	return t.Render(), nil
}

type keyRow struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	KeyPreview        string     `json:"key_preview"`
	IsActive          bool       `json:"is_active"`
	RequestsPerMinute int        `json:"requests_per_minute"`
	RequestsPerHour   int        `json:"requests_per_hour"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsed          *time.Time `json:"last_used,omitempty"`
}

// keyRows keeps the secret out of JSON output; only the preview is shown.
func keyRows(keys []core.Credential) []keyRow {
	rows := make([]keyRow, 0, len(keys))
	for i := range keys {
		k := &keys[i]
		rows = append(rows, keyRow{
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
	return rows
}

func boolLabel(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func timeLabel(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
