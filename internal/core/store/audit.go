package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/core"
)

const auditColumns = `l.id, l.api_key_id, COALESCE(k.name, ''), l.method, l.path,
	l.query_params, l.headers, l.body, l.status_code, l.response_time_ms,
	l.client_ip, l.user_agent, l.timestamp, l.service_name, l.downstream_url,
	l.error_message, l.is_error`

// Record persists one audit entry. Headers are stored as a JSON object.
func (s *Store) Record(ctx context.Context, entry *core.AuditEntry) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if entry == nil {
		return errors.New("audit entry is required")
	}

	headers, err := json.Marshal(entry.Headers)
	if err != nil {
		return fmt.Errorf("encode audit headers: %w", err)
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO request_logs (id, api_key_id, method, path, query_params,
		                          headers, body, status_code, response_time_ms,
		                          client_ip, user_agent, timestamp, service_name,
		                          downstream_url, error_message, is_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.APIKeyID, entry.Method, entry.Path, entry.QueryParams,
		string(headers), entry.Body, entry.StatusCode, entry.ResponseTimeMS,
		entry.ClientIP, entry.UserAgent, entry.Timestamp.UTC().Unix(),
		entry.ServiceName, entry.DownstreamURL, entry.ErrorMessage,
		boolToInt(entry.IsError))
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns a page of audit entries, newest first, plus the
// total count matching the filter.
func (s *Store) ListAuditEntries(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, int, error) {
	if s == nil || s.DB == nil {
		return nil, 0, errors.New("store is not initialized")
	}

	var (
		where []string
		args  []any
	)
	if filter.ServiceName != "" {
		where = append(where, "l.service_name = ?")
		args = append(args, filter.ServiceName)
	}
	if filter.StatusCode != 0 {
		where = append(where, "l.status_code = ?")
		args = append(args, filter.StatusCode)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM request_logs l`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + auditColumns + `
		FROM request_logs l
		LEFT JOIN api_keys k ON k.id = l.api_key_id` + clause + `
		ORDER BY l.timestamp DESC, l.id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close() // nolint:errcheck // read-only cursor

	var out []core.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return out, total, nil
}

// Stats aggregates audit history into the summary served by the stats
// endpoint.
func (s *Store) Stats(ctx context.Context) (*core.AuditStats, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	stats := &core.AuditStats{}

	var avg sql.NullFloat64
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_error), 0),
		       AVG(response_time_ms)
		FROM request_logs
	`).Scan(&stats.TotalRequests, &stats.ErrorRequests, &avg)
	if err != nil {
		return nil, fmt.Errorf("aggregate audit stats: %w", err)
	}
	if avg.Valid {
		stats.AverageResponseTimeMS = avg.Float64
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.TotalRequests-stats.ErrorRequests) / float64(stats.TotalRequests) * 100
	}

	cutoff := time.Now().Add(-24 * time.Hour).UTC().Unix()
	err = s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM request_logs WHERE timestamp >= ?
	`, cutoff).Scan(&stats.RecentRequests24h)
	if err != nil {
		return nil, fmt.Errorf("aggregate recent requests: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT service_name, COUNT(*) AS requests
		FROM request_logs
		WHERE service_name != ''
		GROUP BY service_name
		ORDER BY requests DESC
		LIMIT 5
	`)
	if err != nil {
		return nil, fmt.Errorf("aggregate top services: %w", err)
	}
	defer rows.Close() // nolint:errcheck // read-only cursor

	for rows.Next() {
		var count core.ServiceCount
		if err := rows.Scan(&count.ServiceName, &count.Count); err != nil {
			return nil, fmt.Errorf("scan top service: %w", err)
		}
		stats.TopServices = append(stats.TopServices, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate top services: %w", err)
	}
	return stats, nil
}

func scanAuditEntry(row rowScanner) (*core.AuditEntry, error) {
	var (
		entry     core.AuditEntry
		headers   string
		timestamp int64
		isError   int
	)

	if err := row.Scan(&entry.ID, &entry.APIKeyID, &entry.APIKeyName,
		&entry.Method, &entry.Path, &entry.QueryParams, &headers, &entry.Body,
		&entry.StatusCode, &entry.ResponseTimeMS, &entry.ClientIP,
		&entry.UserAgent, &timestamp, &entry.ServiceName, &entry.DownstreamURL,
		&entry.ErrorMessage, &isError); err != nil {
		return nil, err
	}

	if headers != "" {
		if err := json.Unmarshal([]byte(headers), &entry.Headers); err != nil {
			return nil, fmt.Errorf("decode audit headers: %w", err)
		}
	}
	entry.Timestamp = time.Unix(timestamp, 0).UTC()
	entry.IsError = isError != 0
	return &entry, nil
}
