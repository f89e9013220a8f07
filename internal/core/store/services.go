package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/core"
)

const serviceColumns = `name, base_url, timeout_seconds, is_active,
	health_check_path, is_healthy, last_health_check, created_at, updated_at`

// LookupService returns the descriptor registered under name, or ErrNotFound.
// Active/healthy checks are the caller's concern.
func (s *Store) LookupService(ctx context.Context, name string) (*core.ServiceDescriptor, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE name = ?
	`, name)

	desc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup service: %w", err)
	}
	return desc, nil
}

// ListServices returns every registered service ordered by name.
func (s *Store) ListServices(ctx context.Context) ([]core.ServiceDescriptor, error) {
	return s.queryServices(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		ORDER BY name
	`)
}

// ActiveServices returns only services with the active flag set.
func (s *Store) ActiveServices(ctx context.Context) ([]core.ServiceDescriptor, error) {
	return s.queryServices(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE is_active = 1
		ORDER BY name
	`)
}

func (s *Store) queryServices(ctx context.Context, query string) ([]core.ServiceDescriptor, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close() // nolint:errcheck // read-only cursor

	var out []core.ServiceDescriptor
	for rows.Next() {
		desc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, *desc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return out, nil
}

// CreateService registers a new downstream service.
func (s *Store) CreateService(ctx context.Context, desc *core.ServiceDescriptor) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if desc == nil {
		return errors.New("service descriptor is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO services (name, base_url, timeout_seconds, is_active,
		                      health_check_path, is_healthy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, desc.Name, desc.BaseURL, int(desc.Timeout.Seconds()), boolToInt(desc.IsActive),
		desc.HealthCheckPath, boolToInt(desc.IsHealthy),
		desc.CreatedAt.UTC().Unix(), desc.UpdatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// DeleteService removes a service registration by name.
func (s *Store) DeleteService(ctx context.Context, name string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM services WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetHealth records a probe outcome for a service. This is the only service
// field the pipeline is allowed to write.
func (s *Store) SetHealth(ctx context.Context, name string, healthy bool, checkedAt time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	_, err := s.DB.ExecContext(ctx, `
		UPDATE services
		SET is_healthy = ?, last_health_check = ?, updated_at = ?
		WHERE name = ?
	`, boolToInt(healthy), checkedAt.UTC().Unix(), time.Now().UTC().Unix(), name)
	if err != nil {
		return fmt.Errorf("set service health: %w", err)
	}
	return nil
}

func scanService(row rowScanner) (*core.ServiceDescriptor, error) {
	var (
		desc            core.ServiceDescriptor
		timeoutSeconds  int
		isActive        int
		isHealthy       int
		lastHealthCheck sql.NullInt64
		createdAt       int64
		updatedAt       int64
	)

	if err := row.Scan(&desc.Name, &desc.BaseURL, &timeoutSeconds, &isActive,
		&desc.HealthCheckPath, &isHealthy, &lastHealthCheck,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	desc.Timeout = time.Duration(timeoutSeconds) * time.Second
	desc.IsActive = isActive != 0
	desc.IsHealthy = isHealthy != 0
	if lastHealthCheck.Valid {
		value := time.Unix(lastHealthCheck.Int64, 0).UTC()
		desc.LastHealthCheck = &value
	}
	desc.CreatedAt = time.Unix(createdAt, 0).UTC()
	desc.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &desc, nil
}
