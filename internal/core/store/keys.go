package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keygate/keygate/internal/core"
)

// LookupKey returns the credential whose secret equals key, or ErrNotFound.
func (s *Store) LookupKey(ctx context.Context, key string) (*core.Credential, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, key, is_active, requests_per_minute, requests_per_hour,
		       created_at, updated_at, last_used
		FROM api_keys
		WHERE key = ?
	`, key)

	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	return cred, nil
}

// TouchLastUsed updates the credential's last-used timestamp. Called off the
// request path, best effort.
func (s *Store) TouchLastUsed(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	now := time.Now().UTC().Unix()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE api_keys SET last_used = ?, updated_at = ? WHERE id = ?
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// ListKeys returns all credentials, newest first.
func (s *Store) ListKeys(ctx context.Context) ([]core.Credential, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, key, is_active, requests_per_minute, requests_per_hour,
		       created_at, updated_at, last_used
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close() // nolint:errcheck // read-only cursor

	var out []core.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out = append(out, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return out, nil
}

// CreateKey persists a new credential.
func (s *Store) CreateKey(ctx context.Context, cred *core.Credential) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if cred == nil {
		return errors.New("credential is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, key, is_active, requests_per_minute,
		                      requests_per_hour, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, cred.ID, cred.Name, cred.Key, boolToInt(cred.IsActive),
		cred.RequestsPerMinute, cred.RequestsPerHour,
		cred.CreatedAt.UTC().Unix(), cred.UpdatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// DeleteKey removes a credential by ID, returning ErrNotFound when absent.
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*core.Credential, error) {
	var (
		cred      core.Credential
		isActive  int
		createdAt int64
		updatedAt int64
		lastUsed  sql.NullInt64
	)

	if err := row.Scan(&cred.ID, &cred.Name, &cred.Key, &isActive,
		&cred.RequestsPerMinute, &cred.RequestsPerHour,
		&createdAt, &updatedAt, &lastUsed); err != nil {
		return nil, err
	}

	cred.IsActive = isActive != 0
	cred.CreatedAt = time.Unix(createdAt, 0).UTC()
	cred.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if lastUsed.Valid {
		value := time.Unix(lastUsed.Int64, 0).UTC()
		cred.LastUsed = &value
	}
	return &cred, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
