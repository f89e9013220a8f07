package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		key TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		requests_per_minute INTEGER NOT NULL DEFAULT 60,
		requests_per_hour INTEGER NOT NULL DEFAULT 1000,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		last_used INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS services (
		name TEXT PRIMARY KEY,
		base_url TEXT NOT NULL,
		timeout_seconds INTEGER NOT NULL DEFAULT 30,
		is_active INTEGER NOT NULL DEFAULT 1,
		health_check_path TEXT NOT NULL DEFAULT '/health',
		is_healthy INTEGER NOT NULL DEFAULT 1,
		last_health_check INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS request_logs (
		id TEXT PRIMARY KEY,
		api_key_id TEXT,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		query_params TEXT,
		headers TEXT,
		body TEXT,
		status_code INTEGER NOT NULL,
		response_time_ms REAL NOT NULL,
		client_ip TEXT NOT NULL,
		user_agent TEXT,
		timestamp INTEGER NOT NULL,
		service_name TEXT,
		downstream_url TEXT,
		error_message TEXT,
		is_error INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_request_logs_key_timestamp ON request_logs(api_key_id, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_request_logs_status ON request_logs(status_code);`,
	`CREATE INDEX IF NOT EXISTS idx_request_logs_service ON request_logs(service_name);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
