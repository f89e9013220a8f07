//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func testCredential(t *testing.T, name string) *core.Credential {
	t.Helper()

	key, err := core.GenerateKey()
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	return &core.Credential{
		ID:                uuid.NewString(),
		Name:              name,
		Key:               key,
		IsActive:          true,
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cred := testCredential(t, "billing-worker")
	require.NoError(t, s.CreateKey(ctx, cred))

	found, err := s.LookupKey(ctx, cred.Key)
	require.NoError(t, err)
	require.Equal(t, cred.ID, found.ID)
	require.Equal(t, cred.Name, found.Name)
	require.True(t, found.IsActive)
	require.Equal(t, 60, found.RequestsPerMinute)
	require.Equal(t, 1000, found.RequestsPerHour)
	require.Nil(t, found.LastUsed)

	_, err = s.LookupKey(ctx, "no-such-key")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTouchLastUsed(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cred := testCredential(t, "reporting")
	require.NoError(t, s.CreateKey(ctx, cred))
	require.NoError(t, s.TouchLastUsed(ctx, cred.ID))

	found, err := s.LookupKey(ctx, cred.Key)
	require.NoError(t, err)
	require.NotNil(t, found.LastUsed)
	require.WithinDuration(t, time.Now(), *found.LastUsed, 5*time.Second)
}

func TestListAndDeleteKeys(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := testCredential(t, "first")
	second := testCredential(t, "second")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	second.UpdatedAt = second.CreatedAt
	require.NoError(t, s.CreateKey(ctx, first))
	require.NoError(t, s.CreateKey(ctx, second))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, "second", keys[0].Name, "newest key first")

	require.NoError(t, s.DeleteKey(ctx, first.ID))
	require.ErrorIs(t, s.DeleteKey(ctx, first.ID), ErrNotFound)

	keys, err = s.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	desc := &core.ServiceDescriptor{
		Name:            "orders",
		BaseURL:         "http://orders.internal:8080",
		Timeout:         15 * time.Second,
		IsActive:        true,
		HealthCheckPath: "/healthz",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.CreateService(ctx, desc))

	found, err := s.LookupService(ctx, "orders")
	require.NoError(t, err)
	require.Equal(t, desc.BaseURL, found.BaseURL)
	require.Equal(t, 15*time.Second, found.Timeout)
	require.True(t, found.IsActive)
	require.False(t, found.IsHealthy)
	require.Nil(t, found.LastHealthCheck)

	_, err = s.LookupService(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetHealth(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.CreateService(ctx, &core.ServiceDescriptor{
		Name:      "orders",
		BaseURL:   "http://orders.internal:8080",
		Timeout:   10 * time.Second,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	checked := now.Add(time.Minute)
	require.NoError(t, s.SetHealth(ctx, "orders", true, checked))

	found, err := s.LookupService(ctx, "orders")
	require.NoError(t, err)
	require.True(t, found.IsHealthy)
	require.NotNil(t, found.LastHealthCheck)
	require.Equal(t, checked.Unix(), found.LastHealthCheck.Unix())
}

func TestActiveServices(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	for _, svc := range []struct {
		name   string
		active bool
	}{
		{"orders", true},
		{"legacy", false},
		{"billing", true},
	} {
		require.NoError(t, s.CreateService(ctx, &core.ServiceDescriptor{
			Name:      svc.name,
			BaseURL:   "http://" + svc.name + ".internal",
			Timeout:   10 * time.Second,
			IsActive:  svc.active,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	active, err := s.ActiveServices(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "billing", active[0].Name)
	require.Equal(t, "orders", active[1].Name)
}

func testAuditEntry(keyID, service string, status int, ts time.Time) *core.AuditEntry {
	return &core.AuditEntry{
		ID:             uuid.NewString(),
		APIKeyID:       keyID,
		Method:         "GET",
		Path:           "/proxy/" + service + "/items",
		Headers:        map[string]string{"Accept": "application/json"},
		StatusCode:     status,
		ResponseTimeMS: 12.5,
		ClientIP:       "203.0.113.9",
		UserAgent:      "curl/8.0",
		Timestamp:      ts,
		ServiceName:    service,
		DownstreamURL:  "http://" + service + ".internal/items",
		IsError:        status >= 400,
	}
}

func TestAuditRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cred := testCredential(t, "audit-user")
	require.NoError(t, s.CreateKey(ctx, cred))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Record(ctx, testAuditEntry(cred.ID, "orders", 200, now)))
	require.NoError(t, s.Record(ctx, testAuditEntry(cred.ID, "orders", 502, now.Add(time.Second))))
	require.NoError(t, s.Record(ctx, testAuditEntry("", "billing", 401, now.Add(2*time.Second))))

	entries, total, err := s.ListAuditEntries(ctx, core.AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, entries, 3)
	require.Equal(t, "billing", entries[0].ServiceName, "newest entry first")
	require.Equal(t, "audit-user", entries[1].APIKeyName)
	require.Equal(t, "", entries[0].APIKeyName, "unauthenticated entries carry no key name")
	require.Equal(t, map[string]string{"Accept": "application/json"}, entries[0].Headers)
}

func TestAuditFilters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Record(ctx, testAuditEntry("", "orders", 200, now)))
	require.NoError(t, s.Record(ctx, testAuditEntry("", "orders", 502, now)))
	require.NoError(t, s.Record(ctx, testAuditEntry("", "billing", 200, now)))

	entries, total, err := s.ListAuditEntries(ctx, core.AuditFilter{ServiceName: "orders"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, entries, 2)

	entries, total, err = s.ListAuditEntries(ctx, core.AuditFilter{ServiceName: "orders", StatusCode: 502})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, entries, 1)
	require.Equal(t, 502, entries[0].StatusCode)

	entries, total, err = s.ListAuditEntries(ctx, core.AuditFilter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, entries, 1)
}

func TestAuditStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Record(ctx, testAuditEntry("", "orders", 200, now)))
	require.NoError(t, s.Record(ctx, testAuditEntry("", "orders", 200, now)))
	require.NoError(t, s.Record(ctx, testAuditEntry("", "orders", 500, now)))
	require.NoError(t, s.Record(ctx, testAuditEntry("", "billing", 200, now.Add(-48*time.Hour))))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalRequests)
	require.Equal(t, 1, stats.ErrorRequests)
	require.InDelta(t, 75.0, stats.SuccessRate, 0.01)
	require.Equal(t, 3, stats.RecentRequests24h)
	require.InDelta(t, 12.5, stats.AverageResponseTimeMS, 0.01)
	require.Len(t, stats.TopServices, 2)
	require.Equal(t, "orders", stats.TopServices[0].ServiceName)
	require.Equal(t, 3, stats.TopServices[0].Count)
	require.Equal(t, "billing", stats.TopServices[1].ServiceName)
	require.Equal(t, 1, stats.TopServices[1].Count)
}
