package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("memory path passes through", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})

	t.Run("plain path gets file scheme", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gateway.db")
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: path})
		require.NoError(t, err)
		require.Equal(t, "file:"+filepath.Clean(path), dsn)
	})

	t.Run("file path keeps scheme", func(t *testing.T) {
		path := "file:" + filepath.Join(t.TempDir(), "gateway.db")
		dsn, err := buildLibsqlDSN(config.StoreConfig{Path: path})
		require.NoError(t, err)
		require.Equal(t, path, dsn)
	})

	t.Run("remote url wins over path", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{
			URL:  "libsql://gateway.example.turso.io",
			Path: "ignored.db",
		})
		require.NoError(t, err)
		require.Equal(t, "libsql://gateway.example.turso.io", dsn)
	})

	t.Run("auth token appended to url", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{
			URL:       "libsql://gateway.example.turso.io",
			AuthToken: "secret-token",
		})
		require.NoError(t, err)
		require.Contains(t, dsn, "authToken=secret-token")
	})

	t.Run("existing auth token preserved", func(t *testing.T) {
		dsn, err := buildLibsqlDSN(config.StoreConfig{
			URL:       "libsql://gateway.example.turso.io?authToken=original",
			AuthToken: "other",
		})
		require.NoError(t, err)
		require.Contains(t, dsn, "authToken=original")
		require.NotContains(t, dsn, "other")
	})

	t.Run("empty config rejected", func(t *testing.T) {
		_, err := buildLibsqlDSN(config.StoreConfig{})
		require.Error(t, err)
	})
}
