package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/core/store"
)

// openStore loads the configuration and opens a migrated store for CLI
// commands. The caller owns the returned store and must Close it.
func openStore(ctx context.Context) (*store.Store, *config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}

	return s, cfg, nil
}
