package app

import (
	"context"
	"errors"
	"fmt"

	"agendaviva/internal/config"
	"agendaviva/internal/repo"
)

// ResolveConfig loads the portal configuration from the database, seeding
// the default when none exists yet.
func ResolveConfig(ctx context.Context, r repo.Repo, portalName string) (*config.Config, error) {
	cfg, err := r.GetPortalConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if portalName == "" {
		portalName = "agendaviva"
	}
	seed := config.Default(portalName)
	if err := r.UpsertPortalConfig(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed portal config: %w", err)
	}
	return seed, nil
}
