package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/config"
)

// Wire initializes all dependencies and returns a fully assembled
// container. The context bounds external client setup; the caller owns the
// container and must Close it on shutdown.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeServices(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Info().Msg("Dependency wiring complete")
	return container, nil
}
