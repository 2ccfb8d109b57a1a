package commands

import (
	"context"
	"fmt"

	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/logger"
	postgresstore "github.com/wolfeidau/orgmembers/internal/store/postgres"
)

type MigrateCmd struct {
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Dev)
	zlog.Logger = log

	pool, err := m.PostgresStore.open(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	defer pool.Close()

	if err := postgresstore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
