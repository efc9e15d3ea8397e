package database

import (
	"fmt"
	"strconv"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/rs/zerolog/log"

	appconfig "github.com/GTDGit/gtd_catalog/internal/config"
)

// Embedded is a local PostgreSQL process started for development and
// integration tests.
type Embedded struct {
	pg *embeddedpostgres.EmbeddedPostgres
}

// StartEmbedded launches PostgreSQL on cfg.Port with cfg's credentials and
// data under cfg.EmbeddedDataPath. Callers must Stop it on shutdown.
func StartEmbedded(cfg *appconfig.DatabaseConfig) (*Embedded, error) {
	port, err := strconv.ParseUint(cfg.Port, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid embedded database port %q: %w", cfg.Port, err)
	}

	pgCfg := embeddedpostgres.DefaultConfig().
		Port(uint32(port)).
		Database(cfg.Name).
		Username(cfg.User).
		Password(cfg.Password)
	if cfg.EmbeddedDataPath != "" {
		pgCfg = pgCfg.DataPath(cfg.EmbeddedDataPath)
	}

	pg := embeddedpostgres.NewDatabase(pgCfg)
	if err := pg.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded database: %w", err)
	}
	log.Info().Uint64("port", port).Msg("embedded PostgreSQL started")
	return &Embedded{pg: pg}, nil
}

// Stop shuts the process down.
func (e *Embedded) Stop() error {
	if e == nil || e.pg == nil {
		return nil
	}
	return e.pg.Stop()
}
