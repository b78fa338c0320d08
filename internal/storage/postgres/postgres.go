// Package postgres implements the storage.Backend interface on a Postgres
// server. Writes go through the GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/internal/database"
	gormstorage "github.com/RepairMe/extension/internal/storage/gorm"
)

// Backend connects to Postgres on Init and delegates to the GORM backend.
type Backend struct {
	*gormstorage.Backend
	cfg     config.DBConfig
	log     *slog.Logger
	version string
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(cfg config.DBConfig, log *slog.Logger, version string) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{cfg: cfg, log: log.With("component", "postgres"), version: version}
}

// Init connects to the server and initializes the GORM backend.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg, b.log)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:               db,
		Logger:           b.log,
		ExtensionVersion: b.version,
	})
	return b.Backend.Init()
}

// Close closes the GORM backend and the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
