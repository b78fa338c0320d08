package storage

import (
	"fmt"
	"log/slog"

	"github.com/RepairMe/extension/internal/config"
	"github.com/RepairMe/extension/internal/storage/memory"
	pgstorage "github.com/RepairMe/extension/internal/storage/postgres"
	sqlitestorage "github.com/RepairMe/extension/internal/storage/sqlite"
	wsstorage "github.com/RepairMe/extension/internal/storage/websocket"
)

// Backend type names accepted in storage.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
)

// NewBackend creates a storage backend based on configuration. The backend
// is not initialized.
func NewBackend(cfg config.StorageConfig, db config.DBConfig, logger *slog.Logger, version string) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case TypePostgres:
		return pgstorage.New(db, logger, version), nil
	case TypeSQLite:
		backend, err := sqlitestorage.New(cfg.SQLite, logger, version)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite backend: %w", err)
		}
		return backend, nil
	case TypeWebSocket:
		return wsstorage.New(wsstorage.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}, logger), nil
	case TypeMemory, "":
		return memory.New(cfg.Memory, version), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
