package recordstore

import (
	"fmt"

	"github.com/transplantflow/platform/pkg/common/config"
	"github.com/transplantflow/platform/pkg/common/database"
	"github.com/transplantflow/platform/pkg/common/logger"
)

// Open builds the backend named by cfg.StoreBackend.
func Open(cfg *config.Config) (Store, error) {
	logger.WithField("backend", cfg.StoreBackend).Info("Opening record store")
	switch cfg.StoreBackend {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		return OpenSQLite(cfg.SQLitePath)
	case "redis":
		client, err := database.GetRedis(cfg)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.RedisPrefix), nil
	case "postgres":
		db, err := database.GetPostgres(cfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgres(db)
		if err := store.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate records table: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
