package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"strongbox/internal/config"
	"strongbox/internal/engine"
)

// NewCatalogFromConfig creates a Catalog implementation based on the database
// config type. The schema is migrated to the latest version before the
// catalog is returned.
func NewCatalogFromConfig(cfg config.DatabaseConfig) (engine.Catalog, error) {
	var (
		cat *SQLiteCatalog
		err error
	)
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		cat, err = NewSQLiteCatalog(filepath.Join(cfg.DataDir, "catalog.db"))
	case "memory":
		cat, err = NewSQLiteCatalog(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := cat.Migrate(); err != nil {
		cat.Close()
		return nil, fmt.Errorf("migrating catalog schema: %w", err)
	}
	return cat, nil
}
