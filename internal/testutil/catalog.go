package testutil

import (
	"testing"

	"strongbox/internal/catalog"
	"strongbox/internal/catalog/migrations"
	"strongbox/internal/engine"
)

// NewTestCatalog creates a new in-memory SQLite catalog with schema applied.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T) engine.Catalog {
	t.Helper()

	sqlDB, err := catalog.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	if err := migrations.Up(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	cat := catalog.NewSQLiteCatalogFromDB(sqlDB)

	t.Cleanup(func() {
		cat.Close()
	})

	return cat
}
