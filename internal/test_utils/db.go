package test_utils

import (
	"database/sql"
	"testing"

	"github.com/RitoIssei/bot-mng-ns/internal/database"
)

// SetupStagingDB creates a new in-memory SQLite database with the staging schema applied.
// Each database is completely isolated from others.
func SetupStagingDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.OpenStaging(":memory:")
	if err != nil {
		t.Fatalf("Failed to open staging database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
