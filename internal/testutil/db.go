package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/notegraph/internal/config"
	"github.com/xxxsen/notegraph/internal/db"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// OpenTestDB connects to the postgres named by TEST_DB_HOST and applies the
// migrations. Tests are skipped when the variable is unset. Cleanup empties
// every table.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     envOr("TEST_DB_USER", "notegraph"),
		Password: envOr("TEST_DB_PASSWORD", "notegraph_pass"),
		DBName:   envOr("TEST_DB_NAME", "notegraph_test"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_, _ = conn.Exec("TRUNCATE notes, note_embeddings, embedding_cache, embedding_attempts")
		_ = conn.Close()
	}
}
