package sqlstore

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// SkipIfNoPostgres skips the test unless the TEST_POSTGRES_DSN
// environment variable is set. This lets the PostgreSQL tests run in CI
// where a database is provisioned and skip on developer machines that
// only have SQLite.
func SkipIfNoPostgres(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping test: TEST_POSTGRES_DSN environment variable not set (database not available)")
	}
	return dsn
}

// RequirePostgres connects to the test PostgreSQL database or skips the
// test when it is not reachable.
func RequirePostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := SkipIfNoPostgres(t)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}
	return db
}
