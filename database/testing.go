package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// PostgresURLEnv names the environment variable holding the PostgreSQL URL used by tests.
const PostgresURLEnv = "DHTRING_TEST_POSTGRES_URL"

// TestingT is an interface for testing compatibility.
type TestingT interface {
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	FailNow()
	Cleanup(func())
	TempDir() string
}

// SetupTestDatabase creates a PostgreSQL test database with an isolated schema.
// The test is skipped when PostgresURLEnv is not set.
func SetupTestDatabase(t TestingT) *sql.DB {
	var connURL = os.Getenv(PostgresURLEnv)
	if connURL == "" {
		t.Skipf("%s not set, skipping PostgreSQL test", PostgresURLEnv)
		return nil
	}

	var schema = fmt.Sprintf("test_%s", uuid.New().String()[0:8])

	// First, connect to create the schema
	conn, err := sql.Open(DriverPostgres, connURL)
	if err != nil {
		t.Logf("failed to connect to database. Is your local database running?: %v", err)
		t.FailNow()
	}

	_, err = conn.Exec("CREATE SCHEMA IF NOT EXISTS " + schema)
	if err != nil {
		t.Logf("Failed to create schema %s", schema)
		t.Logf("Error: %s", err)
		t.FailNow()
	}

	conn.Close()

	// Reconnect with the schema on the search path
	parsed, err := url.Parse(connURL)
	if err != nil {
		t.Logf("invalid %s: %v", PostgresURLEnv, err)
		t.FailNow()
	}
	var query = parsed.Query()
	query.Set("search_path", schema)
	parsed.RawQuery = query.Encode()

	conn, err = sql.Open(DriverPostgres, parsed.String())
	if err != nil {
		t.Logf("failed to connect to database with schema: %v", err)
		t.FailNow()
	}

	t.Cleanup(func() {
		_, _ = conn.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE")
		_ = conn.Close()
	})

	return conn
}

// SetupSQLiteDatabase opens a fresh SQLite database in a temporary directory.
func SetupSQLiteDatabase(t TestingT) *sql.DB {
	var path = filepath.Join(t.TempDir(), "test.db")

	conn, err := sql.Open(DriverSQLite, "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Logf("failed to open sqlite database: %v", err)
		t.FailNow()
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}
