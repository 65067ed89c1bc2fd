package database

import (
	"database/sql"
	"fmt"
	"regexp"
)

var validTableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,47}$`)

var (
	createEntriesTableSQL = `
CREATE TABLE IF NOT EXISTS %s_entries (
    entry_key     VARCHAR   NOT NULL,
    entry_value   TEXT      NOT NULL,

    PRIMARY KEY (entry_key)
);`
)

// ValidateTableName checks if name is safe to interpolate into SQL as a table prefix.
func ValidateTableName(name string) error {
	if !validTableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q: must start with a letter or underscore and contain only letters, digits or underscores", name)
	}
	return nil
}

// Migrate creates the entries table. The statement is valid on both PostgreSQL and SQLite.
func Migrate(db *sql.DB, tableName string) error {
	if err := ValidateTableName(tableName); err != nil {
		return err
	}

	if err := createEntriesTable(db, tableName); err != nil {
		return err
	}

	return nil
}

func createEntriesTable(db *sql.DB, tableName string) error {
	var query = fmt.Sprintf(createEntriesTableSQL, tableName)
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create entries table: %w", err)
	}
	return nil
}
