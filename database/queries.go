package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries provides table-aware database operations.
type Queries struct {
	db        DBTX
	tableName string
}

// NewQueries creates a new Queries instance with the given table name.
func NewQueries(db DBTX, tableName string) *Queries {
	return &Queries{
		db:        db,
		tableName: tableName,
	}
}

var (
	getEntrySQL = `
SELECT entry_key, entry_value
FROM %s_entries
WHERE entry_key = $1;`

	listEntriesSQL = `
SELECT entry_key, entry_value
FROM %s_entries
ORDER BY entry_key ASC;`

	setEntrySQL = `
INSERT INTO %s_entries (entry_key, entry_value)
VALUES ($1, $2)
ON CONFLICT (entry_key)
DO UPDATE SET
    entry_value = EXCLUDED.entry_value;`

	deleteEntrySQL = `
DELETE FROM %s_entries
WHERE entry_key = $1;`
)

// GetEntry retrieves a single entry by key. It returns nil, nil when the key is absent.
func (q *Queries) GetEntry(ctx context.Context, key string) (*EntryRecord, error) {
	var (
		query = fmt.Sprintf(getEntrySQL, q.tableName)
		entry EntryRecord
		err   = q.db.QueryRowContext(ctx, query, key).Scan(&entry.Key, &entry.Value)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return &entry, nil
}

// ListEntries returns every entry, ordered by key.
func (q *Queries) ListEntries(ctx context.Context) ([]*EntryRecord, error) {
	var (
		query     = fmt.Sprintf(listEntriesSQL, q.tableName)
		rows, err = q.db.QueryContext(ctx, query)
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*EntryRecord
	for rows.Next() {
		var entry EntryRecord
		if err := rows.Scan(&entry.Key, &entry.Value); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// SetEntry inserts or updates an entry.
func (q *Queries) SetEntry(ctx context.Context, entry *EntryRecord) error {
	var query = fmt.Sprintf(setEntrySQL, q.tableName)
	_, err := q.db.ExecContext(ctx, query, entry.Key, entry.Value)
	if err != nil {
		return fmt.Errorf("failed to set entry: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry by key. Deleting a missing key is not an error.
func (q *Queries) DeleteEntry(ctx context.Context, key string) error {
	var query = fmt.Sprintf(deleteEntrySQL, q.tableName)
	_, err := q.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}
