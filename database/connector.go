package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	dhtring "go-dhtring"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connector opens one SQL-backed store per node address. With PostgreSQL the
// DSN is a template in which {host} and {port} are replaced by the node's
// address; with SQLite every address gets its own file under Dir.
type Connector struct {
	driver string
	dsn    string
	dir    string
	prefix string
}

var _ dhtring.Connector = (*Connector)(nil)

// NewPostgresConnector creates a connector for PostgreSQL-backed nodes.
func NewPostgresConnector(dsnTemplate, tablePrefix string) (*Connector, error) {
	if dsnTemplate == "" {
		return nil, fmt.Errorf("postgres DSN template cannot be empty")
	}
	if err := ValidateTableName(tablePrefix); err != nil {
		return nil, err
	}
	return &Connector{driver: DriverPostgres, dsn: dsnTemplate, prefix: tablePrefix}, nil
}

// NewSQLiteConnector creates a connector storing each node in <dir>/<host>_<port>.db.
func NewSQLiteConnector(dir, tablePrefix string) (*Connector, error) {
	if dir == "" {
		return nil, fmt.Errorf("sqlite directory cannot be empty")
	}
	if err := ValidateTableName(tablePrefix); err != nil {
		return nil, err
	}
	return &Connector{driver: DriverSQLite, dir: dir, prefix: tablePrefix}, nil
}

// Connect opens the database for addr, creating the entries table if needed.
func (c *Connector) Connect(ctx context.Context, addr dhtring.Address) (dhtring.Store, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(c.driver, c.dataSource(addr))
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %v", dhtring.ErrConnection, addr, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w at %s: %v", dhtring.ErrConnection, addr, err)
	}

	var tableName = c.tableName(addr)
	if err := Migrate(db, tableName); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w at %s: %v", dhtring.ErrConnection, addr, err)
	}

	return &Store{db: db, queries: NewQueries(db, tableName)}, nil
}

func (c *Connector) dataSource(addr dhtring.Address) string {
	if c.driver == DriverSQLite {
		var file = fmt.Sprintf("%s_%d.db", sanitizeHost(addr.Host), addr.Port)
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.Join(c.dir, file))
	}
	return ExpandDSN(c.dsn, addr)
}

// tableName keys the table by port, so nodes sharing one database server do not collide.
func (c *Connector) tableName(addr dhtring.Address) string {
	return c.prefix + "_" + strconv.Itoa(addr.Port)
}

// ExpandDSN replaces {host} and {port} in template with addr's parts.
func ExpandDSN(template string, addr dhtring.Address) string {
	return strings.NewReplacer(
		"{host}", addr.Host,
		"{port}", strconv.Itoa(addr.Port),
	).Replace(template)
}

func sanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, host)
}

// Store is a dhtring.Store kept in a single SQL table.
type Store struct {
	db      *sql.DB
	queries *Queries
}

var _ dhtring.Store = (*Store)(nil)

// Get returns dhtring.ErrKeyNotFound when key has no row.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	entry, err := s.queries.GetEntry(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dhtring.ErrStoreUnavailable, err)
	}
	if entry == nil {
		return "", dhtring.ErrKeyNotFound
	}
	return entry.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.queries.SetEntry(ctx, &EntryRecord{Key: key, Value: value}); err != nil {
		return fmt.Errorf("%w: %v", dhtring.ErrStoreUnavailable, err)
	}
	return nil
}

// Entries returns every row of the store, ordered by key.
func (s *Store) Entries(ctx context.Context) ([]*EntryRecord, error) {
	return s.queries.ListEntries(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
