package main

import (
	"fmt"

	dhtring "go-dhtring"
	"go-dhtring/config"
	"go-dhtring/database"
	"go-dhtring/memcachestore"
)

func newConnector(cfg *config.Config) (dhtring.Connector, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return dhtring.NewMemoryConnector(), nil
	case config.BackendMemcache:
		return memcachestore.NewConnector(cfg.Timeout), nil
	case config.BackendPostgres:
		return database.NewPostgresConnector(cfg.DSN, cfg.TablePrefix)
	case config.BackendSQLite:
		return database.NewSQLiteConnector(cfg.SQLiteDir, cfg.TablePrefix)
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}
