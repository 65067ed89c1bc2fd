// Package config loads cluster definitions for dhtctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	dhtring "go-dhtring"

	"gopkg.in/yaml.v3"
)

// Backends a cluster can run on.
const (
	BackendMemory   = "memory"
	BackendMemcache = "memcache"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Node is a ring member as written in a config file or flag.
type Node struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Config describes the backend and the initial members of a ring.
type Config struct {
	Backend     string        `yaml:"backend"`
	DSN         string        `yaml:"dsn,omitempty"`
	SQLiteDir   string        `yaml:"sqliteDir,omitempty"`
	TablePrefix string        `yaml:"tablePrefix,omitempty"`
	Hash        string        `yaml:"hash,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	LogLevel    string        `yaml:"logLevel,omitempty"`
	Nodes       []Node        `yaml:"nodes,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend:     BackendMemcache,
		SQLiteDir:   ".",
		TablePrefix: "dhtring",
		Hash:        "murmur3",
		Timeout:     2 * time.Second,
		LogLevel:    "info",
	}
}

// Load reads a YAML config from path on top of Default.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var (
		cfg     = Default()
		decoder = yaml.NewDecoder(file)
	)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the backend settings and node list.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendMemcache:
	case BackendPostgres:
		if c.DSN == "" {
			return errors.New("postgres backend requires a dsn")
		}
	case BackendSQLite:
		if c.SQLiteDir == "" {
			return errors.New("sqlite backend requires a sqliteDir")
		}
	default:
		return fmt.Errorf("unsupported backend %q: valid backends are memory, memcache, postgres or sqlite", c.Backend)
	}

	if _, err := dhtring.HashByName(c.Hash); err != nil {
		return err
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	if _, err := c.NodeSpecs(); err != nil {
		return err
	}
	return nil
}

// NodeSpecs converts the configured nodes into specs for Service.Bootstrap.
func (c *Config) NodeSpecs() ([]dhtring.NodeSpec, error) {
	var specs = make([]dhtring.NodeSpec, 0, len(c.Nodes))
	for _, node := range c.Nodes {
		if err := dhtring.ValidateNodeName(node.Name); err != nil {
			return nil, err
		}
		addr, err := dhtring.ParseAddress(node.Address)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.Name, err)
		}
		specs = append(specs, dhtring.NodeSpec{Name: node.Name, Address: addr})
	}
	return specs, nil
}

// ParseNodes parses a comma-separated list of nodes in the format:
// "m1=localhost:11211,m2=localhost:11212"
func ParseNodes(nodesStr string) ([]Node, error) {
	if nodesStr == "" {
		return []Node{}, nil
	}

	var (
		parts = strings.Split(nodesStr, ",")
		nodes = make([]Node, 0, len(parts))
	)

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var kv = strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid node format: %s (expected name=host:port)", part)
		}

		var (
			name = strings.TrimSpace(kv[0])
			addr = strings.TrimSpace(kv[1])
		)
		if name == "" || addr == "" {
			return nil, fmt.Errorf("node name and address cannot be empty: %s", part)
		}

		nodes = append(nodes, Node{Name: name, Address: addr})
	}

	return nodes, nil
}
