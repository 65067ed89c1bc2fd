package main

import (
	"context"
	"fmt"
	"os"
	"time"

	dhtring "go-dhtring"
	"go-dhtring/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath  string
	backend     string
	dsn         string
	sqliteDir   string
	tablePrefix string
	hashName    string
	timeout     time.Duration
	nodesFlag   string
	logLevel    string
)

func main() {
	var defaults = config.Default()

	var rootCmd = &cobra.Command{
		Use:   "dhtctl",
		Short: "Operate a replicated consistent hashing ring",
		Long: `Dhtctl places keys on a ring of storage nodes with a replication factor of two.
Nodes are memcached servers, SQL databases or in-process stores. Adding or
removing a node moves only the keys whose owners change.`,
		SilenceUsage: true,
		RunE:         runShell,
	}

	var flags = rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML cluster file")
	flags.StringVar(&backend, "backend", defaults.Backend, "Node backend: memory, memcache, postgres or sqlite")
	flags.StringVar(&dsn, "dsn", defaults.DSN, "PostgreSQL URL template, {host} and {port} are replaced per node")
	flags.StringVar(&sqliteDir, "sqlite-dir", defaults.SQLiteDir, "Directory holding one SQLite file per node")
	flags.StringVar(&tablePrefix, "table-prefix", defaults.TablePrefix, "Table name prefix for SQL backends")
	flags.StringVar(&hashName, "hash", defaults.Hash, "Ring hash: murmur3 or xxh3")
	flags.DurationVar(&timeout, "timeout", defaults.Timeout, "Timeout for every backing store call")
	flags.StringVar(&nodesFlag, "nodes", "", "Initial nodes as name=host:port,...")
	flags.StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level: debug, info, warn or error")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Interactive put/get shell (default)",
			RunE:  runShell,
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Live view of the ring with health checks",
			RunE:  runWatch,
		},
		newDemoCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, then applies explicitly set flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg = config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var flags = cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("dsn") {
		cfg.DSN = dsn
	}
	if flags.Changed("sqlite-dir") {
		cfg.SQLiteDir = sqliteDir
	}
	if flags.Changed("table-prefix") {
		cfg.TablePrefix = tablePrefix
	}
	if flags.Changed("hash") {
		cfg.Hash = hashName
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("nodes") {
		nodes, err := config.ParseNodes(nodesFlag)
		if err != nil {
			return nil, err
		}
		cfg.Nodes = nodes
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startService builds the service for cfg and joins the configured nodes.
func startService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dhtring.Service, error) {
	connector, err := newConnector(cfg)
	if err != nil {
		return nil, err
	}

	hash, err := dhtring.HashByName(cfg.Hash)
	if err != nil {
		return nil, err
	}

	var service = dhtring.NewService(
		connector,
		dhtring.WithHashFunc(hash),
		dhtring.WithTimeout(cfg.Timeout),
		dhtring.WithLogger(newSlogLogger(logger)),
	)

	specs, err := cfg.NodeSpecs()
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		logger.Info("bootstrapping ring", zap.Int("nodes", len(specs)), zap.String("backend", cfg.Backend))
		if err := service.Bootstrap(ctx, specs); err != nil {
			return nil, fmt.Errorf("failed to bootstrap ring: %w", err)
		}
	}

	return service, nil
}
