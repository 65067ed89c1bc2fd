package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"

	dhtring "go-dhtring"
	"go-dhtring/config"

	"github.com/spf13/cobra"
)

var demoKeys int

func newDemoCommand() *cobra.Command {
	var demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Load keys, fail m1, add m5 and show that reads still succeed",
		RunE:  runDemo,
	}
	demoCmd.Flags().IntVar(&demoKeys, "keys", 100, "Number of keys to load")
	return demoCmd
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Nodes) == 0 {
		cfg.Nodes = []config.Node{
			{Name: "m1", Address: "localhost:11211"},
			{Name: "m2", Address: "localhost:11212"},
			{Name: "m3", Address: "localhost:11213"},
			{Name: "m4", Address: "localhost:11214"},
		}
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var ctx = cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	service, err := startService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer service.Close()

	return runDemoScenario(ctx, service, os.Stdout, demoKeys, cfg.Nodes[0].Name, dhtring.Address{Host: "localhost", Port: 11215})
}

// runDemoScenario loads keys, removes the node called victim, adds m5 at extra
// and reads a sample of keys after each step.
func runDemoScenario(ctx context.Context, service *dhtring.Service, out io.Writer, keys int, victim string, extra dhtring.Address) error {
	headColor.Fprintf(out, "Loading %d keys\n", keys)
	for i := 0; i < keys; i++ {
		var key = strconv.Itoa(i)
		if err := service.Put(ctx, key, fmt.Sprintf("value-%d", i)); err != nil {
			return err
		}
	}

	var sample = rand.Perm(keys)
	if len(sample) > 10 {
		sample = sample[:10]
	}

	var readSample = func() error {
		for _, i := range sample {
			var key = strconv.Itoa(i)
			value, found, err := service.Get(ctx, key)
			if err != nil {
				return err
			}
			if !found {
				errColor.Fprintf(out, "Key: %s does not exist in the DHT\n", key)
				continue
			}
			fmt.Fprintf(out, "Key: %s, Value: %s\n", key, value)
		}
		renderNodes(out, service.Nodes(), nil)
		return nil
	}

	if err := readSample(); err != nil {
		return err
	}

	headColor.Fprintf(out, "\nRemoving %s\n", victim)
	if err := service.RemoveNode(ctx, victim); err != nil {
		return err
	}
	if err := readSample(); err != nil {
		return err
	}

	headColor.Fprintf(out, "\nAdding m5 at %s\n", extra)
	if err := service.AddNode(ctx, "m5", extra); err != nil {
		return err
	}
	return readSample()
}
