package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	dhtring "go-dhtring"

	"github.com/eiannone/keyboard"
	"github.com/spf13/cobra"
)

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
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

	// Set up periodic status updates
	var ticker = time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var sigCh = make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	defer keyboard.Close()

	var keyCh = make(chan rune)
	go func() {
		for {
			char, _, err := keyboard.GetKey()
			if err != nil {
				return
			}
			keyCh <- char
		}
	}()

	var unhealthy = service.Health(ctx)
	printWatch(os.Stdout, service, unhealthy)

	for {
		select {
		case <-ticker.C:
			printWatch(os.Stdout, service, unhealthy)
		case key := <-keyCh:
			switch key {
			case 'h', 'H':
				unhealthy = service.Health(ctx)
				printWatch(os.Stdout, service, unhealthy)
			case 'q', 'Q':
				fmt.Printf("\n\nShutting down...\n")
				return nil
			}
		case sig := <-sigCh:
			fmt.Printf("\n\nReceived signal %v, shutting down...\n", sig)
			return nil
		}
	}
}

func printWatch(out io.Writer, service *dhtring.Service, unhealthy map[string]error) {
	fmt.Fprint(out, "\033[2J\033[H") // Clear screen and move cursor to top
	fmt.Fprintln(out, service.String())

	var nodes = service.Nodes()
	renderNodes(out, nodes, unhealthy)
	if balance, err := service.Balance(); err == nil {
		renderBalance(out, balance)
	}

	fmt.Fprintf(out, "\nControls:\n")
	fmt.Fprintf(out, "  [h] Run health check\n")
	fmt.Fprintf(out, "  [q] Quit\n")
}
