package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	dhtring "go-dhtring"

	"github.com/spf13/cobra"
)

func runShell(cmd *cobra.Command, args []string) error {
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

	headColor.Fprintf(os.Stdout, "dhtctl: %d nodes on %s\n", len(service.Nodes()), cfg.Backend)
	fmt.Fprintf(os.Stdout, "Type 'help' for available commands.\n")

	return newShell(service, os.Stdout).run(ctx, os.Stdin)
}

type shell struct {
	service *dhtring.Service
	out     io.Writer
}

func newShell(service *dhtring.Service, out io.Writer) *shell {
	return &shell{service: service, out: out}
}

// run reads commands from in until exit or EOF.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	var scanner = bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if quit := s.exec(ctx, scanner.Text()); quit {
			return nil
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	var fields = strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var command, args = strings.ToLower(fields[0]), fields[1:]
	switch command {
	case "put", "set":
		if len(args) < 2 {
			s.usage("put <key> <value>")
			return false
		}
		s.put(ctx, args[0], strings.Join(args[1:], " "))
	case "get":
		if len(args) != 1 {
			s.usage("get <key>")
			return false
		}
		s.get(ctx, args[0])
	case "add":
		s.add(ctx, args)
	case "remove", "rm":
		if len(args) != 1 {
			s.usage("remove <name>")
			return false
		}
		s.remove(ctx, args[0])
	case "nodes":
		renderNodes(s.out, s.service.Nodes(), nil)
	case "ring":
		fmt.Fprint(s.out, s.service.String())
	case "balance":
		balance, err := s.service.Balance()
		if err != nil {
			s.fail(err)
			return false
		}
		renderBalance(s.out, balance)
	case "health":
		renderHealth(s.out, s.service.Nodes(), s.service.Health(ctx))
	case "help":
		s.help()
	case "exit", "quit":
		fmt.Fprintln(s.out, "Exiting the DHT cluster.")
		return true
	default:
		warnColor.Fprintf(s.out, "Invalid command: %s. Type 'help' for available commands.\n", command)
	}
	return false
}

func (s *shell) put(ctx context.Context, key, value string) {
	var err = s.service.Put(ctx, key, value)

	var partial *dhtring.PartialWriteError
	switch {
	case errors.As(err, &partial):
		warnColor.Fprintf(s.out, "Key: %s stored on %s, replica %s failed: %v\n", key, partial.Primary, partial.Replica, partial.Err)
	case err != nil:
		s.fail(err)
	default:
		okColor.Fprintf(s.out, "Key: %s, Value: %s has been set\n", key, value)
	}
}

func (s *shell) get(ctx context.Context, key string) {
	value, found, err := s.service.Get(ctx, key)
	switch {
	case err != nil:
		s.fail(err)
	case !found:
		fmt.Fprintf(s.out, "Key: %s does not exist in the DHT\n", key)
	default:
		fmt.Fprintf(s.out, "Key: %s, Value: %s\n", key, value)
	}
}

// add accepts "add <name> <host:port>" or "add <host:port>" with a generated name.
func (s *shell) add(ctx context.Context, args []string) {
	var name, rawAddr string
	switch len(args) {
	case 1:
		name, rawAddr = dhtring.GenerateNodeName(), args[0]
	case 2:
		name, rawAddr = args[0], args[1]
	default:
		s.usage("add [name] <host:port>")
		return
	}

	addr, err := dhtring.ParseAddress(rawAddr)
	if err != nil {
		s.fail(err)
		return
	}

	if err := s.service.AddNode(ctx, name, addr); err != nil {
		s.fail(err)
		return
	}
	okColor.Fprintf(s.out, "Node %s has been added to the DHT\n", name)
}

func (s *shell) remove(ctx context.Context, name string) {
	if err := s.service.RemoveNode(ctx, name); err != nil {
		s.fail(err)
		return
	}
	okColor.Fprintf(s.out, "Node %s has been removed from the DHT\n", name)
}

func (s *shell) help() {
	fmt.Fprintln(s.out, "  Available commands:")
	fmt.Fprintln(s.out, "  put <key> <value>       put a key-value pair into the DHT")
	fmt.Fprintln(s.out, "  get <key>               get the value of a key from the DHT")
	fmt.Fprintln(s.out, "  add [name] <host:port>  add a new node to the DHT")
	fmt.Fprintln(s.out, "  remove <name>           remove a node from the DHT")
	fmt.Fprintln(s.out, "  nodes                   list nodes in ring order")
	fmt.Fprintln(s.out, "  ring                    show ring topology")
	fmt.Fprintln(s.out, "  balance                 show key distribution")
	fmt.Fprintln(s.out, "  health                  check every node's store")
	fmt.Fprintln(s.out, "  exit                    exit the interactive shell")
	fmt.Fprintln(s.out, "  help                    display available commands")
}

func (s *shell) usage(text string) {
	warnColor.Fprintf(s.out, "usage: %s\n", text)
}

func (s *shell) fail(err error) {
	errColor.Fprintf(s.out, "error: %v\n", err)
}
