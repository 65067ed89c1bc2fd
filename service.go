package dhtring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/montanaflynn/stats"
)

// Service places keys on the ring with a replication factor of two and keeps
// the placement intact as nodes join and leave.
//
// Put and Get may run concurrently with each other; AddNode, RemoveNode,
// Bootstrap and Close are exclusive.
type Service struct {
	mu        sync.RWMutex
	ring      *Ring
	connector Connector
	options   options
}

// NewService creates a Service with an empty ring. Nodes are reached through connector.
func NewService(connector Connector, opts ...Option) *Service {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		ring:      NewRing(options.hash),
		connector: connector,
		options:   options,
	}
}

// Put writes value to the primary and replica owners of key.
// If only the replica write fails the value stands and a *PartialWriteError is returned.
func (s *Service) Put(ctx context.Context, key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners, err := s.ring.Owners(key)
	if err != nil {
		return err
	}

	var primary = owners[0]
	if err := primary.write(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}

	// Single-node ring: nothing to replicate to
	if len(owners) < 2 {
		return nil
	}

	var replica = owners[1]
	if err := replica.write(ctx, key, value); err != nil {
		s.options.logger.Warn("replica write failed",
			"key", key,
			"primary", primary.name,
			"replica", replica.name,
			"error", err)
		return &PartialWriteError{Key: key, Primary: primary.name, Replica: replica.name, Err: err}
	}

	return nil
}

// Get reads key from its primary owner, falling back to the replica when the
// primary misses or is unreachable. found is false when neither holds the key.
func (s *Service) Get(ctx context.Context, key string) (value string, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners, err := s.ring.Owners(key)
	if err != nil {
		return "", false, err
	}

	var primary = owners[0]
	value, primaryErr := primary.RemoteGet(ctx, key)
	if primaryErr == nil {
		return value, true, nil
	}
	if errors.Is(primaryErr, ErrInvalidKey) {
		return "", false, fmt.Errorf("failed to get %q: %w", key, primaryErr)
	}
	if !errors.Is(primaryErr, ErrKeyNotFound) {
		s.options.logger.Warn("primary read failed, trying replica",
			"key", key,
			"node", primary.name,
			"error", primaryErr)
	}

	if len(owners) < 2 {
		if errors.Is(primaryErr, ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get %q: %w", key, primaryErr)
	}

	var replica = owners[1]
	value, replicaErr := replica.RemoteGet(ctx, key)
	switch {
	case replicaErr == nil:
		return value, true, nil
	case !errors.Is(primaryErr, ErrKeyNotFound):
		// The primary could not answer, so a replica miss does not prove absence
		return "", false, fmt.Errorf("failed to get %q: %w", key, primaryErr)
	case !errors.Is(replicaErr, ErrKeyNotFound):
		s.options.logger.Warn("replica read failed",
			"key", key,
			"node", replica.name,
			"error", replicaErr)
	}

	return "", false, nil
}

// Nodes returns a snapshot of the ring members in ring-position order.
func (s *Service) Nodes() []NodeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes = s.ring.Nodes()
	var infos = make([]NodeInfo, 0, len(nodes))
	for _, node := range nodes {
		var pos, _ = s.ring.Position(node.name)
		infos = append(infos, NodeInfo{
			Name:     node.name,
			Address:  node.addr,
			Position: pos,
			Keys:     node.LocalLen(),
		})
	}
	return infos
}

// Node returns the member called name.
func (s *Service) Node(name string) (*Node, bool) {
	return s.ring.Get(name)
}

// Locate returns the primary owner of key.
func (s *Service) Locate(key string) (*Node, error) {
	return s.ring.Locate(key)
}

// Owners returns the primary and replica owners of key.
func (s *Service) Owners(key string) ([]*Node, error) {
	return s.ring.Owners(key)
}

// Health reads every node's identity marker and reports the nodes whose store
// did not answer. A node missing from the result is healthy.
func (s *Service) Health(ctx context.Context) map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var unhealthy = make(map[string]error)
	for _, node := range s.ring.Nodes() {
		var _, err = node.RemoteGet(ctx, s.options.identityKey)
		if err != nil && !errors.Is(err, ErrKeyNotFound) {
			unhealthy[node.name] = err
		}
	}
	return unhealthy
}

// Balance summarizes how shadow-map entries are spread over the nodes.
type Balance struct {
	Nodes   int
	Entries int
	Min     float64
	Max     float64
	Mean    float64
	StdDev  float64
}

// Balance computes key distribution statistics for the current topology.
func (s *Service) Balance() (Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes = s.ring.Nodes()
	if len(nodes) == 0 {
		return Balance{}, ErrEmptyRing
	}

	var (
		counts  = make(stats.Float64Data, len(nodes))
		entries = 0
	)
	for i, node := range nodes {
		var n = node.LocalLen()
		counts[i] = float64(n)
		entries += n
	}

	var (
		balance = Balance{Nodes: len(nodes), Entries: entries}
		err     error
	)
	if balance.Min, err = counts.Min(); err != nil {
		return Balance{}, fmt.Errorf("failed to compute balance: %w", err)
	}
	if balance.Max, err = counts.Max(); err != nil {
		return Balance{}, fmt.Errorf("failed to compute balance: %w", err)
	}
	if balance.Mean, err = counts.Mean(); err != nil {
		return Balance{}, fmt.Errorf("failed to compute balance: %w", err)
	}
	if balance.StdDev, err = counts.StandardDeviation(); err != nil {
		return Balance{}, fmt.Errorf("failed to compute balance: %w", err)
	}
	return balance, nil
}

// String returns a visual representation of the ring.
func (s *Service) String() string {
	return s.ring.String()
}

// Close disconnects every node and empties the ring.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, node := range s.ring.Nodes() {
		if err := s.ring.Remove(node); err != nil {
			errs = append(errs, err)
		}
		if err := node.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close node %s: %w", node.name, err))
		}
	}
	return errors.Join(errs...)
}
