package dhtring

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentConnects bounds the dials issued by Bootstrap.
const maxConcurrentConnects = 8

// AddNode connects to the store at addr and joins it to the ring as name.
// Keys whose primary or replica moves to the new node are copied to it before
// AddNode returns. On failure the ring is left as it was.
func (s *Service) AddNode(ctx context.Context, name string, addr Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateJoin(name, addr, nil); err != nil {
		return err
	}

	node, err := connectNode(ctx, s.connector, name, addr, s.options)
	if err != nil {
		return err
	}

	if err := s.join(ctx, node); err != nil {
		_ = node.Close()
		return err
	}

	return nil
}

// RemoveNode takes name out of the ring after re-placing every key it held
// on the remaining nodes. The data is read from shadow maps, so the node's
// store does not need to be reachable.
func (s *Service) RemoveNode(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var node, ok = s.ring.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}

	var (
		predecessor, _ = s.ring.Predecessor(node)
		successor, _   = s.ring.Successor(node)
		migrations     = s.collectMigrations(uniqueNodes(node, predecessor, successor))
	)

	if err := s.ring.Remove(node); err != nil {
		return fmt.Errorf("failed to remove node %s: %w", name, err)
	}

	if s.ring.Len() == 0 {
		if len(migrations) > 0 {
			s.options.logger.Warn("removed last node, its keys are discarded",
				"node", name,
				"keys", len(migrations))
		}
		s.closeNode(node)
		return nil
	}

	result, err := s.applyMigrations(ctx, migrations)
	if err != nil {
		if addErr := s.ring.Add(node); addErr != nil {
			s.options.logger.Error("failed to restore node after aborted removal", "node", name, "error", addErr)
		}
		s.undoMigrations(result.Written)
		return fmt.Errorf("failed to rebalance before removing %s: %w", name, err)
	}

	s.closeNode(node)

	s.options.logger.Info("node removed",
		"node", name,
		"nodes", s.ring.Len(),
		"copied", result.Copied,
		"dropped", result.Dropped)

	return nil
}

// Bootstrap connects to all nodes concurrently, then joins them one by one.
// If any connection fails no node is added.
func (s *Service) Bootstrap(ctx context.Context, specs []NodeSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, spec := range specs {
		if err := s.validateJoin(spec.Name, spec.Address, specs[:i]); err != nil {
			return err
		}
	}

	var (
		nodes    = make([]*Node, len(specs))
		g, gctx  = errgroup.WithContext(ctx)
		closeAll = func(nodes []*Node) {
			for _, node := range nodes {
				if node != nil {
					_ = node.Close()
				}
			}
		}
	)
	g.SetLimit(maxConcurrentConnects)

	for i, spec := range specs {
		g.Go(func() error {
			node, err := connectNode(gctx, s.connector, spec.Name, spec.Address, s.options)
			if err != nil {
				return fmt.Errorf("failed to connect node %s: %w", spec.Name, err)
			}
			nodes[i] = node
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		closeAll(nodes)
		return err
	}

	for i, node := range nodes {
		if err := s.join(ctx, node); err != nil {
			closeAll(nodes[i:])
			return err
		}
	}

	return nil
}

// join adds a connected node to the ring and rebalances its neighbourhood.
// Must be called with s.mu held.
func (s *Service) join(ctx context.Context, node *Node) error {
	// The node currently owning the arc the new node will take over, and the
	// node holding that arc's replicas.
	var candidates []*Node
	if successor, err := s.ring.Locate(node.name); err == nil {
		var next, _ = s.ring.Successor(successor)
		candidates = uniqueNodes(successor, next)
	}

	var migrations = s.collectMigrations(candidates)

	if err := s.ring.Add(node); err != nil {
		return fmt.Errorf("failed to add node %s: %w", node.name, err)
	}

	result, err := s.applyMigrations(ctx, migrations)
	if err != nil {
		if rmErr := s.ring.Remove(node); rmErr != nil {
			s.options.logger.Error("failed to roll back node after aborted join", "node", node.name, "error", rmErr)
		}
		s.undoMigrations(result.Written)
		return fmt.Errorf("failed to rebalance after adding %s: %w", node.name, err)
	}

	s.options.logger.Info("node added",
		"node", node.name,
		"address", node.addr.String(),
		"nodes", s.ring.Len(),
		"copied", result.Copied,
		"dropped", result.Dropped)

	return nil
}

// validateJoin rejects names, ports and ring positions already used by the
// ring or by pending specs. Nothing is dialed for a request it rejects.
func (s *Service) validateJoin(name string, addr Address, pending []NodeSpec) error {
	if err := ValidateNodeName(name); err != nil {
		return err
	}

	if err := addr.Validate(); err != nil {
		return err
	}

	var pos = s.ring.HashPosition(name)
	for _, node := range s.ring.Nodes() {
		if node.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		if node.addr.Port == addr.Port {
			return fmt.Errorf("%w: %d is used by %s", ErrPortInUse, addr.Port, node.name)
		}
		if existing, _ := s.ring.Position(node.name); existing == pos {
			return fmt.Errorf("%w: %s and %s both hash to %d", ErrPositionCollision, name, node.name, pos)
		}
	}

	for _, spec := range pending {
		if spec.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		if spec.Address.Port == addr.Port {
			return fmt.Errorf("%w: %d is used by %s", ErrPortInUse, addr.Port, spec.Name)
		}
		if s.ring.HashPosition(spec.Name) == pos {
			return fmt.Errorf("%w: %s and %s both hash to %d", ErrPositionCollision, name, spec.Name, pos)
		}
	}

	return nil
}

func (s *Service) closeNode(node *Node) {
	if err := node.Close(); err != nil {
		s.options.logger.Warn("failed to close node", "node", node.name, "error", err)
	}
}
