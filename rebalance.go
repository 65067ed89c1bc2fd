package dhtring

import (
	"context"
	"fmt"
	"sort"
)

// migration is one key to be re-placed after a topology change.
type migration struct {
	Key     string
	Value   string
	Holders []*Node // Nodes whose shadow map held the key before the change
}

// collectMigrations snapshots the shadow maps of candidates before the ring
// is mutated. The value migrated for a key is the one held by its pre-change
// primary, whether or not that node is a candidate; a replica that missed a
// write never overrides it. Must be called before the topology change, with s.mu held.
func (s *Service) collectMigrations(candidates []*Node) []migration {
	var (
		byKey = make(map[string]*migration)
		keys  []string
	)

	for _, node := range candidates {
		for key, value := range node.snapshot() {
			var m, seen = byKey[key]
			if !seen {
				m = &migration{Key: key, Value: value}
				byKey[key] = m
				keys = append(keys, key)
			}
			m.Holders = append(m.Holders, node)
		}
	}

	sort.Strings(keys)

	var migrations = make([]migration, 0, len(keys))
	for _, key := range keys {
		var m = byKey[key]
		if primary, err := s.ring.Locate(key); err == nil {
			if value, ok := primary.LocalGet(key); ok {
				m.Value = value
			}
		}
		migrations = append(migrations, *m)
	}
	return migrations
}

// placement is a shadow map entry written by applyMigrations, with what it replaced.
type placement struct {
	node     *Node
	key      string
	previous string
	existed  bool
}

// rebalanceResult counts the work done by applyMigrations.
type rebalanceResult struct {
	Copied  int
	Dropped int
	Written []placement
}

// applyMigrations puts every migrated key on its owners under the current
// topology, then drops it from the shadow maps of holders that no longer own it.
// Nothing is dropped unless every copy succeeded. Must be called with s.mu held.
func (s *Service) applyMigrations(ctx context.Context, migrations []migration) (rebalanceResult, error) {
	type drop struct {
		node *Node
		key  string
	}

	var (
		result rebalanceResult
		drops  []drop
	)

	for _, m := range migrations {
		owners, err := s.ring.Owners(m.Key)
		if err != nil {
			return result, err
		}

		for _, owner := range owners {
			var previous, existed = owner.LocalGet(m.Key)
			if existed && previous == m.Value {
				continue
			}
			if err := owner.write(ctx, m.Key, m.Value); err != nil {
				return result, fmt.Errorf("failed to migrate %q to %s: %w", m.Key, owner.name, err)
			}
			result.Copied++
			result.Written = append(result.Written, placement{node: owner, key: m.Key, previous: previous, existed: existed})
		}

		for _, holder := range m.Holders {
			if !containsNode(owners, holder) {
				drops = append(drops, drop{node: holder, key: m.Key})
			}
		}
	}

	for _, d := range drops {
		d.node.LocalDelete(d.key)
	}
	result.Dropped = len(drops)

	return result, nil
}

// undoMigrations reverts the shadow map entries written by an aborted
// applyMigrations once the previous topology is restored. Owners keep the
// value they were sent. Must be called with s.mu held.
func (s *Service) undoMigrations(written []placement) {
	for i := len(written) - 1; i >= 0; i-- {
		var w = written[i]
		if owners, err := s.ring.Owners(w.key); err == nil && containsNode(owners, w.node) {
			continue
		}
		if w.existed {
			w.node.LocalSet(w.key, w.previous)
		} else {
			w.node.LocalDelete(w.key)
		}
	}
}

// uniqueNodes drops nils and repeats, keeping order.
func uniqueNodes(nodes ...*Node) []*Node {
	var unique = make([]*Node, 0, len(nodes))
	for _, node := range nodes {
		if node != nil && !containsNode(unique, node) {
			unique = append(unique, node)
		}
	}
	return unique
}

func containsNode(nodes []*Node, target *Node) bool {
	for _, node := range nodes {
		if node == target {
			return true
		}
	}
	return false
}
