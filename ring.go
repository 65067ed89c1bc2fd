package dhtring

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Ring is the consistent hashing ring: nodes positioned on the 32-bit hash space.
type Ring struct {
	mu        sync.RWMutex
	hash      HashFunc
	positions []position        // Sorted by Position for successor lookups
	byName    map[string]uint32 // Quick lookup for a node's position
}

// position is a node's place on the ring.
type position struct {
	Position uint32
	Node     *Node
}

// NewRing creates an empty ring. A nil hash falls back to Murmur3.
func NewRing(hash HashFunc) *Ring {
	if hash == nil {
		hash = Murmur3
	}
	return &Ring{
		hash:      hash,
		positions: make([]position, 0),
		byName:    make(map[string]uint32),
	}
}

// Add places node at hash(node.Name()). It does not move any data.
func (r *Ring) Add(node *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[node.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, node.name)
	}

	var pos = r.hash(node.name)
	var idx = sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].Position >= pos
	})
	if idx < len(r.positions) && r.positions[idx].Position == pos {
		return fmt.Errorf("%w: %s and %s both hash to %d", ErrPositionCollision, node.name, r.positions[idx].Node.name, pos)
	}

	// Insert in sorted order
	r.positions = append(r.positions, position{})
	copy(r.positions[idx+1:], r.positions[idx:])
	r.positions[idx] = position{Position: pos, Node: node}
	r.byName[node.name] = pos

	return nil
}

// Remove deletes node from the ring. Its data must already have been migrated.
func (r *Ring) Remove(node *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx, ok = r.indexOf(node.name)
	if !ok || r.positions[idx].Node != node {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, node.name)
	}

	r.positions = append(r.positions[:idx], r.positions[idx+1:]...)
	delete(r.byName, node.name)
	return nil
}

// Locate returns the primary owner of key: the node at the smallest position
// >= hash(key), wrapping to the first node.
func (r *Ring) Locate(key string) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.positions) == 0 {
		return nil, ErrEmptyRing
	}
	return r.positions[r.locateIndex(key)].Node, nil
}

// Owners returns the primary owner of key followed by its replica owner.
// On a single-node ring only the primary is returned.
func (r *Ring) Owners(key string) ([]*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.positions) == 0 {
		return nil, ErrEmptyRing
	}

	var idx = r.locateIndex(key)
	var owners = []*Node{r.positions[idx].Node}
	if len(r.positions) > 1 {
		owners = append(owners, r.positions[(idx+1)%len(r.positions)].Node)
	}
	return owners, nil
}

// Successor returns the node after node in ring-position order, wrapping around.
// On a single-node ring the node is its own successor.
func (r *Ring) Successor(node *Node) (*Node, error) {
	return r.neighbour(node, 1)
}

// Predecessor returns the node before node in ring-position order, wrapping around.
func (r *Ring) Predecessor(node *Node) (*Node, error) {
	return r.neighbour(node, -1)
}

func (r *Ring) neighbour(node *Node, step int) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.positions) == 0 {
		return nil, ErrEmptyRing
	}

	var idx, ok = r.indexOf(node.name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, node.name)
	}

	var n = len(r.positions)
	return r.positions[((idx+step)%n+n)%n].Node, nil
}

// Get returns the member called name.
func (r *Ring) Get(name string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var idx, ok = r.indexOf(name)
	if !ok {
		return nil, false
	}
	return r.positions[idx].Node, true
}

// Position returns the ring position of the member called name.
func (r *Ring) Position(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pos, ok = r.byName[name]
	return pos, ok
}

// HashPosition returns where a node called name would be placed.
func (r *Ring) HashPosition(name string) uint32 {
	return r.hash(name)
}

// Len returns the number of nodes on the ring.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// Nodes returns all members in ring-position order.
func (r *Ring) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var nodes = make([]*Node, len(r.positions))
	for i, p := range r.positions {
		nodes[i] = p.Node
	}
	return nodes
}

// locateIndex must be called with lock held on a non-empty ring.
func (r *Ring) locateIndex(key string) int {
	var h = r.hash(key)

	// Binary search for the first node with position >= h
	var idx = sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].Position >= h
	})

	// Wrap around if needed
	if idx >= len(r.positions) {
		return 0
	}
	return idx
}

// indexOf must be called with lock held.
func (r *Ring) indexOf(name string) (int, bool) {
	var pos, ok = r.byName[name]
	if !ok {
		return -1, false
	}

	var idx = sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].Position >= pos
	})
	return idx, idx < len(r.positions) && r.positions[idx].Position == pos
}

// String returns a visual representation of the ring state.
func (r *Ring) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder

	b.WriteString(fmt.Sprintf("Ring: %d nodes\n", len(r.positions)))

	if len(r.positions) == 0 {
		b.WriteString("\n[Empty Ring]\n")
		return b.String()
	}

	b.WriteString("\nRing Topology:\n")
	b.WriteString("┌─────────────────────────────────────────────────────────────┐\n")

	for i, p := range r.positions {
		var prevPos uint32
		if i == 0 {
			prevPos = r.positions[len(r.positions)-1].Position
		} else {
			prevPos = r.positions[i-1].Position
		}

		var rangeStr string
		if len(r.positions) == 1 {
			rangeStr = "(all)"
		} else if prevPos >= p.Position {
			rangeStr = fmt.Sprintf("(%d..max,0..%d]", prevPos, p.Position)
		} else {
			rangeStr = fmt.Sprintf("(%d..%d]", prevPos, p.Position)
		}

		b.WriteString(fmt.Sprintf("│ @%-10d  %-12s  %-21s  %-32s  keys:%d\n",
			p.Position, p.Node.name, p.Node.addr, rangeStr, p.Node.LocalLen()))
	}

	b.WriteString("└─────────────────────────────────────────────────────────────┘\n")

	return b.String()
}
