package dhtring

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// validNodeNamePattern keeps node names printable and safe to use as store keys and table suffixes.
var validNodeNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Node is one storage endpoint of the ring. It owns the connection to its
// backing store and a shadow map of the keys it is believed to hold.
type Node struct {
	name    string
	addr    Address
	store   Store
	timeout time.Duration

	mu     sync.RWMutex
	shadow map[string]string
}

// ValidateNodeName checks if name can identify a ring member.
func ValidateNodeName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidNodeName)
	}

	if len(name) > 63 {
		return fmt.Errorf("%w: name must be 63 characters or less", ErrInvalidNodeName)
	}

	if !validNodeNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must start with a letter or digit and contain only letters, digits, '.', '_' or '-'", ErrInvalidNodeName, name)
	}

	return nil
}

// GenerateNodeName returns a fresh random node name.
func GenerateNodeName() string {
	return fmt.Sprintf("node-%s", uuid.New().String()[0:8])
}

// connectNode opens the backing store at addr and records the node's identity marker on it.
func connectNode(ctx context.Context, connector Connector, name string, addr Address, opts options) (*Node, error) {
	var dialCtx, cancel = context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	store, err := connector.Connect(dialCtx, addr)
	if err != nil {
		if errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w at %s: %v", ErrConnection, addr, err)
	}

	var node = newNode(name, addr, store, opts.timeout)
	if opts.identityKey != "" {
		if err := node.RemoteSet(ctx, opts.identityKey, name); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("%w at %s: failed to write identity marker: %v", ErrConnection, addr, err)
		}
	}

	return node, nil
}

func newNode(name string, addr Address, store Store, timeout time.Duration) *Node {
	return &Node{
		name:    name,
		addr:    addr,
		store:   store,
		timeout: timeout,
		shadow:  make(map[string]string),
	}
}

// Name returns the node's unique name.
func (n *Node) Name() string {
	return n.name
}

// Address returns the network address of the node's backing store.
func (n *Node) Address() Address {
	return n.addr
}

// LocalGet reads the shadow map.
func (n *Node) LocalGet(key string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var value, ok = n.shadow[key]
	return value, ok
}

// LocalSet records key as held by this node.
func (n *Node) LocalSet(key, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.shadow[key] = value
}

// LocalDelete forgets key. The backing store is not touched.
func (n *Node) LocalDelete(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.shadow, key)
}

// LocalKeys returns the shadow map's keys in sorted order.
func (n *Node) LocalKeys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var keys = make([]string, 0, len(n.shadow))
	for key := range n.shadow {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// LocalLen returns the number of keys in the shadow map.
func (n *Node) LocalLen() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.shadow)
}

// snapshot copies the shadow map so callers can iterate while the node is mutated.
func (n *Node) snapshot() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var entries = make(map[string]string, len(n.shadow))
	for key, value := range n.shadow {
		entries[key] = value
	}
	return entries
}

// RemoteGet reads key from the backing store.
// A miss returns ErrKeyNotFound; any other failure wraps ErrStoreUnavailable.
func (n *Node) RemoteGet(ctx context.Context, key string) (string, error) {
	var callCtx, cancel = context.WithTimeout(ctx, n.timeout)
	defer cancel()

	value, err := n.store.Get(callCtx, key)
	if err != nil {
		return "", n.storeError("get", key, err)
	}
	return value, nil
}

// RemoteSet writes key to the backing store.
func (n *Node) RemoteSet(ctx context.Context, key, value string) error {
	var callCtx, cancel = context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.store.Set(callCtx, key, value); err != nil {
		return n.storeError("set", key, err)
	}
	return nil
}

// write stores value on the backing store, then records it in the shadow map.
func (n *Node) write(ctx context.Context, key, value string) error {
	if err := n.RemoteSet(ctx, key, value); err != nil {
		return err
	}
	n.LocalSet(key, value)
	return nil
}

func (n *Node) storeError(op, key string, err error) error {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return ErrKeyNotFound
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrInvalidKey):
		return fmt.Errorf("node %s: failed to %s %q: %w", n.name, op, key, err)
	default:
		return fmt.Errorf("node %s: failed to %s %q: %w: %v", n.name, op, key, ErrStoreUnavailable, err)
	}
}

// Close releases the connection to the backing store.
func (n *Node) Close() error {
	if n.store == nil {
		return nil
	}
	return n.store.Close()
}
