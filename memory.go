package dhtring

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"
)

// MemoryConnector is an in-process backend: every address it is asked for
// gets its own MemoryStore. Stores can be taken down to simulate failures.
type MemoryConnector struct {
	stores *skipmap.StringMap[*MemoryStore]
}

var _ Connector = (*MemoryConnector)(nil)

// NewMemoryConnector creates a connector with no stores.
func NewMemoryConnector() *MemoryConnector {
	return &MemoryConnector{
		stores: skipmap.NewString[*MemoryStore](),
	}
}

func newMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: skipmap.NewString[string](),
	}
}

// Connect returns the store for addr, creating it on first use.
func (c *MemoryConnector) Connect(ctx context.Context, addr Address) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrConnection, addr, err)
	}

	var store, _ = c.stores.LoadOrStoreLazy(addr.String(), newMemoryStore)
	if store.down.Load() {
		return nil, fmt.Errorf("%w at %s: connection refused", ErrConnection, addr)
	}
	return store, nil
}

// Store returns the store at addr, creating it if needed.
func (c *MemoryConnector) Store(addr Address) *MemoryStore {
	var store, _ = c.stores.LoadOrStoreLazy(addr.String(), newMemoryStore)
	return store
}

// SetDown makes the store at addr refuse connections and requests until it is brought back up.
func (c *MemoryConnector) SetDown(addr Address, down bool) {
	c.Store(addr).down.Store(down)
}

// MemoryStore is a single in-memory backing store.
type MemoryStore struct {
	data *skipmap.StringMap[string]
	down atomic.Bool
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}

	var value, ok = s.data.Load(key)
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.data.Store(key, value)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Has reports whether the store physically holds key, regardless of its up/down state.
func (s *MemoryStore) Has(key string) bool {
	var _, ok = s.data.Load(key)
	return ok
}

// Len returns the number of entries held, including the identity marker.
func (s *MemoryStore) Len() int {
	return s.data.Len()
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.down.Load() {
		return fmt.Errorf("%w: store is down", ErrStoreUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
