package dhtring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// positionHash places names from positions at fixed points and keys of the
// form "anything@1234" at 1234. Everything else falls back to Murmur3.
func positionHash(positions map[string]uint32) HashFunc {
	return func(key string) uint32 {
		if pos, ok := positions[key]; ok {
			return pos
		}
		if i := strings.LastIndexByte(key, '@'); i >= 0 {
			if n, err := strconv.ParseUint(key[i+1:], 10, 32); err == nil {
				return uint32(n)
			}
		}
		return Murmur3(key)
	}
}

func localAddr(port int) Address {
	return Address{Host: "localhost", Port: port}
}

func newTestService(opts ...Option) (*Service, *MemoryConnector) {
	var connector = NewMemoryConnector()
	opts = append([]Option{WithTimeout(time.Second)}, opts...)
	return NewService(connector, opts...), connector
}

func mustAddNodes(t *testing.T, sut *Service, names ...string) {
	t.Helper()
	for i, name := range names {
		require.NoError(t, sut.AddNode(context.Background(), name, localAddr(11211+i)))
	}
}

// assertPlacement checks that every key is held by exactly its owners, both in
// the shadow maps and on the backing stores, and that Get returns its value.
func assertPlacement(t *testing.T, sut *Service, connector *MemoryConnector, expected map[string]string) {
	t.Helper()

	var ctx = context.Background()
	for key, value := range expected {
		owners, err := sut.Owners(key)
		require.NoError(t, err)

		for _, node := range sut.ring.Nodes() {
			var held, ok = node.LocalGet(key)
			if containsNode(owners, node) {
				assert.True(t, ok, "key %q should be in the shadow map of owner %s", key, node.Name())
				assert.Equal(t, value, held, "key %q on %s", key, node.Name())
				assert.True(t, connector.Store(node.Address()).Has(key), "key %q should be stored on %s", key, node.Name())
			} else {
				assert.False(t, ok, "key %q should not be in the shadow map of %s", key, node.Name())
			}
		}

		got, found, err := sut.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, found, "key %q should be found", key)
		assert.Equal(t, value, got)
	}
}

// flakyStore fails data writes on demand while still accepting the identity marker.
type flakyStore struct {
	Store
	failSets atomic.Bool
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	if f.failSets.Load() && key != "name" {
		return ErrStoreUnavailable
	}
	return f.Store.Set(ctx, key, value)
}

// flakyConnector hands out a flakyStore for one address and plain memory stores for the rest.
func flakyConnector(memory *MemoryConnector, flakyAddr Address) (Connector, *flakyStore) {
	var flaky = &flakyStore{Store: memory.Store(flakyAddr)}
	return ConnectorFunc(func(ctx context.Context, addr Address) (Store, error) {
		if addr == flakyAddr {
			return flaky, nil
		}
		return memory.Connect(ctx, addr)
	}), flaky
}

// pickyStore rejects keys containing spaces the way memcached does.
type pickyStore struct {
	Store
}

func (p pickyStore) Get(ctx context.Context, key string) (string, error) {
	if strings.ContainsRune(key, ' ') {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return p.Store.Get(ctx, key)
}

func (p pickyStore) Set(ctx context.Context, key, value string) error {
	if strings.ContainsRune(key, ' ') {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return p.Store.Set(ctx, key, value)
}

func pickyConnector(memory *MemoryConnector) Connector {
	return ConnectorFunc(func(ctx context.Context, addr Address) (Store, error) {
		store, err := memory.Connect(ctx, addr)
		if err != nil {
			return nil, err
		}
		return pickyStore{Store: store}, nil
	})
}
