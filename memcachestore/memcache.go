// Package memcachestore backs ring nodes with memcached servers.
package memcachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	dhtring "go-dhtring"

	"github.com/bradfitz/gomemcache/memcache"
)

// Connector dials one memcached server per node address.
type Connector struct {
	timeout      time.Duration
	maxIdleConns int
}

var _ dhtring.Connector = (*Connector)(nil)

// NewConnector creates a Connector whose clients give up on a server after timeout.
func NewConnector(timeout time.Duration) *Connector {
	if timeout <= 0 {
		timeout = memcache.DefaultTimeout
	}
	return &Connector{
		timeout:      timeout,
		maxIdleConns: memcache.DefaultMaxIdleConns,
	}
}

// Connect creates a client for addr and pings the server.
func (c *Connector) Connect(ctx context.Context, addr dhtring.Address) (dhtring.Store, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w at %s: %v", dhtring.ErrConnection, addr, err)
	}

	var client = memcache.New(addr.String())
	client.Timeout = c.timeout
	client.MaxIdleConns = c.maxIdleConns

	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w at %s: %v", dhtring.ErrConnection, addr, err)
	}

	return &Store{client: client}, nil
}

// Store is a dhtring.Store on a single memcached server.
type Store struct {
	client *memcache.Client
}

var _ dhtring.Store = (*Store)(nil)

// Get returns dhtring.ErrKeyNotFound on a cache miss.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", dhtring.ErrStoreUnavailable, err)
	}

	item, err := s.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return "", dhtring.ErrKeyNotFound
	}
	if err != nil {
		return "", storeError(key, err)
	}
	return string(item.Value), nil
}

// Set stores value without expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", dhtring.ErrStoreUnavailable, err)
	}

	if err := s.client.Set(&memcache.Item{Key: key, Value: []byte(value)}); err != nil {
		return storeError(key, err)
	}
	return nil
}

// Close closes the client's idle connections.
func (s *Store) Close() error {
	return s.client.Close()
}

// storeError keeps keys memcached cannot hold apart from server failures.
func storeError(key string, err error) error {
	if errors.Is(err, memcache.ErrMalformedKey) {
		return fmt.Errorf("%w: %q: %v", dhtring.ErrInvalidKey, key, err)
	}
	return fmt.Errorf("%w: %v", dhtring.ErrStoreUnavailable, err)
}
