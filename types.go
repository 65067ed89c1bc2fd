package dhtring

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Store is a connection to one backing key-value store.
type Store interface {
	// Get returns ErrKeyNotFound when the store has no value for key.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Connector opens Stores. Implementations return an error wrapping ErrConnection
// when the backend at addr is unreachable.
type Connector interface {
	Connect(ctx context.Context, addr Address) (Store, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, addr Address) (Store, error)

func (f ConnectorFunc) Connect(ctx context.Context, addr Address) (Store, error) {
	return f(ctx, addr)
}

// Address is the network location of a backing store.
type Address struct {
	Host string
	Port int
}

// ParseAddress parses "host:port".
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, fmt.Errorf("%w: port %q is not a number", ErrInvalidAddress, portStr)
	}
	var addr = Address{Host: host, Port: port}
	if err := addr.Validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// Validate checks that the host is set and the port is in range.
func (a Address) Validate() error {
	if a.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, a.Port)
	}
	return nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// NodeSpec describes a node to be added to the ring.
type NodeSpec struct {
	Name    string
	Address Address
}

// NodeInfo is a point-in-time view of a ring member.
type NodeInfo struct {
	Name     string
	Address  Address
	Position uint32
	Keys     int
}
