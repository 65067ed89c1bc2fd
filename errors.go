package dhtring

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRing is returned by lookups and data operations when no node is registered.
	ErrEmptyRing = errors.New("ring has no nodes")

	// ErrConnection is returned when a backing store cannot be reached while adding a node.
	ErrConnection = errors.New("failed to connect to backing store")

	// ErrStoreUnavailable is returned when a connected backing store fails or times out.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrKeyNotFound is returned by a Store when it holds no value for a key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidKey is returned by a Store that cannot hold a key, for example
	// one too long for memcached. The store itself is still healthy.
	ErrInvalidKey = errors.New("invalid key")

	// ErrDuplicateName is returned when a joining node's name is already taken.
	ErrDuplicateName = errors.New("node name already in use")

	// ErrPortInUse is returned when a joining node's port is already used by a member.
	ErrPortInUse = errors.New("port already in use")

	// ErrNodeNotFound is returned when removing a node that is not a member.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidAddress is returned for a missing host or a port outside 1-65535.
	ErrInvalidAddress = errors.New("invalid node address")

	// ErrPositionCollision is returned when a joining node hashes to a member's position.
	ErrPositionCollision = errors.New("node hash collides with an existing node")

	// ErrInvalidNodeName is returned when a node name is empty, too long or contains invalid characters.
	ErrInvalidNodeName = errors.New("invalid node name")

	// ErrPartialWrite marks a put whose primary write succeeded but whose replica write failed.
	ErrPartialWrite = errors.New("replica write failed")
)

// PartialWriteError reports a failed replica write. The value is still considered written.
type PartialWriteError struct {
	Key     string
	Primary string
	Replica string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("key %q written to %s but replica %s failed: %v", e.Key, e.Primary, e.Replica, e.Err)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{ErrPartialWrite, e.Err}
}
