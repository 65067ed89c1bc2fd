package dhtring

import (
	"fmt"

	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// HashFunc maps a node name or a data key onto the 32-bit ring.
// The same function must be used for both so they share one position space.
type HashFunc func(key string) uint32

// Murmur3 is the default ring hash: 32-bit murmur3 with seed 0.
func Murmur3(key string) uint32 {
	return murmur3.Sum32([]byte(key))
}

// XXH3 folds the 64-bit xxh3 digest down to its low 32 bits.
func XXH3(key string) uint32 {
	return uint32(xxh3.HashString(key))
}

// HashByName resolves a hash function from its configuration name.
func HashByName(name string) (HashFunc, error) {
	switch name {
	case "", "murmur3":
		return Murmur3, nil
	case "xxh3":
		return XXH3, nil
	default:
		return nil, fmt.Errorf("unknown hash function %q", name)
	}
}
