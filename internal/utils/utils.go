package utils

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// GenerateID returns a fresh connection identifier.
func GenerateID() string {
	return uuid.NewString()
}

// GenerateSimulatedID marks ids of simulated members so they are never
// mistaken for a live connection.
func GenerateSimulatedID() string {
	return "sim-" + uuid.NewString()
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// NewRand returns a PRNG seeded from crypto/rand, falling back to a fixed
// seed source derived from a uuid when the system source is unavailable.
func NewRand() *rand.Rand {
	seed, err := NewSeed()
	if err != nil {
		id := uuid.New()
		seed = int64(binary.LittleEndian.Uint64(id[:8]))
	}
	return rand.New(rand.NewSource(seed))
}

// ShuffleOrder permutes items in place with Fisher-Yates.
func ShuffleOrder[T any](rng *rand.Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
