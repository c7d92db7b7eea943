package engine

import (
	"strconv"
	"strings"

	"github.com/talgya/kluring/internal/world"
)

// Config holds simulation parameters.
type Config struct {
	// Seed is where the first shape is anchored and the reference point
	// for distance scoring.
	Seed world.Coord

	// Restock is the initial per-shape bag count.
	Restock int

	// AllOrientations makes the search try all eight permutations of each
	// shape instead of only the identity orientation.
	AllOrientations bool

	// NoiseWeight scales an opensimplex term added to frontier scores.
	// Zero disables it.
	NoiseWeight float64
	NoiseScale  float64
	NoiseSeed   int64

	// RandSeed seeds bootstrap draws. Zero picks a time-based seed.
	RandSeed uint64

	ChunkSize int
}

// DefaultConfig returns the reference behaviour: seed at the origin, one of
// each shape, identity orientation only, no noise.
func DefaultConfig() Config {
	return Config{
		Seed:       world.Origin,
		Restock:    1,
		NoiseScale: 0.15,
		ChunkSize:  world.DefaultChunkSize,
	}
}

// DefaultRestock is used when restock input is missing or malformed.
const DefaultRestock = 1

// ParseRestockCount parses a per-shape restock count from user input.
// Anything that is not a non-negative 16-bit integer yields DefaultRestock.
func ParseRestockCount(input string) int {
	n, err := strconv.ParseUint(strings.TrimSpace(input), 10, 16)
	if err != nil {
		return DefaultRestock
	}
	return int(n)
}
