package world

import "math"

// DefaultChunkSize is the side length of a renderer chunk in cells.
const DefaultChunkSize = 64

// ToChunk splits a global coordinate into the chunk that holds it and the
// cell's position inside that chunk. Negative coordinates floor toward
// -inf so local positions are always in [0, size).
func ToChunk(c Coord, size int) (chunk, local Coord) {
	chunk = Coord{X: floorDiv(c.X, size), Y: floorDiv(c.Y, size)}
	local = Coord{X: c.X - chunk.X*size, Y: c.Y - chunk.Y*size}
	return chunk, local
}

// ValidChunk reports whether every cell of the chunk has a representable
// global coordinate.
func ValidChunk(chunk Coord, size int) bool {
	if size <= 0 {
		return false
	}
	lo, hi := math.MinInt/size, math.MaxInt/size-1
	return chunk.X >= lo && chunk.X <= hi && chunk.Y >= lo && chunk.Y <= hi
}

// ChunkBounds returns the global rectangle covered by a chunk. The chunk
// must satisfy ValidChunk.
func ChunkBounds(chunk Coord, size int) Bounds {
	return Bounds{
		MinX: chunk.X * size,
		MinY: chunk.Y * size,
		MaxX: chunk.X*size + size - 1,
		MaxY: chunk.Y*size + size - 1,
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
