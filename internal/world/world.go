// Package world is the terrain collaborator of the server core. The session
// layer talks to it through two narrow entry points: StreamInitialChunks on
// login and NotifyMoved on movement; it never reaches into chunk internals.
package world

import (
	"sync"

	"go.uber.org/zap"

	"github.com/annelo/go-game-server/internal/playermanager"
	"github.com/annelo/go-game-server/internal/protocol"
)

// ChunkSize is the side length of a square chunk, in blocks.
const ChunkSize int32 = 16

// ViewRadius is how many chunks around a player are streamed to them.
const ViewRadius int32 = 2

// ChunkPos addresses a chunk in the chunk grid.
type ChunkPos struct {
	X int32
	Z int32
}

// Chunk is a generated terrain column grid. Heights is row-major, indexed
// [z*ChunkSize+x].
type Chunk struct {
	Pos     ChunkPos
	Heights [ChunkSize * ChunkSize]int32
}

// Data converts the chunk to its wire representation.
func (c *Chunk) Data() *protocol.ChunkData {
	return &protocol.ChunkData{
		X:       c.Pos.X,
		Z:       c.Pos.Z,
		Heights: append([]int32(nil), c.Heights[:]...),
	}
}

// World owns generated chunks and answers visibility queries.
type World struct {
	logger *zap.SugaredLogger
	gen    Generator

	mu     sync.RWMutex
	chunks map[ChunkPos]*Chunk
}

// NewWorld creates a world backed by the given generator.
func NewWorld(gen Generator, logger *zap.SugaredLogger) *World {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &World{
		logger: logger,
		gen:    gen,
		chunks: make(map[ChunkPos]*Chunk),
	}
}

// GeneratorID reports which generator the world runs on.
func (w *World) GeneratorID() string { return w.gen.ID() }

// GetOrGenerateChunk returns the chunk at pos, generating it on first use.
func (w *World) GetOrGenerateChunk(pos ChunkPos) *Chunk {
	w.mu.RLock()
	c, ok := w.chunks[pos]
	w.mu.RUnlock()
	if ok {
		return c
	}

	generated := w.gen.GenerateChunk(pos)

	w.mu.Lock()
	defer w.mu.Unlock()
	// Another goroutine may have generated it while we were working.
	if c, ok := w.chunks[pos]; ok {
		return c
	}
	w.chunks[pos] = generated
	return generated
}

// ChunkCount reports how many chunks have been generated so far.
func (w *World) ChunkCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.chunks)
}

// SpawnPosition picks the spawn point on top of the terrain at the world
// origin.
func (w *World) SpawnPosition() protocol.Position {
	c := w.GetOrGenerateChunk(ChunkPos{})
	center := ChunkSize / 2
	h := c.Heights[center*ChunkSize+center]
	return protocol.Position{
		X: float64(center),
		Y: float64(h + 1),
		Z: float64(center),
	}
}

// ChunkAt returns the chunk position containing a world position.
func ChunkAt(pos protocol.Position) ChunkPos {
	return ChunkPos{
		X: floorDiv(int32(pos.X), ChunkSize),
		Z: floorDiv(int32(pos.Z), ChunkSize),
	}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// StreamInitialChunks queues every chunk within the view radius of pos to
// the connection. Used once, right after login.
func (w *World) StreamInitialChunks(conn playermanager.Conn, pos protocol.Position) {
	center := ChunkAt(pos)
	for z := center.Z - ViewRadius; z <= center.Z+ViewRadius; z++ {
		for x := center.X - ViewRadius; x <= center.X+ViewRadius; x++ {
			conn.Enqueue(w.GetOrGenerateChunk(ChunkPos{X: x, Z: z}).Data())
		}
	}
}

// NotifyMoved streams chunks that became visible when a player moved from
// oldPos to newPos. Chunks already visible from oldPos are skipped.
func (w *World) NotifyMoved(conn playermanager.Conn, oldPos, newPos protocol.Position) {
	oldCenter := ChunkAt(oldPos)
	newCenter := ChunkAt(newPos)
	if oldCenter == newCenter {
		return
	}

	for z := newCenter.Z - ViewRadius; z <= newCenter.Z+ViewRadius; z++ {
		for x := newCenter.X - ViewRadius; x <= newCenter.X+ViewRadius; x++ {
			dx := x - oldCenter.X
			dz := z - oldCenter.Z
			if dx >= -ViewRadius && dx <= ViewRadius && dz >= -ViewRadius && dz <= ViewRadius {
				continue
			}
			conn.Enqueue(w.GetOrGenerateChunk(ChunkPos{X: x, Z: z}).Data())
		}
	}
}
