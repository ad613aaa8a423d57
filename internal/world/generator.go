package world

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// Generator produces terrain chunks. Implementations must be safe for
// concurrent use: chunks are generated lazily from session goroutines.
type Generator interface {
	// ID is the name generators are selected by in the configuration.
	ID() string
	// GenerateChunk builds the chunk at the given position.
	GenerateChunk(pos ChunkPos) *Chunk
}

// SuperflatGenerator produces a constant-height plane. It is the fallback
// when the configured generator is unknown.
type SuperflatGenerator struct {
	Height int32
}

// NewSuperflatGenerator returns a superflat generator at the default ground
// level.
func NewSuperflatGenerator() *SuperflatGenerator {
	return &SuperflatGenerator{Height: 4}
}

func (g *SuperflatGenerator) ID() string { return "superflat" }

func (g *SuperflatGenerator) GenerateChunk(pos ChunkPos) *Chunk {
	c := &Chunk{Pos: pos}
	for i := range c.Heights {
		c.Heights[i] = g.Height
	}
	return c
}

// Perlin parameters: persistence, detail frequency, octave count. Same
// shape of terrain the noise map uses for overworld height.
const (
	noiseAlpha   = 2.0
	noiseBeta    = 2.0
	noiseOctaves = 3
	noiseScale   = 0.02

	baseHeight      = 16.0
	heightAmplitude = 12.0
)

// NoiseGenerator produces rolling terrain from Perlin noise seeded by the
// world seed.
type NoiseGenerator struct {
	noise *perlin.Perlin
}

// NewNoiseGenerator creates an overworld generator for the given seed.
func NewNoiseGenerator(seed int64) *NoiseGenerator {
	return &NoiseGenerator{
		noise: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed),
	}
}

func (g *NoiseGenerator) ID() string { return "overworld" }

func (g *NoiseGenerator) GenerateChunk(pos ChunkPos) *Chunk {
	c := &Chunk{Pos: pos}
	for z := int32(0); z < ChunkSize; z++ {
		for x := int32(0); x < ChunkSize; x++ {
			wx := float64(pos.X*ChunkSize + x)
			wz := float64(pos.Z*ChunkSize + z)
			n := g.noise.Noise2D(wx*noiseScale, wz*noiseScale)
			h := int32(math.Round(baseHeight + heightAmplitude*n))
			if h < 1 {
				h = 1
			}
			c.Heights[z*ChunkSize+x] = h
		}
	}
	return c
}
