package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// LocalClient is a network-free embedding provider. It derives a
// deterministic unit vector from the SHA-256 digest of the input text,
// reseeded per output component, so that Embed is a pure function of its
// input: identical text always yields an identical vector, and distinct
// texts are (with overwhelming probability) non-parallel. It exists for the
// "local" provider option and for tests that need a real Client without a
// network dependency.
type LocalClient struct {
	dimension int
}

// NewLocalClient builds a LocalClient producing vectors of the given
// dimension.
func NewLocalClient(dimension int) *LocalClient {
	return &LocalClient{dimension: dimension}
}

func (c *LocalClient) Dimension() int { return c.dimension }

func (c *LocalClient) Embed(_ context.Context, text string) ([]float32, error) {
	return c.vector(text), nil
}

func (c *LocalClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = c.vector(t)
	}
	return vectors, nil
}

func (c *LocalClient) vector(text string) []float32 {
	out := make([]float32, c.dimension)
	digest := sha256.Sum256([]byte(text))

	var sumSquares float64
	for i := 0; i < c.dimension; i++ {
		h := sha256.Sum256(append(digest[:], byte(i), byte(i>>8)))
		bits := binary.BigEndian.Uint64(h[:8])
		// Map to [-1, 1].
		v := (float64(bits)/float64(^uint64(0)))*2 - 1
		out[i] = float32(v)
		sumSquares += v * v
	}

	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}
