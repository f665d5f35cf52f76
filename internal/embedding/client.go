// Package embedding defines the Client interface §4.5 requires of the core
// — text to fixed-dimension dense vector — and the providers that implement
// it: a circuit-breaker-guarded OpenAI/Azure-compatible client and a local,
// network-free deterministic client used for tests and offline operation.
package embedding

import "context"

// Client turns text into dense vectors of a fixed dimension D, identical
// for every call made against one instance during a process's lifetime.
type Client interface {
	// Embed returns the embedding for a single string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input string, in the same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns D, the length every vector Embed/EmbedBatch returns.
	Dimension() int
}
