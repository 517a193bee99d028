package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when Embed is called with no texts.
var ErrEmptyInput = errors.New("embedding: no input texts")

// ProviderError wraps a failure reported by the embedding provider,
// including responses whose vector count does not match the input count.
// Provider errors are retryable.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Embedder turns text into fixed-width vectors.
type Embedder interface {
	// Embed generates one vector per input text, preserving order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedOne generates a vector for a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// Dimension reports the vector width produced by this embedder.
	Dimension() uint64
}
