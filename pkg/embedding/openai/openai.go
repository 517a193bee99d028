package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/storekit/semindex/pkg/embedding"
)

// DefaultDimension is the vector width of text-embedding-3-small.
const DefaultDimension = 1536

// Embedder implements embedding.Embedder using the OpenAI embeddings API.
type Embedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension uint64
}

// NewEmbedder creates an OpenAI Embedder. The API key is picked up from the
// environment unless overridden via option.WithAPIKey.
func NewEmbedder(opts ...option.RequestOption) *Embedder {
	client := openai.NewClient(opts...)
	return &Embedder{
		client:    &client,
		model:     openai.EmbeddingModelTextEmbedding3Small,
		dimension: DefaultDimension,
	}
}

// Dimension reports the vector width produced by the configured model.
func (e *Embedder) Dimension() uint64 { return e.dimension }

// Embed generates embeddings for the given texts, one vector per input in
// input order. A response with a mismatched vector count is rejected rather
// than padded or truncated.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyInput
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: e.model,
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, &embedding.ProviderError{Op: "create embeddings", Err: err}
	}

	if len(resp.Data) != len(texts) {
		return nil, &embedding.ProviderError{
			Op:  "create embeddings",
			Err: fmt.Errorf("requested %d vectors, got %d", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		// API returns float64, stores take float32.
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

// EmbedOne generates an embedding for a single text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

var _ embedding.Embedder = (*Embedder)(nil)
