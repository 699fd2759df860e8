package core

import "context"

// EmbeddingProvider produces fixed-dimensionality vectors for text. Batch
// requests embed all texts in one provider call.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
