package embedding

import (
	"context"

	"github.com/rowlake/dataset/internal/config"
)

// Embedder is the interface the text-embedding signal computes against.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error)
	ModelID() string
}

// NewEmbedder builds the Bedrock-backed embedder from cfg, or nil if no
// region is configured (embedding signals are then simply unavailable).
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	if cfg.Bedrock.Region == "" {
		return nil, nil
	}
	return NewClient(cfg.Bedrock)
}
