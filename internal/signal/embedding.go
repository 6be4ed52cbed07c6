package signal

import (
	"context"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
	"github.com/rowlake/dataset/internal/vectorstore"
)

// BedrockEmbeddingSignal is a TextEmbedding signal backed by AWS Bedrock: its
// output is the raw embedding vector for each input string, indexed into a
// vectorstore.Store rather than materialized as a leaf value.
type BedrockEmbeddingSignal struct {
	embedder Embedder
	modelID  string
}

// NewBedrockEmbeddingSignal builds a BedrockEmbeddingSignal over embedder.
func NewBedrockEmbeddingSignal(embedder Embedder, modelID string) *BedrockEmbeddingSignal {
	return &BedrockEmbeddingSignal{embedder: embedder, modelID: modelID}
}

func (s *BedrockEmbeddingSignal) Key() string { return "bedrock_embedding/" + s.modelID }
func (s *BedrockEmbeddingSignal) Name() string { return "bedrock_embedding" }
func (s *BedrockEmbeddingSignal) InputType() InputType { return InputTextEmbedding }

func (s *BedrockEmbeddingSignal) Fields() *schema.Field {
	return schema.NewLeaf(schema.DataTypeEmbedding)
}

// Compute is unreachable for an embedding-backed signal: the planner routes
// InputTextEmbedding signals to VectorCompute/VectorComputeTopK instead.
func (s *BedrockEmbeddingSignal) Compute(context.Context, []value.Value) ([]value.Value, error) {
	return nil, dserr.UnsupportedOp("bedrock_embedding is embedding-backed; use vector_compute")
}

// ComputeEmbeddings calls Bedrock to embed texts, for compute_signal to index
// into a vectorstore.Store.
func (s *BedrockEmbeddingSignal) ComputeEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	raw, err := s.embedder.EmbedBatch(ctx, texts, "search_document")
	if err != nil {
		return nil, dserr.Wrapf(dserr.KindIOError, err, "embed %d texts", len(texts))
	}
	if len(raw) != len(texts) {
		return nil, dserr.UDFShapeMismatch("embedder returned %d vectors for %d texts", len(raw), len(texts))
	}
	return ToVectors(raw), nil
}

// VectorCompute returns each key's own embedding as an opaque value; a pure
// embedding signal's "score" is the vector itself, useful chiefly as an
// intermediate input to a downstream concept/similarity signal.
func (s *BedrockEmbeddingSignal) VectorCompute(ctx context.Context, keys []vectorstore.Key, store vectorstore.Store) ([]value.Value, error) {
	vecs, err := store.Get(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(vecs))
	for i, v := range vecs {
		floats := v.Slice()
		items := make([]value.Value, len(floats))
		for j, f := range floats {
			items[j] = value.Float(float64(f))
		}
		out[i] = value.List(items)
	}
	return out, nil
}

// VectorComputeTopK is not meaningful for a bare embedding signal (there is
// no scalar score to rank by); only a downstream scoring signal (e.g.
// ConceptScoreSignal) implements a genuine top-k shortcut.
func (s *BedrockEmbeddingSignal) VectorComputeTopK(context.Context, int, vectorstore.Store, []string) ([]vectorstore.ScoredKey, error) {
	return nil, dserr.UnsupportedOp("bedrock_embedding has no scalar ranking; wrap it in a scoring signal")
}
