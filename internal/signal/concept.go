package signal

import (
	"context"
	"math"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
	"github.com/rowlake/dataset/internal/vectorstore"
)

// ConceptScoreSignal scores each row's embedding against a fixed concept
// vector. Concept model training itself is out of scope here; this signal
// only consumes an already-trained concept vector.
type ConceptScoreSignal struct {
	conceptName string
	vector      pgvector.Vector
}

// NewConceptScoreSignal builds a ConceptScoreSignal that ranks rows by
// similarity to vector.
func NewConceptScoreSignal(conceptName string, vector []float32) *ConceptScoreSignal {
	return &ConceptScoreSignal{conceptName: conceptName, vector: pgvector.NewVector(vector)}
}

func (s *ConceptScoreSignal) Key() string { return "concept_score/" + s.conceptName }
func (s *ConceptScoreSignal) Name() string { return "concept_score" }
func (s *ConceptScoreSignal) InputType() InputType { return InputTextEmbedding }

func (s *ConceptScoreSignal) Fields() *schema.Field {
	return schema.NewLeaf(schema.DataTypeFloat32)
}

// Compute is unreachable: ConceptScoreSignal is embedding-backed.
func (s *ConceptScoreSignal) Compute(context.Context, []value.Value) ([]value.Value, error) {
	return nil, dserr.UnsupportedOp("concept_score is embedding-backed; use vector_compute")
}

// ComputeEmbeddings is unreachable: ConceptScoreSignal scores an existing
// embedding column rather than producing its own vectors to index.
func (s *ConceptScoreSignal) ComputeEmbeddings(context.Context, []string) ([]pgvector.Vector, error) {
	return nil, dserr.UnsupportedOp("concept_score scores an existing embedding column; it has no embeddings of its own to index")
}

// VectorCompute scores each key's embedding against the concept vector.
func (s *ConceptScoreSignal) VectorCompute(ctx context.Context, keys []vectorstore.Key, store vectorstore.Store) ([]value.Value, error) {
	vecs, err := store.Get(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(vecs))
	for i, v := range vecs {
		out[i] = value.Float(float64(cosine(s.vector.Slice(), v.Slice())))
	}
	return out, nil
}

// VectorComputeTopK delegates straight to the vector store's own top-k scan
// against the concept vector, the shortcut select_rows takes when sorting
// DESC by this signal's output with a limit.
func (s *ConceptScoreSignal) VectorComputeTopK(ctx context.Context, k int, store vectorstore.Store, rowUUIDs []string) ([]vectorstore.ScoredKey, error) {
	return store.TopK(ctx, s.vector, k, rowUUIDs)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
