// Package signal defines the UDF abstraction computed over a dataset's rows
// and the registry used to resolve a signal by name when a manifest is
// parsed.
package signal

import (
	"context"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
	"github.com/rowlake/dataset/internal/vectorstore"
)

// InputType distinguishes a signal that consumes materialized row values from
// one that consumes (and produces) text embeddings.
type InputType int

const (
	// InputRichData signals consume flattened leaf values directly.
	InputRichData InputType = iota
	// InputTextEmbedding signals consume text and are embedding-backed,
	// enabling the vector-store top-k shortcut.
	InputTextEmbedding
)

// Descriptor is the JSON-serializable identity of a signal instance: its
// name plus any parameters, as persisted in a SignalManifest and schema
// Field.Signal.
type Descriptor = schema.SignalDescriptor

// Signal computes new per-row values from an existing leaf. Every signal has
// a stable Key() derived from (name, params), an InputType(), and emits
// Fields() describing the schema subtree it produces.
type Signal interface {
	// Key is a stable identity string for this signal instance, used to name
	// its column-group files and disambiguate same-named concepts with
	// different params.
	Key() string
	// Name is the registered signal name (independent of params).
	Name() string
	// InputType reports whether this signal consumes RichData or text embeddings.
	InputType() InputType
	// Fields describes the schema of one output value of this signal (a
	// bare leaf for the built-in signals); the view composer adds it to the
	// merged schema as a top-level field named by the signal manifest's
	// parquet_id.
	Fields() *schema.Field
	// Compute runs a RichData signal over flat, already-flattened leaf
	// values, returning one output value per input (nulls permitted, but the
	// output length must match the input length exactly).
	Compute(ctx context.Context, flat []value.Value) ([]value.Value, error)
}

// VectorSignal is implemented by InputTextEmbedding signals: they compute
// directly against embeddings already indexed in a vectorstore.Store rather
// than against materialized text.
type VectorSignal interface {
	Signal
	// ComputeEmbeddings produces the raw vectors compute_signal indexes into
	// a vectorstore.Store for this signal's column group.
	ComputeEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error)
	// VectorCompute scores each key's embedding, returning one output value
	// per key in the same order.
	VectorCompute(ctx context.Context, keys []vectorstore.Key, store vectorstore.Store) ([]value.Value, error)
	// VectorComputeTopK returns the k best-scoring keys overall (optionally
	// restricted to rowUUIDs), enabling select_rows' vector-store top-k
	// shortcut to skip scoring every row.
	VectorComputeTopK(ctx context.Context, k int, store vectorstore.Store, rowUUIDs []string) ([]vectorstore.ScoredKey, error)
}

// Embedder produces a single embedding vector per input text, the shared
// capability every InputTextEmbedding signal relies on to populate a
// vectorstore.Store during compute_signal.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error)
}

// ToVectors converts raw embeddings to pgvector wire values.
func ToVectors(raw [][]float32) []pgvector.Vector {
	out := make([]pgvector.Vector, len(raw))
	for i, r := range raw {
		out[i] = pgvector.NewVector(r)
	}
	return out
}

// Factory builds a Signal instance from its persisted params, used by the
// registry to resolve a signal by name when a manifest is parsed.
type Factory func(params map[string]any) (Signal, error)

// Registry resolves a signal name to a Factory.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a signal constructor under name. Re-registering the same
// name replaces the previous factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Resolve builds a Signal from a persisted descriptor.
func (r *Registry) Resolve(desc *Descriptor) (Signal, error) {
	f, ok := r.factories[desc.Name]
	if !ok {
		return nil, dserr.UnsupportedOp("no signal registered under name %q", desc.Name)
	}
	return f(desc.Params)
}
