package dataset

import (
	"context"
	"testing"

	"github.com/rowlake/dataset/internal/engine"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/signal"
	"github.com/rowlake/dataset/internal/value"
)

// fakeEmbedder returns a deterministic vector per text: the rune count of
// the text in the first dimension and a second dimension fixed at 1, so
// cosine similarity against a query vector produces a well-defined ranking.
type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len([]rune(t))), 1}
	}
	return out, nil
}

func TestSelectRowsTopKShortcut(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "short", articleRow("short", "hi", "hi"))
	rows.seed("source", "mid", articleRow("mid", "hello there", "hello there"))
	rows.seed("source", "long", articleRow("long", "a much longer document body", "a much longer document body"))

	embSig := signal.NewBedrockEmbeddingSignal(fakeEmbedder{}, "test-model")
	if err := ds.ComputeSignal(context.Background(), embSig, schema.PathTuple{"doc", "text"}, ""); err != nil {
		t.Fatalf("ComputeSignal(embedding): %v", err)
	}

	// The concept vector points toward "long" documents: {100, 1} normalized
	// is closest to the "long" row's {27, 1} vector among the three.
	concept := signal.NewConceptScoreSignal("length_like", []float32{100, 1})

	batch, err := ds.SelectRows(context.Background(), SelectRowsRequest{
		Columns: []Column{
			{Path: schema.PathTuple{"doc", "text"}, UDF: concept, Alias: "score"},
		},
		SortBy:    []string{"score"},
		SortOrder: SortDescending,
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("want top-2 rows, got %d", len(batch.Rows))
	}
	if batch.Rows[0].UUID != "long" {
		t.Fatalf("want %q ranked first, got %q", "long", batch.Rows[0].UUID)
	}
}

func TestTopKEligibleRequiresNoPostUDFFilters(t *testing.T) {
	if !topKEligible([]string{"score"}, 0, SortDescending, 2, "score") {
		t.Fatal("want eligible with no post-UDF filters")
	}
	if topKEligible([]string{"score"}, 1, SortDescending, 2, "score") {
		t.Fatal("want ineligible once a post-UDF filter is present")
	}
}

// TestSelectRowsPostFilterDisablesTopKShortcut guards against the under-fetch
// bug where a post-UDF filter coexisted with the top-k shortcut: the
// shortcut would restrict the batch to limit+offset rows before the filter
// ran, so a filtered-out top row silently shrank the result below limit
// instead of the filter being applied to the full scored set first.
func TestSelectRowsPostFilterDisablesTopKShortcut(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "short", articleRow("short", "hi", "hi"))
	rows.seed("source", "mid", articleRow("mid", "hello there", "hello there"))
	rows.seed("source", "long", articleRow("long", "a much longer document body", "a much longer document body"))

	embSig := signal.NewBedrockEmbeddingSignal(fakeEmbedder{}, "test-model")
	if err := ds.ComputeSignal(context.Background(), embSig, schema.PathTuple{"doc", "text"}, ""); err != nil {
		t.Fatalf("ComputeSignal(embedding): %v", err)
	}
	concept := signal.NewConceptScoreSignal("length_like", []float32{100, 1})

	// "long" ranks first by score but is excluded by the post-UDF filter; the
	// filter must still be applied to every scored row, not just the
	// shortcut's pre-filter top-2.
	batch, err := ds.SelectRows(context.Background(), SelectRowsRequest{
		Columns: []Column{
			{Path: schema.PathTuple{"doc", "text"}, UDF: concept, Alias: "score"},
		},
		Filters:   []engine.Filter{{Path: schema.PathTuple{"score"}, Op: engine.OpLess, Value: value.Float(0.999)}},
		SortBy:    []string{"score"},
		SortOrder: SortDescending,
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	for _, r := range batch.Rows {
		if r.UUID == "long" {
			t.Fatalf("want %q excluded by the post-UDF filter, got it in the result", "long")
		}
	}
}

func TestConceptScoreVectorComputeFallsBackWithoutShortcut(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "u1", articleRow("u1", "hi", "hi"))
	rows.seed("source", "u2", articleRow("u2", "a longer document", "a longer document"))

	embSig := signal.NewBedrockEmbeddingSignal(fakeEmbedder{}, "test-model")
	if err := ds.ComputeSignal(context.Background(), embSig, schema.PathTuple{"doc", "text"}, ""); err != nil {
		t.Fatalf("ComputeSignal(embedding): %v", err)
	}
	concept := signal.NewConceptScoreSignal("length_like", []float32{100, 1})

	// No sort_by/limit, so the non-top-k VectorCompute path runs over every
	// row instead of the shortcut.
	batch, err := ds.SelectRows(context.Background(), SelectRowsRequest{
		Columns: []Column{{Path: schema.PathTuple{"doc", "text"}, UDF: concept, Alias: "score"}},
	})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(batch.Rows))
	}
	for _, r := range batch.Rows {
		if r.Values["score"].Kind() != value.KindFloat {
			t.Fatalf("want a float score for %q, got kind %v", r.UUID, r.Values["score"].Kind())
		}
	}
}
