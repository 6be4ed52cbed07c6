package dataset

import (
	"context"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/signal"
	"github.com/rowlake/dataset/internal/value"
	"github.com/rowlake/dataset/internal/vectorstore"
)

// runRichDataUDF executes a RichData signal over one already-extracted input
// value per row, preserving wildcard nesting shape.
func runRichDataUDF(ctx context.Context, sig signal.Signal, inputs []value.Value) ([]value.Value, error) {
	flat := value.Flatten(inputs)
	out, err := sig.Compute(ctx, flat)
	if err != nil {
		return nil, err
	}
	if len(out) != len(flat) {
		return nil, dserr.UDFShapeMismatch("signal %q returned %d outputs for %d inputs", sig.Key(), len(out), len(flat))
	}
	return value.Unflatten(out, inputs), nil
}

// runVectorUDF scores already-indexed embeddings against a VectorSignal's
// VectorCompute, one output value per row (the non-top-k path).
func runVectorUDF(ctx context.Context, vsig signal.VectorSignal, uuids []string, inputs []value.Value, store vectorstore.Store) ([]value.Value, error) {
	keys := value.FlattenKeys(uuids, inputs)
	out, err := vsig.VectorCompute(ctx, keys, store)
	if err != nil {
		return nil, err
	}
	if len(out) != len(keys) {
		return nil, dserr.UDFShapeMismatch("signal %q returned %d scores for %d keys", vsig.Key(), len(out), len(keys))
	}
	return value.Unflatten(out, inputs), nil
}

// topKEligible reports whether a request's sort/limit shape qualifies for
// the vector-store top-k shortcut: a single post-UDF DESC sort by col's own
// alias, with a limit set and no other post-UDF predicate to apply first.
func topKEligible(postSort []string, postFilters int, sortOrder SortOrder, limit int, alias string) bool {
	return limit > 0 && sortOrder == SortDescending && postFilters == 0 &&
		len(postSort) == 1 && postSort[0] == alias
}

// runTopKShortcut fetches the k best-scoring keys directly from the vector
// store instead of scoring every row, skipping the UDF entirely for rows it
// never has to touch.
func runTopKShortcut(ctx context.Context, vsig signal.VectorSignal, store vectorstore.Store, limit, offset int, rowUUIDs []string) ([]vectorstore.ScoredKey, error) {
	return vsig.VectorComputeTopK(ctx, limit+offset, store, rowUUIDs)
}
