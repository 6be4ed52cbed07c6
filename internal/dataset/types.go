// Package dataset implements the logical view composition, query planning
// and execution, signal persistence, and merge/reshape mechanics that
// present a dataset's source plus signal column groups as one queryable
// nested table.
package dataset

import (
	"context"

	"github.com/rowlake/dataset/internal/engine"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/signal"
	"github.com/rowlake/dataset/internal/value"
)

// SortOrder is the direction sort_by is applied in.
type SortOrder int

const (
	SortAscending SortOrder = iota
	SortDescending
)

// Column is one requested output column: a path into the merged schema,
// optionally scored by a UDF, with an output alias. Flatten requests the
// select builder's flatten/unnest reshape: nested lists three levels deep
// (counting the result's row dimension as the outermost level) are merged
// one level at a time, and a remaining two-deep list is unnested into one
// output row per element.
type Column struct {
	Path    schema.PathTuple
	Alias   string
	UDF     signal.Signal
	Flatten bool
}

// outputAlias returns the column's output key, defaulting to the UDF's key
// or the path's last field-name segment.
func (c Column) outputAlias() string {
	if c.Alias != "" {
		return c.Alias
	}
	if c.UDF != nil {
		return c.UDF.Key()
	}
	for i := len(c.Path) - 1; i >= 0; i-- {
		if s, ok := c.Path[i].(string); ok && s != schema.ValueKey {
			return s
		}
	}
	return "value"
}

// SelectRowsRequest is select_rows' full parameter set: projected columns,
// filters, sort, pagination, and the span-resolution/column-merge flags.
type SelectRowsRequest struct {
	Columns        []Column
	Filters        []engine.Filter
	SortBy         []string // output aliases or dotted source paths
	SortOrder      SortOrder
	Limit          int
	Offset         int
	ResolveSpan    bool
	CombineColumns bool
	TaskID         string
}

// Row is one result row of a select_rows call: its uuid plus one Value per
// requested column, keyed by output alias.
type Row struct {
	UUID   string
	Values map[string]value.Value
}

// RowBatch is a select_rows result: the requested columns in request order,
// plus the matching rows.
type RowBatch struct {
	Columns []string
	Rows    []Row
}

// DatasetManifest is the public summary of a dataset's current state.
type DatasetManifest struct {
	Namespace  string
	Name       string
	DataSchema *schema.Schema
	NumItems   int
}

// StatsResult is stats(leaf_path)'s output.
type StatsResult struct {
	TotalCount          int
	ApproxCountDistinct int
	AvgTextLength       *float64
	MinVal              value.Value
	MaxVal              value.Value
}

// Bin is one boundary value for select_groups' numeric bucketing. N bins
// partition the value range into N+1 half-open buckets: (-Inf, Bound of
// bins[0]), [Bound of bins[0], Bound of bins[1]), ..., [Bound of bins[N-1],
// +Inf). SelectGroupsOptions.BinLabels optionally names each of the N+1
// buckets in order; when absent (or shorter than needed), a bucket falls
// back to its own integer index.
type Bin struct {
	Bound float64
}

// GroupRow is one select_groups result row.
type GroupRow struct {
	Value value.Value
	Count int
}

// SelectGroupsOptions configures select_groups.
type SelectGroupsOptions struct {
	Filters   []engine.Filter
	SortOrder SortOrder
	Limit     int
	Bins      []Bin
	BinLabels []string
}

// Dataset is the public operation surface of the dataset query/enrichment
// engine: manifest inspection, row selection, stats, grouping, and signal
// computation.
type Dataset interface {
	Manifest(ctx context.Context) (*DatasetManifest, error)
	SelectRows(ctx context.Context, req SelectRowsRequest) (*RowBatch, error)
	SelectRowsSchema(ctx context.Context, req SelectRowsRequest) (*schema.Schema, error)
	Stats(ctx context.Context, leafPath schema.PathTuple) (*StatsResult, error)
	SelectGroups(ctx context.Context, leafPath schema.PathTuple, opts SelectGroupsOptions) ([]GroupRow, error)
	ComputeSignal(ctx context.Context, sig signal.Signal, column schema.PathTuple, taskID string) error
}
