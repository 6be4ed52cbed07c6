package dataset

import (
	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/engine"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/signal"
)

// plannedColumn is one Column after validation, with its owning manifest
// entry.
type plannedColumn struct {
	col   Column
	entry manifestEntry
}

// planColumns auto-includes uuid, resolves and validates every requested
// column against the merged schema, and rewrites a UDF column's target path
// to its VALUE form so the executor always reads the scored leaf's scalar
// payload.
func planColumns(v *view, cols []Column) ([]plannedColumn, error) {
	planned := make([]plannedColumn, 0, len(cols)+1)
	haveUUID := false
	for _, c := range cols {
		if len(c.Path) == 1 {
			if s, ok := c.Path[0].(string); ok && s == schema.UUIDColumn {
				haveUUID = true
			}
		}
	}
	if !haveUUID {
		planned = append(planned, plannedColumn{col: Column{Path: schema.PathTuple{schema.UUIDColumn}, Alias: schema.UUIDColumn}})
	}

	for _, c := range cols {
		path := c.Path
		if c.UDF != nil {
			path = schema.MakeValuePath(path)
		}
		entry, err := resolveColumn(v, path)
		if err != nil {
			return nil, err
		}
		if c.UDF != nil {
			leaf := v.manifest.DataSchema.LeafAt(path)
			if leaf == nil {
				return nil, dserr.IncompatibleDtype("UDF %q target %v does not resolve to a leaf", c.UDF.Key(), path)
			}
			if c.UDF.InputType() == signal.InputTextEmbedding && leaf.Dtype != schema.DataTypeString && leaf.Dtype != schema.DataTypeEmbedding {
				return nil, dserr.IncompatibleDtype("UDF %q requires a string or embedding leaf, got %v at %v", c.UDF.Key(), leaf.Dtype, path)
			}
		}
		planned = append(planned, plannedColumn{col: Column{Path: path, Alias: c.outputAlias(), UDF: c.UDF}, entry: entry})
	}
	return planned, nil
}

// partitionFilters splits filters into those resolvable against persisted
// columns (pre-UDF, pushed to the engine) and those referencing a UDF
// output alias (post-UDF, applied in Go after UDF execution). Wildcards are
// rejected for every operator except EXISTS.
func partitionFilters(filters []engine.Filter, udfAliases map[string]bool) (pre, post []engine.Filter, err error) {
	for _, f := range filters {
		if len(f.Path) == 1 {
			if name, ok := f.Path[0].(string); ok && udfAliases[name] {
				post = append(post, f)
				continue
			}
		}
		if f.Op != engine.OpExists && containsWildcard(f.Path) {
			return nil, nil, dserr.InvalidPath("wildcard not allowed in filter path %v for operator %s", f.Path, f.Op)
		}
		pre = append(pre, f)
	}
	return pre, post, nil
}

func containsWildcard(path schema.PathTuple) bool {
	for _, p := range path {
		if s, ok := p.(string); ok && s == schema.Wildcard {
			return true
		}
	}
	return false
}

// partitionSort splits sort_by aliases into pre-UDF (persisted column
// paths) and post-UDF (a UDF's output alias) keys. Sorting by a wildcard
// path is never allowed: SelectRows rejects such keys before partitioning.
func partitionSort(sortBy []string, udfAliases map[string]bool) (pre, post []string) {
	for _, key := range sortBy {
		if udfAliases[key] {
			post = append(post, key)
			continue
		}
		pre = append(pre, key)
	}
	return pre, post
}
