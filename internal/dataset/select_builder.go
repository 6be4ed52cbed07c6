package dataset

import (
	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
)

// resolveColumn locates which manifest entry owns path and validates it
// resolves to a leaf in the merged schema.
func resolveColumn(v *view, path schema.PathTuple) (manifestEntry, error) {
	if len(path) == 0 {
		return manifestEntry{}, dserr.InvalidPath("column path must not be empty")
	}
	top, ok := path[0].(string)
	if !ok {
		return manifestEntry{}, dserr.InvalidPath("column path must start with a field name, got %v", path[0])
	}

	if top == schema.UUIDColumn {
		if v.manifest.DataSchema.GetField(path) == nil {
			return manifestEntry{}, dserr.InvalidPath("path %v does not resolve", path)
		}
		return v.sourceEntry(), nil
	}

	entry, ok := v.entryFor(top)
	if !ok {
		return manifestEntry{}, dserr.InvalidPath("path %v does not resolve in the merged schema", path)
	}
	if v.manifest.DataSchema.LeafAt(path) == nil {
		return manifestEntry{}, dserr.InvalidPath("path %v traverses a primitive or does not resolve to a leaf", path)
	}
	return entry, nil
}

// extractPath navigates row (a full manifest-entry row, i.e. a struct keyed
// by that entry's own top-level fields) along path, returning the value
// found there. Wildcard segments fan out into a List of the values at each
// matching position, preserving nesting shape.
func extractPath(row value.Value, path schema.PathTuple) value.Value {
	if len(path) == 0 {
		return row
	}
	part := path[0]
	rest := path[1:]

	if part == schema.Wildcard {
		if row.Kind() != value.KindList {
			return value.Null()
		}
		items := make([]value.Value, len(row.List()))
		for i, e := range row.List() {
			items[i] = extractPath(e, rest)
		}
		return value.List(items)
	}

	name, ok := part.(string)
	if !ok {
		return value.Null()
	}
	if name == schema.ValueKey {
		if child := row.Field(schema.ValueKey); !child.IsNull() || hasField(row, schema.ValueKey) {
			return extractPath(child, rest)
		}
		return extractPath(row, rest)
	}
	return extractPath(row.Field(name), rest)
}

func hasField(v value.Value, name string) bool {
	if v.Kind() != value.KindStruct {
		return false
	}
	for _, k := range v.Keys() {
		if k == name {
			return true
		}
	}
	return false
}

// resolveSpan resolves a STRING_SPAN leaf's row value {start, end} against
// the source string it was derived from, returning the substring it marks.
func resolveSpan(span value.Value, source string) (value.Value, error) {
	if span.IsNull() {
		return value.Null(), nil
	}
	start := span.Field(schema.TextSpanStartFeature)
	end := span.Field(schema.TextSpanEndFeature)
	if start.IsNull() || end.IsNull() {
		return value.Null(), dserr.InvalidPath("span value missing start/end fields")
	}
	runes := []rune(source)
	s, e := int(start.Int()), int(end.Int())
	if s < 0 || e > len(runes) || s > e {
		return value.Null(), dserr.InvalidPath("span (%d,%d) out of bounds for a %d-rune source", s, e, len(runes))
	}
	// start/end are 0-indexed with an exclusive end, so runes[s:e] is exact.
	return value.String(string(runes[s:e])), nil
}

// listDepth returns v's nesting depth: 0 for a non-list, else 1 plus the
// deepest element's depth.
func listDepth(v value.Value) int {
	if v.Kind() != value.KindList {
		return 0
	}
	depth := 1
	for _, e := range v.List() {
		if d := listDepth(e) + 1; d > depth {
			depth = d
		}
	}
	return depth
}

// flattenOneLevel merges one level of list nesting: each list element that is
// itself a list has its elements spliced into the parent in place; scalar
// elements pass through unchanged.
func flattenOneLevel(v value.Value) value.Value {
	if v.Kind() != value.KindList {
		return v
	}
	var out []value.Value
	for _, e := range v.List() {
		if e.Kind() == value.KindList {
			out = append(out, e.List()...)
		} else {
			out = append(out, e)
		}
	}
	return value.List(out)
}

// flattenReduce applies a Flatten column's reshape to one row's raw value.
// Counting the result's row dimension as the outermost list level, a value
// nested three levels deep or more (local depth >= 2) is merged one level;
// a value that is still a list after that (local depth >= 1) gets unnested
// into one output row per element by the caller.
func flattenReduce(v value.Value) value.Value {
	if listDepth(v) >= 2 {
		return flattenOneLevel(v)
	}
	return v
}
