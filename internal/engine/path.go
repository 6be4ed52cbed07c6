package engine

import (
	"strings"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
)

// ColumnExpr returns the jsonb text-extraction SQL expression addressing
// path within the `data` column, e.g. path (a,b,c) -> data#>>'{a,b,c}'.
// Wildcard-free paths only: the planner rejects wildcards in
// filter/sort paths before calling this, except for EXISTS, which uses
// JSONPathExists instead.
func ColumnExpr(path schema.PathTuple) (string, error) {
	parts, err := stringParts(path)
	if err != nil {
		return "", err
	}
	return "data#>>'{" + strings.Join(parts, ",") + "}'", nil
}

// JSONPathExists returns a boolean SQL predicate true when any element
// reachable via path (which may contain wildcards) is non-null, using
// Postgres's jsonpath `@?` existence operator.
func JSONPathExists(path schema.PathTuple) (string, error) {
	var segs []string
	for _, part := range path {
		if s, ok := part.(string); ok && s == schema.Wildcard {
			segs = append(segs, "[*]")
			continue
		}
		s, ok := part.(string)
		if !ok {
			return "", dserr.InvalidPath("EXISTS path segment %v is not a field name or wildcard", part)
		}
		segs = append(segs, "."+s)
	}
	return "data @? '$" + strings.Join(segs, "") + " ? (@ != null)'", nil
}

func stringParts(path schema.PathTuple) ([]string, error) {
	parts := make([]string, 0, len(path))
	for _, part := range path {
		s, ok := part.(string)
		if !ok || s == schema.Wildcard {
			return nil, dserr.InvalidPath("path %v contains a wildcard or non-field segment where a scalar field is required", path)
		}
		// Field names are validated against the same identifier pattern as
		// table names: every path segment here is embedded directly into the
		// jsonb extraction literal, so this is the only guard against a
		// field name breaking out of the '{...}' path syntax.
		if !identPattern.MatchString(s) && s != schema.UUIDColumn {
			return nil, dserr.InvalidPath("path segment %q is not a valid field name", s)
		}
		parts = append(parts, s)
	}
	return parts, nil
}
