package engine

import (
	"fmt"
	"strings"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
)

// Op is a filter comparison operator: the binary set = != > >= < <= IN,
// plus the unary EXISTS.
type Op string

const (
	OpEqual        Op = "="
	OpNotEqual     Op = "!="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpIn           Op = "IN"
	OpExists       Op = "EXISTS"
)

// Filter is one pre-UDF (or post-UDF, applied in Go instead) predicate.
type Filter struct {
	Path  schema.PathTuple
	Op    Op
	Value value.Value   // unused for EXISTS
	List  []value.Value // used only for IN
}

// CompileFilters AND-combines filters into a SQL WHERE fragment, returning
// the fragment and the positional args it references (numbered starting at
// argOffset+1).
func CompileFilters(filters []Filter, argOffset int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", argOffset+len(args))
	}

	for _, f := range filters {
		if f.Op == OpExists {
			pred, err := JSONPathExists(f.Path)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, pred)
			continue
		}

		col, err := ColumnExpr(f.Path)
		if err != nil {
			return "", nil, err
		}

		switch f.Op {
		case OpEqual, OpNotEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
			clauses = append(clauses, fmt.Sprintf("%s %s %s", col, string(f.Op), next(scalarArg(f.Value))))
		case OpIn:
			if len(f.List) == 0 {
				// An empty literal list matches nothing.
				clauses = append(clauses, "FALSE")
				continue
			}
			placeholders := make([]string, len(f.List))
			for i, v := range f.List {
				placeholders[i] = next(scalarArg(v))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
		default:
			return "", nil, dserr.InvalidFilter("unsupported filter operator %q", f.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

// scalarArg converts a filter literal to the Go value pgx binds it as. Every
// comparison is against the jsonb text-extraction expression, so every
// literal is passed as its textual form; type-appropriate escaping is then
// simply parameter binding rather than string literal construction (spec
// §4.3's "type-appropriate escaping" concern, resolved by never
// string-interpolating a literal into the SQL at all).
func scalarArg(v value.Value) any {
	switch v.Kind() {
	case value.KindString:
		return v.Str()
	case value.KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case value.KindInt:
		return fmt.Sprintf("%d", v.Int())
	case value.KindFloat:
		return fmt.Sprintf("%v", v.Float())
	case value.KindBytes:
		return string(v.Byte())
	default:
		return nil
	}
}
