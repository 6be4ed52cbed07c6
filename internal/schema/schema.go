// Package schema implements the typed nested schema and path algebra that
// underlies the dataset engine's logical view: struct/repeated/leaf fields,
// path normalization, leaf lookup, and schema merging.
package schema

import "github.com/rowlake/dataset/internal/dserr"

// DataType is a leaf's primitive type.
type DataType string

const (
	DataTypeString     DataType = "string"
	DataTypeInt8       DataType = "int8"
	DataTypeInt16      DataType = "int16"
	DataTypeInt32      DataType = "int32"
	DataTypeInt64      DataType = "int64"
	DataTypeFloat32    DataType = "float32"
	DataTypeFloat64    DataType = "float64"
	DataTypeBoolean    DataType = "boolean"
	DataTypeBinary     DataType = "binary"
	DataTypeEmbedding  DataType = "embedding"
	DataTypeStringSpan DataType = "string_span"
)

// IsFloat reports whether dt is one of the floating point types.
func IsFloat(dt DataType) bool { return dt == DataTypeFloat32 || dt == DataTypeFloat64 }

// IsInteger reports whether dt is one of the integer types.
func IsInteger(dt DataType) bool {
	switch dt {
	case DataTypeInt8, DataTypeInt16, DataTypeInt32, DataTypeInt64:
		return true
	default:
		return false
	}
}

// IsOrdinal reports whether dt supports MIN/MAX comparison.
func IsOrdinal(dt DataType) bool { return IsFloat(dt) || IsInteger(dt) }

const (
	// ValueKey is the reserved child name used to address the scalar payload
	// of a leaf that also carries sibling metadata (e.g. spans).
	ValueKey = "__value__"
	// Wildcard means "all elements of the enclosing repeated field".
	Wildcard = "*"
	// UUIDColumn is the row-identity column present in the source and every
	// signal manifest.
	UUIDColumn = "uuid"

	// TextSpanStartFeature and TextSpanEndFeature are the companion integer
	// fields carried by every STRING_SPAN leaf.
	TextSpanStartFeature = "start"
	TextSpanEndFeature   = "end"
)

// SignalDescriptor marks a field as the root of a signal-enrichment subtree.
type SignalDescriptor struct {
	Name   string         `json:"signal_name"`
	Params map[string]any `json:"params,omitempty"`
}

// Field is a tagged variant of struct / repeated / leaf. Exactly one of
// Fields, Repeated, or Dtype is set (struct / repeated / leaf respectively).
type Field struct {
	// Fields holds child fields, ordered by FieldOrder, when this is a struct.
	Fields     map[string]*Field `json:"fields,omitempty"`
	FieldOrder []string          `json:"-"`

	// Repeated holds the inner field when this is a repeated (list) field.
	Repeated *Field `json:"repeated_field,omitempty"`

	// Dtype is set when this is a leaf.
	Dtype DataType `json:"dtype,omitempty"`

	// Signal is non-nil when this field is the root of a signal-enrichment subtree.
	Signal *SignalDescriptor `json:"signal,omitempty"`
}

// IsLeaf reports whether f is a primitive leaf.
func (f *Field) IsLeaf() bool { return f != nil && f.Dtype != "" }

// IsRepeated reports whether f is a list field.
func (f *Field) IsRepeated() bool { return f != nil && f.Repeated != nil }

// IsStruct reports whether f is a struct field.
func (f *Field) IsStruct() bool { return f != nil && f.Fields != nil }

// NewStructField builds a struct Field from an ordered list of (name, field) pairs.
func NewStructField(names []string, fields map[string]*Field) *Field {
	return &Field{Fields: fields, FieldOrder: append([]string(nil), names...)}
}

// NewRepeatedField wraps inner as a repeated field.
func NewRepeatedField(inner *Field) *Field {
	return &Field{Repeated: inner}
}

// NewLeaf builds a primitive leaf field.
func NewLeaf(dt DataType) *Field {
	return &Field{Dtype: dt}
}

// Schema is a named mapping of top-level fields, exactly like a struct Field
// at the root.
type Schema struct {
	Fields     map[string]*Field `json:"fields"`
	FieldOrder []string          `json:"-"`
}

// NewSchema builds a schema from an ordered list of (name, field) pairs.
func NewSchema(names []string, fields map[string]*Field) *Schema {
	return &Schema{Fields: fields, FieldOrder: append([]string(nil), names...)}
}

// RootField returns the schema as an unnamed struct Field, convenient for
// recursive path traversal starting at the root.
func (s *Schema) RootField() *Field {
	return &Field{Fields: s.Fields, FieldOrder: s.FieldOrder}
}

// GetField walks path from the schema root and returns the Field found there,
// or nil if the path does not resolve.
func (s *Schema) GetField(path PathTuple) *Field {
	return getField(s.RootField(), path)
}

func getField(field *Field, path PathTuple) *Field {
	cur := field
	for _, part := range path {
		switch {
		case cur.IsStruct():
			name, ok := part.(string)
			if !ok {
				return nil
			}
			next, ok := cur.Fields[name]
			if !ok && name == ValueKey {
				// No literal __value__ child: this struct predates signal
				// enrichment of this subtree, so VALUE is a no-op addressing
				// the struct itself.
				continue
			}
			if !ok {
				return nil
			}
			cur = next
		case cur.IsRepeated():
			cur = cur.Repeated
		case part == ValueKey:
			// A plain leaf is addressable as both its parent path and
			// (parent, VALUE); VALUE is then a no-op.
			continue
		default:
			return nil
		}
	}
	return cur
}

// Leafs returns every leaf in the schema keyed by its full normalized path,
// with wildcard placeholders in place of repeated-field indices.
func (s *Schema) Leafs() map[string]*Field {
	out := map[string]*Field{}
	collectLeafs(s.RootField(), nil, out)
	return out
}

func collectLeafs(field *Field, prefix PathTuple, out map[string]*Field) {
	switch {
	case field.IsStruct():
		for name, child := range field.Fields {
			collectLeafs(child, append(append(PathTuple{}, prefix...), name), out)
		}
	case field.IsRepeated():
		collectLeafs(field.Repeated, append(append(PathTuple{}, prefix...), Wildcard), out)
	case field.IsLeaf():
		out[pathKey(prefix)] = field
	}
}

// LeafAt returns the leaf Field at path, or nil if path does not resolve to a leaf.
func (s *Schema) LeafAt(path PathTuple) *Field {
	f := s.GetField(path)
	if f != nil && f.IsLeaf() {
		return f
	}
	return nil
}

// PathPart is either a field name (string), a non-negative index (int), or
// the wildcard sentinel.
type PathPart = any

// PathTuple is a normalized path: a sequence of field names, indices, or wildcards.
type PathTuple []PathPart

// Path is anything NormalizePath can turn into a PathTuple: a bare string, a
// []string, or an already-built PathTuple.
type Path any

// NormalizePath forces a scalar path into a one-element PathTuple and leaves
// an already-tupled path untouched.
func NormalizePath(p Path) PathTuple {
	switch v := p.(type) {
	case PathTuple:
		return v
	case []string:
		out := make(PathTuple, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []any:
		return PathTuple(v)
	case string:
		return PathTuple{v}
	default:
		return PathTuple{v}
	}
}

func pathKey(p PathTuple) string {
	key := ""
	for i, part := range p {
		if i > 0 {
			key += "."
		}
		switch v := part.(type) {
		case string:
			key += v
		default:
			key += "#"
		}
	}
	return key
}

// SplitAtWildcards splits path into sub-paths at each wildcard boundary.
// E.g. (a,b,c,*,d,*,*) -> [(a,b,c), (d,), (), ()].
func SplitAtWildcards(path PathTuple) []PathTuple {
	var subPaths []PathTuple
	offset := 0
	for offset <= len(path) {
		newOffset := len(path)
		for i := offset; i < len(path); i++ {
			if s, ok := path[i].(string); ok && s == Wildcard {
				newOffset = i
				break
			}
		}
		subPaths = append(subPaths, append(PathTuple{}, path[offset:newOffset]...))
		offset = newOffset + 1
	}
	return subPaths
}

// MakeValuePath appends ValueKey to path unless it is already there or the
// path is the uuid column.
func MakeValuePath(path PathTuple) PathTuple {
	if len(path) == 0 {
		return path
	}
	last := path[len(path)-1]
	first := path[0]
	if last == ValueKey {
		return path
	}
	if s, ok := first.(string); ok && s == UUIDColumn {
		return path
	}
	out := append(PathTuple{}, path...)
	return append(out, ValueKey)
}

// DerivedFromPath walks up from path to the nearest ancestor signal root and
// returns the source path it was enriched from: a span leaf is "derived
// from" the ancestor signal root's parent string.
func DerivedFromPath(path PathTuple, s *Schema) (PathTuple, error) {
	for i := len(path); i > 0; i-- {
		sub := path[:i]
		f := s.GetField(sub)
		if f != nil && f.Signal != nil {
			return MakeValuePath(sub[:len(sub)-1]), nil
		}
	}
	return nil, dserr.InvalidPath("cannot find the source path for the enriched path %v", path)
}

// ContainsPath reports whether path resolves to something in s.
func ContainsPath(s *Schema, path PathTuple) bool {
	return s.GetField(path) != nil
}
