package schema

import "github.com/rowlake/dataset/internal/dserr"

// MergeSchemas merges the source schema with any number of signal schemas,
// inserting each signal's single root field as an additional top-level field.
// Conflicting shapes at the same top-level name raise InvalidSchema.
func MergeSchemas(schemas ...*Schema) (*Schema, error) {
	fields := map[string]*Field{}
	var order []string

	for _, s := range schemas {
		if s == nil {
			continue
		}
		for _, name := range fieldOrder(s) {
			field := s.Fields[name]
			existing, ok := fields[name]
			if !ok {
				fields[name] = field
				order = append(order, name)
				continue
			}
			merged, err := mergeField(name, existing, field)
			if err != nil {
				return nil, err
			}
			fields[name] = merged
		}
	}

	return NewSchema(order, fields), nil
}

func fieldOrder(s *Schema) []string {
	if len(s.FieldOrder) == len(s.Fields) {
		return s.FieldOrder
	}
	// Fall back to map iteration when the schema wasn't built with NewSchema
	// (e.g. after JSON unmarshaling).
	out := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		out = append(out, name)
	}
	return out
}

func mergeField(name string, a, b *Field) (*Field, error) {
	switch {
	case a.IsLeaf() && b.IsLeaf():
		if a.Dtype != b.Dtype {
			return nil, dserr.InvalidSchema("field %q: conflicting leaf dtypes %s vs %s", name, a.Dtype, b.Dtype)
		}
		return a, nil
	case a.IsRepeated() && b.IsRepeated():
		inner, err := mergeField(name, a.Repeated, b.Repeated)
		if err != nil {
			return nil, err
		}
		return NewRepeatedField(inner), nil
	case a.IsStruct() && b.IsStruct():
		fields := map[string]*Field{}
		var order []string
		for _, n := range a.FieldOrder {
			fields[n] = a.Fields[n]
			order = append(order, n)
		}
		for _, n := range b.FieldOrder {
			if existing, ok := fields[n]; ok {
				merged, err := mergeField(n, existing, b.Fields[n])
				if err != nil {
					return nil, err
				}
				fields[n] = merged
				continue
			}
			fields[n] = b.Fields[n]
			order = append(order, n)
		}
		return NewStructField(order, fields), nil
	default:
		return nil, dserr.InvalidSchema("field %q: conflicting shapes (struct/repeated/leaf)", name)
	}
}
