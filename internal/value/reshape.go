package value

import "github.com/rowlake/dataset/internal/schema"

// CompositeKey addresses a single leaf position within a (possibly
// wildcard-nested) column: the row uuid followed by zero or more list
// indices.
type CompositeKey struct {
	UUID    string
	Indices []int
}

// Flatten recursively descends into nested Lists across every row, collecting
// leaf (non-list) values in traversal order. This turns an arbitrarily
// wildcard-nested column into the flat sequence a signal's compute()
// consumes.
func Flatten(rows []Value) []Value {
	var out []Value
	for _, row := range rows {
		flattenInto(row, &out)
	}
	return out
}

func flattenInto(v Value, out *[]Value) {
	if v.Kind() == KindList {
		for _, e := range v.List() {
			flattenInto(e, out)
		}
		return
	}
	*out = append(*out, v)
}

// FlattenKeys builds one CompositeKey per leaf position, in the same
// traversal order as Flatten, so a flat signal output at position i can be
// addressed back to (uuid, nested indices).
func FlattenKeys(uuids []string, rows []Value) []CompositeKey {
	var out []CompositeKey
	for i, row := range rows {
		flattenKeysInto(uuids[i], row, nil, &out)
	}
	return out
}

func flattenKeysInto(uuid string, v Value, indices []int, out *[]CompositeKey) {
	if v.Kind() == KindList {
		for i, e := range v.List() {
			flattenKeysInto(uuid, e, append(append([]int{}, indices...), i), out)
		}
		return
	}
	key := CompositeKey{UUID: uuid, Indices: append([]int{}, indices...)}
	*out = append(*out, key)
}

// Unflatten consumes values from flat in order, rebuilding each row's nested
// list shape from the corresponding entry in shape. Used to re-nest a flat
// signal output back onto its wildcard-shaped input column.
func Unflatten(flat []Value, shape []Value) []Value {
	idx := 0
	out := make([]Value, len(shape))
	for i, s := range shape {
		out[i] = unflattenOne(s, flat, &idx)
	}
	return out
}

func unflattenOne(shapeVal Value, flat []Value, idx *int) Value {
	if shapeVal.Kind() == KindList {
		items := make([]Value, len(shapeVal.List()))
		for i, e := range shapeVal.List() {
			items[i] = unflattenOne(e, flat, idx)
		}
		return List(items)
	}
	if *idx >= len(flat) {
		return Null()
	}
	v := flat[*idx]
	*idx++
	return v
}

// WrapInDicts wraps a row's already-list-shaped value into nested structs
// matching the destination path's subpath segments (as produced by
// schema.SplitAtWildcards on the enriched path), so the result can be
// persisted as a column-group document shaped like the destination schema.
func WrapInDicts(v Value, spec []schema.PathTuple) Value {
	if len(spec) == 0 {
		return v
	}
	seg := spec[0]
	rest := spec[1:]

	var inner Value
	if len(rest) == 0 {
		inner = v
	} else if v.Kind() == KindList {
		items := make([]Value, len(v.List()))
		for i, e := range v.List() {
			items[i] = WrapInDicts(e, rest)
		}
		inner = List(items)
	} else {
		inner = WrapInDicts(v, rest)
	}

	return wrapPath(inner, seg)
}

func wrapPath(v Value, seg schema.PathTuple) Value {
	cur := v
	for i := len(seg) - 1; i >= 0; i-- {
		name, _ := seg[i].(string)
		cur = Struct([]string{name}, map[string]Value{name: cur})
	}
	return cur
}
