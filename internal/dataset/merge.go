package dataset

import (
	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/value"
)

// MergeValues implements the cell-wise merge rule for combining two column
// groups' values for the same row: dicts merge key-by-key, lists
// merge element-by-element, and primitives must agree (a Null or NaN source
// cell is skipped; a Null destination cell is replaced by a non-null
// source). Disagreeing primitives raise MergeConflict.
func MergeValues(dst, src value.Value) (value.Value, error) {
	if src.IsNull() || src.IsNaN() {
		return dst, nil
	}
	if dst.IsNull() {
		return src, nil
	}

	if dst.Kind() == value.KindStruct && src.Kind() == value.KindStruct {
		order := append([]string(nil), dst.Keys()...)
		fields := make(map[string]value.Value, len(dst.Keys()))
		for _, k := range dst.Keys() {
			fields[k] = dst.Field(k)
		}
		for _, k := range src.Keys() {
			sv := src.Field(k)
			if dv, ok := fields[k]; ok {
				merged, err := MergeValues(dv, sv)
				if err != nil {
					return value.Value{}, err
				}
				fields[k] = merged
				continue
			}
			fields[k] = sv
			order = append(order, k)
		}
		return value.Struct(order, fields), nil
	}

	if dst.Kind() == value.KindList && src.Kind() == value.KindList {
		dl, sl := dst.List(), src.List()
		n := len(dl)
		if len(sl) > n {
			n = len(sl)
		}
		items := make([]value.Value, n)
		for i := 0; i < n; i++ {
			dv, sv := value.Null(), value.Null()
			if i < len(dl) {
				dv = dl[i]
			}
			if i < len(sl) {
				sv = sl[i]
			}
			merged, err := MergeValues(dv, sv)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = merged
		}
		return value.List(items), nil
	}

	if dst.Kind() != src.Kind() {
		return value.Value{}, dserr.MergeConflict("conflicting shapes: %v vs %v", dst.Kind(), src.Kind())
	}
	if value.Equal(dst, src) {
		return dst, nil
	}
	return value.Value{}, dserr.MergeConflict("conflicting scalar values")
}

// combineColumns promotes a row's per-alias column values into a single
// nested record under the synthetic "*" key, merging any overlapping
// sub-paths the requested columns share.
func combineColumns(columns []string, values map[string]value.Value) (value.Value, error) {
	merged := value.Null()
	for _, alias := range columns {
		v, ok := values[alias]
		if !ok {
			continue
		}
		wrapped := value.Struct([]string{alias}, map[string]value.Value{alias: v})
		next, err := MergeValues(merged, wrapped)
		if err != nil {
			return value.Value{}, err
		}
		merged = next
	}
	return merged, nil
}
