// Package value implements the dynamic row-value representation: a tagged
// union standing in for dynamically-typed nested dicts/lists, plus the
// flatten/unflatten/wrap helpers the selection and UDF-execution pipeline
// depends on.
package value

import (
	"bytes"
	"encoding/json"
	"math"
)

// Kind tags the variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindStruct
)

// Value is Null | Bool | Int | Float | String | Bytes | List(Value) | Struct(map).
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	by     []byte
	list   []Value
	strct  map[string]Value
	order  []string
}

func Null() Value { return Value{kind: KindNull} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value { return Value{kind: KindBytes, by: b} }
func List(items []Value) Value { return Value{kind: KindList, list: items} }

// Struct builds a struct value from an ordered list of keys paired with vals.
func Struct(keys []string, vals map[string]Value) Value {
	return Value{kind: KindStruct, strct: vals, order: append([]string(nil), keys...)}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool { return v.b }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Str() string { return v.s }
func (v Value) Byte() []byte { return v.by }
func (v Value) List() []Value { return v.list }
func (v Value) Keys() []string { return v.order }

// Field returns the named struct field, or Null if absent/not-a-struct.
func (v Value) Field(name string) Value {
	if v.kind != KindStruct {
		return Null()
	}
	if f, ok := v.strct[name]; ok {
		return f
	}
	return Null()
}

// WithField returns a copy of v with field name set to val, preserving
// key order (appending name if new).
func (v Value) WithField(name string, val Value) Value {
	strct := map[string]Value{}
	var order []string
	if v.kind == KindStruct {
		for k, vv := range v.strct {
			strct[k] = vv
		}
		order = append(order, v.order...)
	}
	if _, exists := strct[name]; !exists {
		order = append(order, name)
	}
	strct[name] = val
	return Struct(order, strct)
}

// IsNaN reports whether v is a float NaN, treated the same as Null when
// merging two column groups' values for the same row.
func (v Value) IsNaN() bool {
	return v.kind == KindFloat && math.IsNaN(v.f)
}

// Equal reports whether two primitive values are equal. Numeric values are
// compared across int/float representations without losing precision, so
// "1" and "1.0" compare equal.
func Equal(a, b Value) bool {
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == b.kind
	}
	if isNumeric(a.kind) && isNumeric(b.kind) {
		if a.kind == KindInt && b.kind == KindInt {
			return a.i == b.i
		}
		if a.kind == KindInt || b.kind == KindInt {
			// Mixed int/float: equal only when the float holds exactly that
			// integer, so large ints are not rounded through float64.
			i, f := a.i, numericValue(b)
			if b.kind == KindInt {
				i, f = b.i, numericValue(a)
			}
			return f == math.Trunc(f) && f >= -(1<<63) && f < 1<<63 && int64(f) == i
		}
		return numericValue(a) == numericValue(b)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytes.Equal(a.by, b.by)
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }

func numericValue(v Value) float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindBytes:
		return json.Marshal(v.by)
	case KindList:
		return json.Marshal(v.list)
	case KindStruct:
		buf := bytes.NewBufferString("{")
		keys := v.order
		if len(keys) != len(v.strct) {
			keys = keys[:0]
			for k := range v.strct {
				keys = append(keys, k)
			}
		}
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.strct[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler, decoding a jsonb document into
// the tagged Value representation.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts a decoded-JSON `any` (as produced by json.Decoder with
// UseNumber) into a Value.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return List(items)
	case map[string]any:
		strct := map[string]Value{}
		order := make([]string, 0, len(t))
		for k, e := range t {
			strct[k] = FromAny(e)
			order = append(order, k)
		}
		return Struct(order, strct)
	default:
		return Null()
	}
}
