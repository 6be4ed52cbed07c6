package schema

import (
	"reflect"
	"testing"
)

func TestSplitAtWildcards(t *testing.T) {
	path := PathTuple{"a", "b", "c", Wildcard, "d", Wildcard, Wildcard}
	got := SplitAtWildcards(path)
	want := []PathTuple{
		{"a", "b", "c"},
		{"d"},
		{},
		{},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sub-paths, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !reflect.DeepEqual([]PathPart(got[i]), []PathPart(want[i])) {
			t.Errorf("subpath %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNormalizePath(t *testing.T) {
	got := NormalizePath("uuid")
	want := PathTuple{"uuid"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizePath(scalar) = %v, want %v", got, want)
	}
}

func TestMakeValuePath(t *testing.T) {
	tests := []struct {
		in   PathTuple
		want PathTuple
	}{
		{PathTuple{"text"}, PathTuple{"text", ValueKey}},
		{PathTuple{"text", ValueKey}, PathTuple{"text", ValueKey}},
		{PathTuple{UUIDColumn}, PathTuple{UUIDColumn}},
	}
	for _, tt := range tests {
		got := MakeValuePath(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("MakeValuePath(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func buildDocSchema() *Schema {
	sentence := NewStructField([]string{"text"}, map[string]*Field{
		"text": NewLeaf(DataTypeString),
	})
	doc := NewStructField([]string{"sentences"}, map[string]*Field{
		"sentences": NewRepeatedField(sentence),
	})
	return NewSchema([]string{"uuid", "doc"}, map[string]*Field{
		"uuid": NewLeaf(DataTypeString),
		"doc":  doc,
	})
}

func TestGetFieldThroughWildcard(t *testing.T) {
	s := buildDocSchema()
	f := s.GetField(PathTuple{"doc", "sentences", Wildcard, "text"})
	if f == nil || !f.IsLeaf() || f.Dtype != DataTypeString {
		t.Fatalf("expected to resolve a string leaf, got %+v", f)
	}
}

func TestLeafs(t *testing.T) {
	s := buildDocSchema()
	leafs := s.Leafs()
	if _, ok := leafs["uuid"]; !ok {
		t.Errorf("expected uuid leaf, got %v", leafs)
	}
	if _, ok := leafs["doc.sentences.*.text"]; !ok {
		t.Errorf("expected doc.sentences.*.text leaf, got %v", leafs)
	}
}

func TestMergeSchemasInsertsSignalRoot(t *testing.T) {
	source := NewSchema([]string{"uuid", "text"}, map[string]*Field{
		"uuid": NewLeaf(DataTypeString),
		"text": NewLeaf(DataTypeString),
	})
	signalRoot := NewStructField([]string{ValueKey}, map[string]*Field{
		ValueKey: NewLeaf(DataTypeInt64),
	})
	signalRoot.Signal = &SignalDescriptor{Name: "len"}
	signal := NewSchema([]string{"uuid", "len"}, map[string]*Field{
		"uuid": NewLeaf(DataTypeString),
		"len":  signalRoot,
	})

	merged, err := MergeSchemas(source, signal)
	if err != nil {
		t.Fatalf("MergeSchemas: %v", err)
	}
	if _, ok := merged.Fields["len"]; !ok {
		t.Fatalf("expected merged schema to contain signal root %q", "len")
	}
	if _, ok := merged.Fields["text"]; !ok {
		t.Fatalf("expected merged schema to keep source field %q", "text")
	}
}

func TestMergeSchemasConflict(t *testing.T) {
	a := NewSchema([]string{"x"}, map[string]*Field{"x": NewLeaf(DataTypeString)})
	b := NewSchema([]string{"x"}, map[string]*Field{"x": NewLeaf(DataTypeInt64)})
	if _, err := MergeSchemas(a, b); err == nil {
		t.Fatal("expected conflicting dtype merge to fail")
	}
}

func TestDerivedFromPath(t *testing.T) {
	// "text" is enriched by a "splitter" signal, so its leaf becomes a struct
	// hosting __value__ (the original string) alongside the signal root.
	span := NewLeaf(DataTypeStringSpan)
	splitterRoot := NewStructField([]string{"span"}, map[string]*Field{"span": span})
	splitterRoot.Signal = &SignalDescriptor{Name: "splitter"}
	text := NewStructField([]string{ValueKey, "splitter"}, map[string]*Field{
		ValueKey:   NewLeaf(DataTypeString),
		"splitter": splitterRoot,
	})
	s := NewSchema([]string{"uuid", "text"}, map[string]*Field{
		"uuid": NewLeaf(DataTypeString),
		"text": text,
	})
	got, err := DerivedFromPath(PathTuple{"text", "splitter", "span"}, s)
	if err != nil {
		t.Fatalf("DerivedFromPath: %v", err)
	}
	want := PathTuple{"text", ValueKey}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DerivedFromPath = %v, want %v", got, want)
	}
}
