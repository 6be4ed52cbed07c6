package dataset

import (
	"testing"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
)

func TestExtractPathWildcardFanOut(t *testing.T) {
	row := value.Struct([]string{"doc"}, map[string]value.Value{
		"doc": value.Struct([]string{"sentences"}, map[string]value.Value{
			"sentences": value.List([]value.Value{
				value.Struct([]string{"text"}, map[string]value.Value{"text": value.String("a")}),
				value.Struct([]string{"text"}, map[string]value.Value{"text": value.String("b")}),
			}),
		}),
	})
	got := extractPath(row, schema.PathTuple{"doc", "sentences", schema.Wildcard, "text"})
	if got.Kind() != value.KindList || len(got.List()) != 2 {
		t.Fatalf("want a 2-element list, got %+v", got)
	}
	if got.List()[0].Str() != "a" || got.List()[1].Str() != "b" {
		t.Fatalf("unexpected values: %v, %v", got.List()[0].Str(), got.List()[1].Str())
	}
}

func TestExtractPathValueKeyNoOpOnPlainLeaf(t *testing.T) {
	row := value.Struct([]string{"doc"}, map[string]value.Value{
		"doc": value.Struct([]string{"text"}, map[string]value.Value{"text": value.String("hi")}),
	})
	viaValue := extractPath(row, schema.PathTuple{"doc", "text", schema.ValueKey})
	direct := extractPath(row, schema.PathTuple{"doc", "text"})
	if viaValue.Str() != direct.Str() {
		t.Fatalf("VALUE-suffixed path should resolve the same as the direct path: %q vs %q", viaValue.Str(), direct.Str())
	}
}

func TestHasField(t *testing.T) {
	s := value.Struct([]string{"a", "b"}, map[string]value.Value{"a": value.Int(1), "b": value.Int(2)})
	if !hasField(s, "a") {
		t.Fatal("want hasField(s, \"a\") true")
	}
	if hasField(s, "c") {
		t.Fatal("want hasField(s, \"c\") false")
	}
	if hasField(value.String("x"), "a") {
		t.Fatal("want hasField false for a non-struct value")
	}
}

func TestResolveSpan(t *testing.T) {
	source := "Hello world"
	span := value.Struct([]string{schema.TextSpanStartFeature, schema.TextSpanEndFeature}, map[string]value.Value{
		schema.TextSpanStartFeature: value.Int(6),
		schema.TextSpanEndFeature:   value.Int(11),
	})
	got, err := resolveSpan(span, source)
	if err != nil {
		t.Fatalf("resolveSpan: %v", err)
	}
	if got.Str() != "world" {
		t.Fatalf("want %q, got %q", "world", got.Str())
	}
}

func TestResolveSpanNullPassesThrough(t *testing.T) {
	got, err := resolveSpan(value.Null(), "anything")
	if err != nil {
		t.Fatalf("resolveSpan: %v", err)
	}
	if !got.IsNull() {
		t.Fatalf("want Null, got %+v", got)
	}
}

func TestResolveSpanOutOfBounds(t *testing.T) {
	span := value.Struct([]string{schema.TextSpanStartFeature, schema.TextSpanEndFeature}, map[string]value.Value{
		schema.TextSpanStartFeature: value.Int(0),
		schema.TextSpanEndFeature:   value.Int(100),
	})
	_, err := resolveSpan(span, "short")
	if err == nil {
		t.Fatal("want an error for an out-of-bounds span")
	}
	de, ok := err.(*dserr.Error)
	if !ok || de.Kind() != dserr.KindInvalidPath {
		t.Fatalf("want INVALID_PATH, got %v", err)
	}
}

func TestListDepth(t *testing.T) {
	cases := []struct {
		name string
		v    value.Value
		want int
	}{
		{"scalar", value.String("a"), 0},
		{"flat list", value.List([]value.Value{value.String("a"), value.String("b")}), 1},
		{"nested list", value.List([]value.Value{value.List([]value.Value{value.String("a")})}), 2},
	}
	for _, c := range cases {
		if got := listDepth(c.v); got != c.want {
			t.Errorf("%s: listDepth = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestFlattenOneLevel(t *testing.T) {
	nested := value.List([]value.Value{
		value.List([]value.Value{value.String("a"), value.String("b")}),
		value.List([]value.Value{value.String("c")}),
	})
	got := flattenOneLevel(nested)
	if len(got.List()) != 3 {
		t.Fatalf("want 3 spliced elements, got %d", len(got.List()))
	}
	if got.List()[0].Str() != "a" || got.List()[1].Str() != "b" || got.List()[2].Str() != "c" {
		t.Fatalf("unexpected splice order: %+v", got.List())
	}
}

func TestFlattenReduceLeavesShallowListAlone(t *testing.T) {
	flat := value.List([]value.Value{value.String("a"), value.String("b")})
	got := flattenReduce(flat)
	if len(got.List()) != 2 || got.List()[0].Str() != "a" {
		t.Fatalf("want the shallow list unchanged, got %+v", got)
	}
}

func TestFlattenReduceMergesOneLevel(t *testing.T) {
	nested := value.List([]value.Value{
		value.List([]value.Value{value.String("a"), value.String("b")}),
		value.List([]value.Value{value.String("c")}),
	})
	got := flattenReduce(nested)
	if listDepth(got) != 1 {
		t.Fatalf("want depth reduced to 1, got %d", listDepth(got))
	}
	if len(got.List()) != 3 {
		t.Fatalf("want 3 merged elements, got %d", len(got.List()))
	}
}

func TestResolveColumnRejectsEmptyPath(t *testing.T) {
	_, err := resolveColumn(&view{manifest: DatasetManifest{DataSchema: articleSchema()}}, schema.PathTuple{})
	if err == nil {
		t.Fatal("want an error for an empty path")
	}
	de, ok := err.(*dserr.Error)
	if !ok || de.Kind() != dserr.KindInvalidPath {
		t.Fatalf("want INVALID_PATH, got %v", err)
	}
}
