package dataset

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/engine"
	"github.com/rowlake/dataset/internal/manifest"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/signal"
	"github.com/rowlake/dataset/internal/value"
)

// fakeRowSource is an in-memory RowSource standing in for a live Postgres
// connection: each table is a uuid-keyed slice of rows, in insertion order.
type fakeRowSource struct {
	tables map[string][]engine.Row
}

func newFakeRowSource() *fakeRowSource {
	return &fakeRowSource{tables: map[string][]engine.Row{}}
}

func (f *fakeRowSource) seed(table, uuid string, data value.Value) {
	f.tables[table] = append(f.tables[table], engine.Row{UUID: uuid, Data: data})
}

func (f *fakeRowSource) EnsureTable(_ context.Context, table string) error {
	if _, ok := f.tables[table]; !ok {
		f.tables[table] = nil
	}
	return nil
}

func (f *fakeRowSource) UpsertRows(_ context.Context, table string, uuids []string, rows []value.Value) error {
	index := map[string]int{}
	for i, r := range f.tables[table] {
		index[r.UUID] = i
	}
	for i, u := range uuids {
		if pos, ok := index[u]; ok {
			f.tables[table][pos].Data = rows[i]
			continue
		}
		f.tables[table] = append(f.tables[table], engine.Row{UUID: u, Data: rows[i]})
		index[u] = len(f.tables[table]) - 1
	}
	return nil
}

func (f *fakeRowSource) FetchAll(_ context.Context, table string) ([]engine.Row, error) {
	out := make([]engine.Row, len(f.tables[table]))
	copy(out, f.tables[table])
	return out, nil
}

func (f *fakeRowSource) FetchByUUIDs(_ context.Context, table string, uuids []string) ([]engine.Row, error) {
	byUUID := map[string]value.Value{}
	for _, r := range f.tables[table] {
		byUUID[r.UUID] = r.Data
	}
	out := make([]engine.Row, 0, len(uuids))
	for _, u := range uuids {
		if d, ok := byUUID[u]; ok {
			out = append(out, engine.Row{UUID: u, Data: d})
		}
	}
	return out, nil
}

// Query ignores WhereSQL/OrderBySQL (engine's own tests cover SQL
// compilation); it only honors Limit/Offset, adequate for exercising
// dataset's planning/join/UDF logic above the compiled SQL boundary.
func (f *fakeRowSource) Query(ctx context.Context, table string, opts engine.QueryOptions) ([]engine.Row, error) {
	rows, _ := f.FetchAll(ctx, table)
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil, nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(rows) {
		rows = rows[:opts.Limit]
	}
	return rows, nil
}

func articleSchema() *schema.Schema {
	return schema.NewSchema([]string{schema.UUIDColumn, "doc"}, map[string]*schema.Field{
		schema.UUIDColumn: schema.NewLeaf(schema.DataTypeString),
		"doc": schema.NewStructField([]string{"text", "sentences"}, map[string]*schema.Field{
			"text": schema.NewLeaf(schema.DataTypeString),
			"sentences": schema.NewRepeatedField(schema.NewStructField([]string{"text"}, map[string]*schema.Field{
				"text": schema.NewLeaf(schema.DataTypeString),
			})),
		}),
	})
}

// newFixtureDataset writes a source manifest to a temp directory and returns
// a Dataset over it backed by a fakeRowSource, so compose()'s on-disk
// manifest discovery exercises the real filesystem path while row data
// stays in memory.
func newFixtureDataset(t *testing.T) (*Dataset, *fakeRowSource) {
	t.Helper()
	dir := t.TempDir()
	sm := &manifest.SourceManifest{
		Namespace: "ns", DatasetName: "articles",
		DataSchema: articleSchema(), Files: []string{"source"},
	}
	data, err := json.MarshalIndent(sm, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.SourceManifestFilename), data, 0o644); err != nil {
		t.Fatal(err)
	}

	rows := newFakeRowSource()
	return New(rows, dir, 1000), rows
}

func articleRow(uuid, text string, sentences ...string) value.Value {
	items := make([]value.Value, len(sentences))
	for i, s := range sentences {
		items[i] = value.Struct([]string{"text"}, map[string]value.Value{"text": value.String(s)})
	}
	return value.Struct([]string{schema.UUIDColumn, "doc"}, map[string]value.Value{
		schema.UUIDColumn: value.String(uuid),
		"doc": value.Struct([]string{"text", "sentences"}, map[string]value.Value{
			"text":      value.String(text),
			"sentences": value.List(items),
		}),
	})
}

func TestSelectRowsWildcardFlattening(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "u1", articleRow("u1", "Hello world", "Hello", "world"))
	rows.seed("source", "u2", articleRow("u2", "Bye now", "Bye", "now"))

	batch, err := ds.SelectRows(context.Background(), SelectRowsRequest{
		Columns: []Column{{Path: schema.PathTuple{"doc", "sentences", schema.Wildcard, "text"}}},
	})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	if len(batch.Rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(batch.Rows))
	}
	got := batch.Rows[0].Values["text"]
	if got.Kind() != value.KindList || len(got.List()) != 2 {
		t.Fatalf("want a 2-element list, got %+v", got)
	}
	if got.List()[0].Str() != "Hello" || got.List()[1].Str() != "world" {
		t.Fatalf("unexpected flattened values: %v, %v", got.List()[0].Str(), got.List()[1].Str())
	}
}

// TestSelectRowsFlattenUnnestsRows covers scenario A: a wildcard-fanned
// column marked Flatten explodes into one output row per list element
// instead of preserving the nested-list shape.
func TestSelectRowsFlattenUnnestsRows(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "u1", articleRow("u1", "Hello world", "Hello", "world"))
	rows.seed("source", "u2", articleRow("u2", "Bye now", "Bye", "now"))

	batch, err := ds.SelectRows(context.Background(), SelectRowsRequest{
		Columns: []Column{{Path: schema.PathTuple{"doc", "sentences", schema.Wildcard, "text"}, Flatten: true}},
	})
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	if len(batch.Rows) != 4 {
		t.Fatalf("want 4 exploded rows, got %d", len(batch.Rows))
	}
	for _, r := range batch.Rows {
		if r.Values["text"].Kind() == value.KindList {
			t.Fatalf("want a scalar per row after flatten, got a list: %+v", r.Values["text"])
		}
	}
}

func TestSelectRowsInvalidPath(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "u1", articleRow("u1", "Hello world", "Hello", "world"))

	_, err := ds.SelectRows(context.Background(), SelectRowsRequest{
		Columns: []Column{{Path: schema.PathTuple{"doc", "nope"}}},
	})
	if err == nil {
		t.Fatal("want an error for a non-existent path")
	}
	var de *dserr.Error
	if !asDserr(err, &de) || de.Kind() != dserr.KindInvalidPath {
		t.Fatalf("want INVALID_PATH, got %v", err)
	}
}

func TestComputeSignalLengthEndToEnd(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "u1", articleRow("u1", "Hello world", "Hello", "world"))
	rows.seed("source", "u2", articleRow("u2", "Bye", "Bye"))

	sig := &signal.LengthSignal{}
	if err := ds.ComputeSignal(context.Background(), sig, schema.PathTuple{"doc", "text"}, ""); err != nil {
		t.Fatalf("ComputeSignal: %v", err)
	}

	batch, err := ds.SelectRows(context.Background(), SelectRowsRequest{
		Columns: []Column{{Path: schema.PathTuple{"length"}}},
	})
	if err != nil {
		t.Fatalf("SelectRows after compute_signal: %v", err)
	}
	byUUID := map[string]value.Value{}
	for _, r := range batch.Rows {
		byUUID[r.UUID] = r.Values["length"]
	}
	if byUUID["u1"].Int() != int64(len("Hello world")) {
		t.Fatalf("u1 length = %v, want %d", byUUID["u1"], len("Hello world"))
	}
	if byUUID["u2"].Int() != int64(len("Bye")) {
		t.Fatalf("u2 length = %v, want %d", byUUID["u2"], len("Bye"))
	}
}

func TestSelectGroupsWithBins(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "u1", articleRow("u1", "a", "x"))
	rows.seed("source", "u2", articleRow("u2", "bb", "x"))
	rows.seed("source", "u3", articleRow("u3", "ccc", "x"))

	sig := &signal.LengthSignal{}
	if err := ds.ComputeSignal(context.Background(), sig, schema.PathTuple{"doc", "text"}, ""); err != nil {
		t.Fatalf("ComputeSignal: %v", err)
	}

	groups, err := ds.SelectGroups(context.Background(), schema.PathTuple{"length"}, SelectGroupsOptions{
		Bins:      []Bin{{Bound: 2}},
		BinLabels: []string{"short", "long"},
		SortOrder: SortDescending,
	})
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	total := 0
	byLabel := map[string]int{}
	for _, g := range groups {
		total += g.Count
		byLabel[g.Value.Str()] = g.Count
	}
	if total != 3 {
		t.Fatalf("want 3 rows grouped, got %d", total)
	}
	if byLabel["short"] != 1 || byLabel["long"] != 2 {
		t.Fatalf("want short=1, long=2, got %+v", byLabel)
	}
}

// TestSelectGroupsBinsRequiredForNumericLeaf covers the second deviation:
// a numeric leaf with no bins must be rejected, not silently grouped by
// exact value.
func TestSelectGroupsBinsRequiredForNumericLeaf(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "u1", articleRow("u1", "a", "x"))

	sig := &signal.LengthSignal{}
	if err := ds.ComputeSignal(context.Background(), sig, schema.PathTuple{"doc", "text"}, ""); err != nil {
		t.Fatalf("ComputeSignal: %v", err)
	}

	_, err := ds.SelectGroups(context.Background(), schema.PathTuple{"length"}, SelectGroupsOptions{})
	if err == nil {
		t.Fatal("want an error when bins are omitted for a numeric leaf")
	}
	var de *dserr.Error
	if !asDserr(err, &de) || de.Kind() != dserr.KindInvalidFilter {
		t.Fatalf("want INVALID_FILTER, got %v", err)
	}
}

// TestSelectGroupsDefaultBinLabels covers scenario E: a single bound over
// three values splits into two buckets, labeled by their integer index when
// no BinLabels are given.
func TestSelectGroupsDefaultBinLabels(t *testing.T) {
	ds, rows := newFixtureDataset(t)
	rows.seed("source", "u1", articleRow("u1", "aaaa", "x"))    // length 4, below 5 -> bucket 0
	rows.seed("source", "u2", articleRow("u2", "bbbbbb", "x"))  // length 6, above 5 -> bucket 1
	rows.seed("source", "u3", articleRow("u3", "cccccc", "x")) // length 6, above 5 -> bucket 1

	sig := &signal.LengthSignal{}
	if err := ds.ComputeSignal(context.Background(), sig, schema.PathTuple{"doc", "text"}, ""); err != nil {
		t.Fatalf("ComputeSignal: %v", err)
	}

	groups, err := ds.SelectGroups(context.Background(), schema.PathTuple{"length"}, SelectGroupsOptions{
		Bins: []Bin{{Bound: 5}},
	})
	if err != nil {
		t.Fatalf("SelectGroups: %v", err)
	}
	byLabel := map[string]int{}
	for _, g := range groups {
		byLabel[g.Value.Str()] = g.Count
	}
	if byLabel["0"] != 1 || byLabel["1"] != 2 {
		t.Fatalf("want bucket 0=1, bucket 1=2, got %+v", byLabel)
	}
}

// asDserr is a small errors.As shim kept local to this test file to avoid an
// extra "errors" import at every call site.
func asDserr(err error, target **dserr.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if de, ok := err.(*dserr.Error); ok {
			*target = de
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
