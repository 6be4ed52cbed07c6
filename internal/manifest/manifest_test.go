package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rowlake/dataset/internal/schema"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReadSourceManifest(t *testing.T) {
	dir := t.TempDir()
	want := &SourceManifest{
		Namespace:   "local",
		DatasetName: "docs",
		DataSchema: schema.NewSchema([]string{"uuid", "text"}, map[string]*schema.Field{
			"uuid": schema.NewLeaf(schema.DataTypeString),
			"text": schema.NewLeaf(schema.DataTypeString),
		}),
		Files: []string{"data.jsonl"},
	}
	writeJSON(t, filepath.Join(dir, SourceManifestFilename), want)

	got, err := ReadSourceManifest(dir)
	if err != nil {
		t.Fatalf("ReadSourceManifest: %v", err)
	}
	if got.Namespace != want.Namespace || got.DatasetName != want.DatasetName {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadSourceManifestNotFound(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadSourceManifest(dir); err == nil {
		t.Fatal("expected an error for a missing manifest")
	}
}

func TestSignalManifestFilenameAndDiscovery(t *testing.T) {
	dir := t.TempDir()
	sourcePath := schema.PathTuple{"text"}
	m := &SignalManifest{
		DataSchema: schema.NewSchema([]string{"uuid", "length"}, map[string]*schema.Field{
			"uuid":   schema.NewLeaf(schema.DataTypeString),
			"length": schema.NewLeaf(schema.DataTypeInt64),
		}),
		EnrichedPath: schema.PathTuple{"text", "length"},
	}
	p, err := WriteSignalManifest(dir, sourcePath, "length", m)
	if err != nil {
		t.Fatalf("WriteSignalManifest: %v", err)
	}
	if filepath.Base(p) != "text.length.signal_manifest.json" {
		t.Errorf("unexpected manifest filename %q", filepath.Base(p))
	}

	found, err := DiscoverSignalManifests(dir)
	if err != nil {
		t.Fatalf("DiscoverSignalManifests: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 signal manifest, got %d", len(found))
	}
	root, err := found[0].RootColumn()
	if err != nil {
		t.Fatalf("RootColumn: %v", err)
	}
	if root != "length" {
		t.Errorf("RootColumn = %q, want %q", root, "length")
	}
}

func TestCacheKeyDoesNotRegressOnWrite(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, SourceManifestFilename), &SourceManifest{})

	first, err := CacheKey(dir)
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}

	writeJSON(t, filepath.Join(dir, "text.length.signal_manifest.json"), &SignalManifest{})
	second, err := CacheKey(dir)
	if err != nil {
		t.Fatalf("CacheKey: %v", err)
	}
	if second < first {
		t.Errorf("expected cache key not to go backwards after a new file, got %d then %d", first, second)
	}
}
