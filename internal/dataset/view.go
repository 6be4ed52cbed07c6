package dataset

import (
	"context"
	"sync"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/engine"
	"github.com/rowlake/dataset/internal/manifest"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/value"
)

// RowSource is the subset of internal/engine.Engine the view composer and
// query planner depend on; narrowed to an interface so tests can substitute
// an in-memory fake instead of a live Postgres connection.
type RowSource interface {
	EnsureTable(ctx context.Context, table string) error
	UpsertRows(ctx context.Context, table string, uuids []string, rows []value.Value) error
	FetchAll(ctx context.Context, table string) ([]engine.Row, error)
	FetchByUUIDs(ctx context.Context, table string, uuids []string) ([]engine.Row, error)
	Query(ctx context.Context, table string, opts engine.QueryOptions) ([]engine.Row, error)
}

// manifestEntry is one column group (the source, or a single signal)
// contributing to the composed view.
type manifestEntry struct {
	// TableName is the engine table backing this column group.
	TableName string
	// RootName is the top-level field name this entry occupies in the
	// merged schema: empty for the source (it contributes every one of its
	// own top-level fields), or the signal's parquet_id.
	RootName string
	// Schema is this entry's own schema (the full source schema, or a
	// single-field wrapper schema keyed by RootName for a signal).
	Schema *schema.Schema
	// Signal is nil for the source entry.
	Signal *manifest.SignalManifest
}

// view is the cached composed logical table for one dataset directory.
type view struct {
	cacheKey int64
	manifest DatasetManifest
	entries  []manifestEntry
}

// viewComposer builds and caches the composed view for a dataset directory,
// rebuilding whenever the directory's mtime-derived cache key changes (spec
// §4.1, §5 "manifest cache is guarded by a mutex").
type viewComposer struct {
	mu         sync.Mutex
	datasetDir string
	namespace  string
	name       string
	cached     *view
}

func newViewComposer(datasetDir string) *viewComposer {
	return &viewComposer{datasetDir: datasetDir}
}

// get returns the current composed view, recomposing if the directory's
// contents have changed since the last call.
func (c *viewComposer) get(ctx context.Context, rows RowSource) (*view, error) {
	key, err := manifest.CacheKey(c.datasetDir)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.cached.cacheKey == key {
		return c.cached, nil
	}

	v, err := c.compose(ctx, rows, key)
	if err != nil {
		return nil, err
	}
	c.cached = v
	return v, nil
}

func (c *viewComposer) compose(ctx context.Context, rows RowSource, key int64) (*view, error) {
	src, err := manifest.ReadSourceManifest(c.datasetDir)
	if err != nil {
		return nil, err
	}
	c.namespace = src.Namespace
	c.name = src.DatasetName

	if len(src.Files) == 0 {
		return nil, dserr.NotFound("source manifest for %q/%q lists no backing table", src.Namespace, src.DatasetName)
	}
	sourceTable := src.Files[0]

	entries := []manifestEntry{{TableName: sourceTable, Schema: src.DataSchema}}
	merged := []*schema.Schema{src.DataSchema}

	signals, err := manifest.DiscoverSignalManifests(c.datasetDir)
	if err != nil {
		return nil, err
	}
	for _, sm := range signals {
		rootName, err := sm.RootColumn()
		if err != nil {
			return nil, err
		}
		parquetID := sm.ParquetID
		if parquetID == "" {
			parquetID = rootName
		}
		wrapper := schema.NewSchema([]string{parquetID}, map[string]*schema.Field{
			parquetID: sm.DataSchema.Fields[rootName],
		})
		merged = append(merged, wrapper)

		table := sourceTable
		if len(sm.Files) > 0 {
			table = sm.Files[0]
		}
		entries = append(entries, manifestEntry{
			TableName: table,
			RootName:  parquetID,
			Schema:    wrapper,
			Signal:    sm,
		})
	}

	mergedSchema, err := schema.MergeSchemas(merged...)
	if err != nil {
		return nil, err
	}

	numItems, err := countRows(ctx, rows, sourceTable)
	if err != nil {
		return nil, err
	}

	return &view{
		cacheKey: key,
		manifest: DatasetManifest{
			Namespace:  c.namespace,
			Name:       c.name,
			DataSchema: mergedSchema,
			NumItems:   numItems,
		},
		entries: entries,
	}, nil
}

func countRows(ctx context.Context, rows RowSource, table string) (int, error) {
	all, err := rows.FetchAll(ctx, table)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// entryFor returns the manifest entry whose RootName matches the merged
// schema's top-level field name top, or the source entry when top is one of
// its own top-level fields.
func (v *view) entryFor(top string) (manifestEntry, bool) {
	for _, e := range v.entries {
		if e.RootName == top {
			return e, true
		}
	}
	for _, e := range v.entries {
		if e.RootName != "" {
			continue
		}
		if _, ok := e.Schema.Fields[top]; ok {
			return e, true
		}
	}
	return manifestEntry{}, false
}

func (v *view) sourceEntry() manifestEntry {
	for _, e := range v.entries {
		if e.RootName == "" {
			return e
		}
	}
	return manifestEntry{}
}
