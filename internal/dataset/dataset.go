package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/engine"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/signal"
	"github.com/rowlake/dataset/internal/value"
	"github.com/rowlake/dataset/internal/vectorstore"
)

// Dataset is the concrete implementation of the public Dataset interface: it
// composes a dataset directory's source and signal column groups into one
// queryable logical table and plans/executes select_rows, stats,
// select_groups, and compute_signal against it.
type Dataset struct {
	rows                     RowSource
	composer                 *viewComposer
	datasetDir               string
	tooManyDistinctThreshold int

	mu           sync.Mutex
	vectorStores map[string]*vectorstore.MemStore
}

// New returns a Dataset backed by rows, reading manifests from datasetDir.
// tooManyDistinctThreshold bounds select_groups' exact-value grouping
// cardinality when no explicit bins are given.
func New(rows RowSource, datasetDir string, tooManyDistinctThreshold int) *Dataset {
	return &Dataset{
		rows:                     rows,
		composer:                 newViewComposer(datasetDir),
		datasetDir:               datasetDir,
		tooManyDistinctThreshold: tooManyDistinctThreshold,
		vectorStores:             map[string]*vectorstore.MemStore{},
	}
}

// vectorStoreFor returns the vector store backing the embedding leaf at
// path, building it lazily on first use and caching it for this Dataset's
// lifetime.
func (d *Dataset) vectorStoreFor(path schema.PathTuple) *vectorstore.MemStore {
	key := pathString(basePath(path))
	d.mu.Lock()
	defer d.mu.Unlock()
	store, ok := d.vectorStores[key]
	if !ok {
		store = vectorstore.NewMemStore()
		d.vectorStores[key] = store
	}
	return store
}

func basePath(path schema.PathTuple) schema.PathTuple {
	if len(path) > 0 && path[len(path)-1] == schema.ValueKey {
		return path[:len(path)-1]
	}
	return path
}

func pathString(path schema.PathTuple) string {
	s := ""
	for i, p := range path {
		if i > 0 {
			s += "."
		}
		s += fmt.Sprintf("%v", p)
	}
	return s
}

// Manifest returns the dataset's current composed summary.
func (d *Dataset) Manifest(ctx context.Context) (*DatasetManifest, error) {
	v, err := d.composer.get(ctx, d.rows)
	if err != nil {
		return nil, err
	}
	m := v.manifest
	return &m, nil
}

// SelectRowsSchema returns the schema select_rows would emit for req,
// without executing it.
func (d *Dataset) SelectRowsSchema(ctx context.Context, req SelectRowsRequest) (*schema.Schema, error) {
	v, err := d.composer.get(ctx, d.rows)
	if err != nil {
		return nil, err
	}
	planned, err := planColumns(v, req.Columns)
	if err != nil {
		return nil, err
	}
	fields := map[string]*schema.Field{}
	var order []string
	for _, p := range planned {
		var f *schema.Field
		if p.col.UDF != nil {
			f = p.col.UDF.Fields()
		} else {
			f = v.manifest.DataSchema.GetField(p.col.Path)
		}
		fields[p.col.Alias] = f
		order = append(order, p.col.Alias)
	}
	return schema.NewSchema(order, fields), nil
}

// SelectRows runs select_rows' full planning and execution pipeline: column
// resolution, filter/sort partitioning around UDF columns, source querying,
// signal join, UDF execution, flatten/unnest reshaping, post-filtering,
// sorting, and pagination.
func (d *Dataset) SelectRows(ctx context.Context, req SelectRowsRequest) (*RowBatch, error) {
	v, err := d.composer.get(ctx, d.rows)
	if err != nil {
		return nil, err
	}
	planned, err := planColumns(v, req.Columns)
	if err != nil {
		return nil, err
	}

	udfAliases := map[string]bool{}
	for _, p := range planned {
		if p.col.UDF != nil {
			udfAliases[p.col.Alias] = true
		}
	}

	preFilters, postFilters, err := partitionFilters(req.Filters, udfAliases)
	if err != nil {
		return nil, err
	}
	for _, key := range req.SortBy {
		for _, seg := range strings.Split(key, ".") {
			if seg == schema.Wildcard {
				return nil, dserr.InvalidPath("sorting by the wildcard path %q is not allowed", key)
			}
		}
	}
	preSort, postSort := partitionSort(req.SortBy, udfAliases)

	srcEntry := v.sourceEntry()
	whereSQL, args, err := engine.CompileFilters(preFilters, 0)
	if err != nil {
		return nil, err
	}
	opts := engine.QueryOptions{WhereSQL: whereSQL, Args: args}
	if len(preSort) > 0 && len(postSort) == 0 {
		orderSQL, err := orderBySQL(preSort, req.SortOrder)
		if err != nil {
			return nil, err
		}
		opts.OrderBySQL = orderSQL
	}
	pushedDownLimit := len(postSort) == 0 && len(postFilters) == 0
	if pushedDownLimit {
		opts.Limit = req.Limit
		opts.Offset = req.Offset
	}

	srcRows, err := d.rows.Query(ctx, srcEntry.TableName, opts)
	if err != nil {
		return nil, err
	}

	uuids := make([]string, len(srcRows))
	composite := make(map[string]value.Value, len(srcRows))
	for i, r := range srcRows {
		uuids[i] = r.UUID
		composite[r.UUID] = r.Data
	}

	seenEntries := map[string]bool{}
	for _, p := range planned {
		if p.entry.RootName == "" || seenEntries[p.entry.RootName] {
			continue
		}
		seenEntries[p.entry.RootName] = true
		sigRows, err := d.rows.FetchByUUIDs(ctx, p.entry.TableName, uuids)
		if err != nil {
			return nil, err
		}
		for _, sr := range sigRows {
			base, ok := composite[sr.UUID]
			if !ok {
				continue
			}
			composite[sr.UUID] = base.WithField(p.entry.RootName, sr.Data.Field(p.entry.RootName))
		}
	}

	values := make(map[string][]value.Value, len(planned)) // alias -> raw per-row value, in srcRows order
	for _, p := range planned {
		raw := make([]value.Value, len(srcRows))
		for i, sr := range srcRows {
			raw[i] = extractPath(composite[sr.UUID], p.col.Path)
			if p.col.Flatten {
				raw[i] = flattenReduce(raw[i])
			}
		}
		if req.ResolveSpan && p.col.UDF == nil {
			if leaf := v.manifest.DataSchema.LeafAt(p.col.Path); leaf != nil && leaf.Dtype == schema.DataTypeStringSpan {
				srcPath, err := schema.DerivedFromPath(p.col.Path, v.manifest.DataSchema)
				if err != nil {
					return nil, err
				}
				for i, sr := range srcRows {
					source := extractPath(composite[sr.UUID], srcPath)
					resolved, err := resolveSpan(raw[i], source.Str())
					if err != nil {
						return nil, err
					}
					raw[i] = resolved
				}
			}
		}
		values[p.col.Alias] = raw
	}

	if err := d.runUDFs(ctx, planned, uuids, values, req, postSort, postFilters); err != nil {
		return nil, err
	}

	rows := make([]Row, len(srcRows))
	for i, sr := range srcRows {
		cells := make(map[string]value.Value, len(planned))
		for _, p := range planned {
			cells[p.col.Alias] = values[p.col.Alias][i]
		}
		rows[i] = Row{UUID: sr.UUID, Values: cells}
	}

	var flattenAliases []string
	for _, p := range planned {
		if p.col.Flatten {
			flattenAliases = append(flattenAliases, p.col.Alias)
		}
	}
	if len(flattenAliases) > 0 {
		rows = unnestRows(rows, flattenAliases)
	}

	rows, err = applyPostFilters(rows, postFilters)
	if err != nil {
		return nil, err
	}
	if len(postSort) > 0 {
		sortRows(rows, postSort[0], req.SortOrder)
	}
	if !pushedDownLimit {
		rows = paginate(rows, req.Offset, req.Limit)
	}

	if req.CombineColumns {
		cols := columnAliasesInOrder(planned)
		for i := range rows {
			merged, err := combineColumns(cols, rows[i].Values)
			if err != nil {
				return nil, err
			}
			rows[i].Values = map[string]value.Value{"*": merged}
		}
		return &RowBatch{Columns: []string{"*"}, Rows: rows}, nil
	}

	return &RowBatch{Columns: columnAliasesInOrder(planned), Rows: rows}, nil
}

func columnAliasesInOrder(planned []plannedColumn) []string {
	out := make([]string, len(planned))
	for i, p := range planned {
		out[i] = p.col.Alias
	}
	return out
}

// unnestRows row-explodes each Flatten column's (already flatten-reduced)
// value that is still a list: every output row carries one list element for
// that column, duplicating the row's other column values. A null or
// non-list value passes through as a single row unchanged; an empty list
// collapses the row to one with a null value for that column.
func unnestRows(rows []Row, aliases []string) []Row {
	for _, alias := range aliases {
		rows = unnestColumn(rows, alias)
	}
	return rows
}

func unnestColumn(rows []Row, alias string) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		v := r.Values[alias]
		if v.Kind() != value.KindList {
			out = append(out, r)
			continue
		}
		items := v.List()
		if len(items) == 0 {
			items = []value.Value{value.Null()}
		}
		for _, item := range items {
			cells := make(map[string]value.Value, len(r.Values))
			for k, vv := range r.Values {
				cells[k] = vv
			}
			cells[alias] = item
			out = append(out, Row{UUID: r.UUID, Values: cells})
		}
	}
	return out
}

// runUDFs computes every UDF column's output in place within values,
// applying the vector-store top-k shortcut when the request's sort/limit
// shape allows it and no post-UDF filter could drop rows the shortcut
// already excluded.
func (d *Dataset) runUDFs(ctx context.Context, planned []plannedColumn, uuids []string, values map[string][]value.Value, req SelectRowsRequest, postSort []string, postFilters []engine.Filter) error {
	for _, p := range planned {
		if p.col.UDF == nil {
			continue
		}
		inputs := values[p.col.Alias]

		if p.col.UDF.InputType() == signal.InputTextEmbedding {
			vsig, ok := p.col.UDF.(signal.VectorSignal)
			if !ok {
				return dserr.UnsupportedOp("UDF %q declares InputTextEmbedding but does not implement VectorSignal", p.col.UDF.Key())
			}
			store := d.vectorStoreFor(p.col.Path)

			if topKEligible(postSort, len(postFilters), req.SortOrder, req.Limit, p.col.Alias) {
				scored, err := runTopKShortcut(ctx, vsig, store, req.Limit, req.Offset, uuids)
				if err != nil {
					return err
				}
				byUUID := map[string]float32{}
				for _, sk := range scored {
					byUUID[sk.Key.UUID] = sk.Score
				}
				out := make([]value.Value, len(inputs))
				for i, u := range uuids {
					if s, ok := byUUID[u]; ok {
						out[i] = value.Float(float64(s))
					} else {
						out[i] = value.Null()
					}
				}
				values[p.col.Alias] = out
				continue
			}

			out, err := runVectorUDF(ctx, vsig, uuids, inputs, store)
			if err != nil {
				return err
			}
			values[p.col.Alias] = out
			continue
		}

		out, err := runRichDataUDF(ctx, p.col.UDF, inputs)
		if err != nil {
			return err
		}
		values[p.col.Alias] = out
	}
	return nil
}

func applyPostFilters(rows []Row, filters []engine.Filter) ([]Row, error) {
	if len(filters) == 0 {
		return rows, nil
	}
	out := rows[:0]
	for _, r := range rows {
		ok, err := matchesAll(r, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func matchesAll(r Row, filters []engine.Filter) (bool, error) {
	for _, f := range filters {
		alias, ok := f.Path[0].(string)
		if !ok {
			return false, dserr.InvalidFilter("post-UDF filter path must be an output alias")
		}
		v := r.Values[alias]
		switch f.Op {
		case engine.OpExists:
			if v.IsNull() {
				return false, nil
			}
		case engine.OpEqual:
			if !value.Equal(v, f.Value) {
				return false, nil
			}
		case engine.OpNotEqual:
			if value.Equal(v, f.Value) {
				return false, nil
			}
		case engine.OpGreater, engine.OpGreaterEqual, engine.OpLess, engine.OpLessEqual:
			cmp, err := compareValues(v, f.Value)
			if err != nil {
				return false, err
			}
			switch f.Op {
			case engine.OpGreater:
				if !(cmp > 0) {
					return false, nil
				}
			case engine.OpGreaterEqual:
				if !(cmp >= 0) {
					return false, nil
				}
			case engine.OpLess:
				if !(cmp < 0) {
					return false, nil
				}
			case engine.OpLessEqual:
				if !(cmp <= 0) {
					return false, nil
				}
			}
		case engine.OpIn:
			found := false
			for _, lv := range f.List {
				if value.Equal(v, lv) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, dserr.InvalidFilter("unsupported post-UDF filter operator %q", f.Op)
		}
	}
	return true, nil
}

func compareValues(a, b value.Value) (int, error) {
	switch a.Kind() {
	case value.KindInt, value.KindFloat:
		af, bf := numeric(a), numeric(b)
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	case value.KindString:
		switch {
		case a.Str() < b.Str():
			return -1, nil
		case a.Str() > b.Str():
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, dserr.IncompatibleDtype("value of kind %v does not support ordered comparison", a.Kind())
	}
}

func numeric(v value.Value) float64 {
	if v.Kind() == value.KindInt {
		return float64(v.Int())
	}
	return v.Float()
}

func sortRows(rows []Row, alias string, order SortOrder) {
	sort.SliceStable(rows, func(i, j int) bool {
		cmp, err := compareValues(rows[i].Values[alias], rows[j].Values[alias])
		if err != nil {
			return false
		}
		if order == SortDescending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func orderBySQL(aliases []string, order SortOrder) (string, error) {
	dir := "ASC"
	if order == SortDescending {
		dir = "DESC"
	}
	out := ""
	for i, a := range aliases {
		if i > 0 {
			out += ", "
		}
		segs := strings.Split(a, ".")
		path := make(schema.PathTuple, len(segs))
		for j, s := range segs {
			path[j] = s
		}
		col, err := engine.ColumnExpr(path)
		if err != nil {
			return "", err
		}
		out += col + " " + dir
	}
	return out, nil
}

func paginate(rows []Row, offset, limit int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
