package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rowlake/dataset/internal/dataset"
	"github.com/rowlake/dataset/internal/dserr"
	"github.com/rowlake/dataset/internal/engine"
	"github.com/rowlake/dataset/internal/schema"
	"github.com/rowlake/dataset/internal/signal"
	"github.com/rowlake/dataset/internal/value"
)

// DatasetHandler exposes manifest/select_rows/select_groups/stats/
// compute_signal over HTTP, lazily building one dataset.Dataset per
// (namespace, name) directory under rootDir.
type DatasetHandler struct {
	logger    *slog.Logger
	rows      dataset.RowSource
	rootDir   string
	threshold int
	signals   *signal.Registry

	mu       sync.Mutex
	datasets map[string]*dataset.Dataset
}

func NewDatasetHandler(logger *slog.Logger, rows dataset.RowSource, rootDir string, threshold int, signals *signal.Registry) *DatasetHandler {
	return &DatasetHandler{
		logger: logger, rows: rows, rootDir: rootDir, threshold: threshold,
		signals: signals, datasets: map[string]*dataset.Dataset{},
	}
}

func (h *DatasetHandler) get(namespace, name string) *dataset.Dataset {
	key := namespace + "/" + name
	h.mu.Lock()
	defer h.mu.Unlock()
	if d, ok := h.datasets[key]; ok {
		return d
	}
	d := dataset.New(h.rows, filepath.Join(h.rootDir, namespace, name), h.threshold)
	h.datasets[key] = d
	return d
}

func splitPath(p string) schema.PathTuple {
	segs := strings.Split(p, ".")
	out := make(schema.PathTuple, len(segs))
	for i, s := range segs {
		out[i] = s
	}
	return out
}

// Manifest handles GET /datasets/{namespace}/{name}.
func (h *DatasetHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	d := h.get(chi.URLParam(r, "namespace"), chi.URLParam(r, "name"))
	m, err := d.Manifest(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type columnSpec struct {
	Path    string   `json:"path"`
	Alias   string   `json:"alias,omitempty"`
	UDF     *udfSpec `json:"udf,omitempty"`
	Flatten bool     `json:"flatten,omitempty"`
}

type udfSpec struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

type filterSpec struct {
	Path  string `json:"path"`
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
	List  []any  `json:"list,omitempty"`
}

type selectRowsBody struct {
	Columns        []columnSpec `json:"columns"`
	Filters        []filterSpec `json:"filters,omitempty"`
	SortBy         []string     `json:"sort_by,omitempty"`
	SortOrder      string       `json:"sort_order,omitempty"`
	Limit          int          `json:"limit,omitempty"`
	Offset         int          `json:"offset,omitempty"`
	ResolveSpan    bool         `json:"resolve_span,omitempty"`
	CombineColumns bool         `json:"combine_columns,omitempty"`
	TaskID         string       `json:"task_id,omitempty"`
}

func (h *DatasetHandler) resolveColumns(specs []columnSpec) ([]dataset.Column, error) {
	cols := make([]dataset.Column, len(specs))
	for i, c := range specs {
		col := dataset.Column{Path: splitPath(c.Path), Alias: c.Alias, Flatten: c.Flatten}
		if c.UDF != nil {
			sig, err := h.signals.Resolve(&signal.Descriptor{Name: c.UDF.Name, Params: c.UDF.Params})
			if err != nil {
				return nil, err
			}
			col.UDF = sig
		}
		cols[i] = col
	}
	return cols, nil
}

func resolveFilters(specs []filterSpec) []engine.Filter {
	filters := make([]engine.Filter, len(specs))
	for i, f := range specs {
		list := make([]value.Value, len(f.List))
		for j, lv := range f.List {
			list[j] = value.FromAny(lv)
		}
		filters[i] = engine.Filter{
			Path:  splitPath(f.Path),
			Op:    engine.Op(f.Op),
			Value: value.FromAny(f.Value),
			List:  list,
		}
	}
	return filters
}

func sortOrderOf(s string) dataset.SortOrder {
	if strings.EqualFold(s, "desc") {
		return dataset.SortDescending
	}
	return dataset.SortAscending
}

// SelectRows handles POST /datasets/{namespace}/{name}/select_rows.
func (h *DatasetHandler) SelectRows(w http.ResponseWriter, r *http.Request) {
	var body selectRowsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, dserr.InvalidFilter("malformed request body: %v", err))
		return
	}
	cols, err := h.resolveColumns(body.Columns)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	d := h.get(chi.URLParam(r, "namespace"), chi.URLParam(r, "name"))
	batch, err := d.SelectRows(r.Context(), dataset.SelectRowsRequest{
		Columns:        cols,
		Filters:        resolveFilters(body.Filters),
		SortBy:         body.SortBy,
		SortOrder:      sortOrderOf(body.SortOrder),
		Limit:          body.Limit,
		Offset:         body.Offset,
		ResolveSpan:    body.ResolveSpan,
		CombineColumns: body.CombineColumns,
		TaskID:         body.TaskID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// Stats handles GET /datasets/{namespace}/{name}/stats?path=a.b.c.
func (h *DatasetHandler) Stats(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, h.logger, dserr.InvalidPath("stats requires a ?path= query parameter"))
		return
	}
	d := h.get(chi.URLParam(r, "namespace"), chi.URLParam(r, "name"))
	result, err := d.Stats(r.Context(), splitPath(path))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// selectGroupsBody's Bins are N ascending bound values deriving N+1
// half-open buckets; BinLabels, when given, names each bucket in order
// (falling back to the bucket's own integer index).
type selectGroupsBody struct {
	Path      string       `json:"path"`
	Filters   []filterSpec `json:"filters,omitempty"`
	SortOrder string       `json:"sort_order,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Bins      []float64    `json:"bins,omitempty"`
	BinLabels []string     `json:"bin_labels,omitempty"`
}

// SelectGroups handles POST /datasets/{namespace}/{name}/select_groups.
func (h *DatasetHandler) SelectGroups(w http.ResponseWriter, r *http.Request) {
	var body selectGroupsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, dserr.InvalidFilter("malformed request body: %v", err))
		return
	}
	bins := make([]dataset.Bin, len(body.Bins))
	for i, b := range body.Bins {
		bins[i] = dataset.Bin{Bound: b}
	}

	d := h.get(chi.URLParam(r, "namespace"), chi.URLParam(r, "name"))
	groups, err := d.SelectGroups(r.Context(), splitPath(body.Path), dataset.SelectGroupsOptions{
		Filters:   resolveFilters(body.Filters),
		SortOrder: sortOrderOf(body.SortOrder),
		Limit:     body.Limit,
		Bins:      bins,
		BinLabels: body.BinLabels,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

type computeSignalBody struct {
	Path   string  `json:"path"`
	Signal udfSpec `json:"signal"`
	TaskID string  `json:"task_id,omitempty"`
}

// ComputeSignal handles POST /datasets/{namespace}/{name}/compute_signal.
func (h *DatasetHandler) ComputeSignal(w http.ResponseWriter, r *http.Request) {
	var body computeSignalBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, dserr.InvalidFilter("malformed request body: %v", err))
		return
	}
	sig, err := h.signals.Resolve(&signal.Descriptor{Name: body.Signal.Name, Params: body.Signal.Params})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	taskID := body.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	h.logger.Info("compute_signal", slog.String("task_id", taskID), slog.String("signal", body.Signal.Name))

	d := h.get(chi.URLParam(r, "namespace"), chi.URLParam(r, "name"))
	if err := d.ComputeSignal(r.Context(), sig, splitPath(body.Path), taskID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "computed", "task_id": taskID})
}
