// Package api wires the dataset query/enrichment handlers onto a chi
// router, mirroring the teacher's internal/api router shape (chi +
// chi/middleware, health checks unauthenticated, everything else under a
// versioned prefix).
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	apihandler "github.com/rowlake/dataset/internal/api/handler"
	"github.com/rowlake/dataset/internal/dataset"
	"github.com/rowlake/dataset/internal/signal"
)

// RouterDeps holds the dependencies NewRouter wires into handlers.
type RouterDeps struct {
	Pool      *pgxpool.Pool
	Rows      dataset.RowSource
	RootDir   string
	Threshold int
	Signals   *signal.Registry
}

func NewRouter(logger *slog.Logger, deps *RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	health := apihandler.NewHealthHandler(deps.Pool)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	ds := apihandler.NewDatasetHandler(logger, deps.Rows, deps.RootDir, deps.Threshold, deps.Signals)
	r.Route("/api/v1/datasets/{namespace}/{name}", func(r chi.Router) {
		r.Get("/", ds.Manifest)
		r.Post("/select_rows", ds.SelectRows)
		r.Get("/stats", ds.Stats)
		r.Post("/select_groups", ds.SelectGroups)
		r.Post("/compute_signal", ds.ComputeSignal)
	})

	return r
}

// requestLogger logs each request's method, path, status, and duration at
// Info level, the same shape of detail the teacher's apimw.Logger records.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
