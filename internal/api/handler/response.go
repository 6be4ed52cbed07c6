// Package handler implements the HTTP handlers exposing internal/dataset's
// Dataset operations, mirroring the teacher's internal/api/handler package
// shape (thin handlers, a shared writeJSON/writeError pair, chi for routing).
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rowlake/dataset/internal/dserr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a dserr.Error kind to an HTTP status and writes a
// structured JSON error body; logs 5xx-equivalent kinds.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *dserr.Error
	if !errors.As(err, &de) {
		if logger != nil {
			logger.Error("unhandled error", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch de.Kind() {
	case dserr.KindNotFound:
		status = http.StatusNotFound
	case dserr.KindInvalidPath, dserr.KindInvalidFilter, dserr.KindIncompatibleDtype,
		dserr.KindUDFShapeMismatch, dserr.KindInvalidSchema:
		status = http.StatusBadRequest
	case dserr.KindTooManyDistinct:
		status = http.StatusUnprocessableEntity
	case dserr.KindUnsupportedOp:
		status = http.StatusNotImplemented
	case dserr.KindModelOutOfSync:
		status = http.StatusConflict
	case dserr.KindMergeConflict:
		status = http.StatusConflict
	case dserr.KindIOError:
		status = http.StatusInternalServerError
	}
	if status >= 500 && logger != nil {
		logger.Error(de.Message(), slog.String("kind", string(de.Kind())), slog.String("error", de.Error()))
	}
	writeJSON(w, status, map[string]string{"kind": string(de.Kind()), "error": de.Message()})
}
