package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/goletan/servicehost/internal/dbtransfer"
)

const maxDatabaseBytes = 1 << 30

// ImportResult is the body returned by POST /api/v1/database/import.
type ImportResult struct {
	Bytes int64 `json:"bytes"`
}

type databaseHandler struct {
	db Database
}

func (h *databaseHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(h.db.Path())))

	// Errors after the first byte cannot change the status any more.
	if n, err := h.db.Export(r.Context(), w); err != nil && n == 0 {
		w.Header().Del("Content-Disposition")
		writeDatabaseError(w, err)
	}
}

func (h *databaseHandler) Import(w http.ResponseWriter, r *http.Request) {
	n, err := h.db.Import(r.Context(), http.MaxBytesReader(w, r.Body, maxDatabaseBytes))
	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, ImportResult{Bytes: n})
}

func writeDatabaseError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, dbtransfer.ErrServiceBound):
		WriteProblem(w, http.StatusConflict, err.Error())
	case errors.Is(err, dbtransfer.ErrNotFound):
		WriteProblem(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dbtransfer.ErrInvalidDatabase):
		WriteProblem(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &tooLarge):
		WriteProblem(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		WriteProblem(w, http.StatusInternalServerError, err.Error())
	}
}
