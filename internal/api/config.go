package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goletan/servicehost/internal/serverconfig"
)

const maxConfigBytes = 1 << 20

// ConfigValue is the body of PATCH /api/v1/config and of GET with ?path=.
type ConfigValue struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type configHandler struct {
	editor ConfigEditor
}

// Get returns the raw YAML, or a single value as JSON when ?path= is set.
func (h *configHandler) Get(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		data, err := h.editor.Raw()
		if err != nil {
			writeConfigError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	if err := h.editor.Load(); err != nil {
		writeConfigError(w, err)
		return
	}
	v, err := h.editor.Get(path)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, ConfigValue{Path: path, Value: v})
}

// Replace overwrites the file with the request body.
func (h *configHandler) Replace(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigBytes))
	if err != nil {
		WriteProblem(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err := h.editor.Replace(data); err != nil {
		WriteProblem(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Patch sets one value and saves the file.
func (h *configHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var req ConfigValue
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		WriteProblem(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := h.editor.Load(); err != nil {
		writeConfigError(w, err)
		return
	}
	if err := h.editor.Set(req.Path, req.Value); err != nil {
		writeConfigError(w, err)
		return
	}
	if err := h.editor.Save(); err != nil {
		WriteProblem(w, http.StatusInternalServerError, err.Error())
		return
	}

	v, err := h.editor.Get(req.Path)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, ConfigValue{Path: req.Path, Value: v})
}

func writeConfigError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, serverconfig.ErrConfigMissing), errors.Is(err, serverconfig.ErrPathNotFound):
		WriteProblem(w, http.StatusNotFound, err.Error())
	case errors.Is(err, serverconfig.ErrInvalidPath):
		WriteProblem(w, http.StatusBadRequest, err.Error())
	default:
		WriteProblem(w, http.StatusUnprocessableEntity, err.Error())
	}
}
