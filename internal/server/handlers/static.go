// Serves the operator's HTML pages from the data directory.

package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// Page file names.
const (
	FormPage   = "WomensHealth_DataForm.html"
	ViewerPage = "WomensHealth_Viewer.html"
)

// PageHandler serves the data entry form and the record viewer.
type PageHandler struct {
	Cfg *Config
}

// Form serves the data entry form.
func (h *PageHandler) Form(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, FormPage)
}

// Viewer serves the record viewer.
func (h *PageHandler) Viewer(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, ViewerPage)
}

func (h *PageHandler) serve(w http.ResponseWriter, r *http.Request, name string) {
	b, err := os.ReadFile(filepath.Join(h.Cfg.DataDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Error: " + name + " not found."))
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to read page", "page", name, "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(b); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write page", "page", name, "err", err)
	}
}
