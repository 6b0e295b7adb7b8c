// Serves the option lists used by the data entry form.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/whintake/whintake/internal/server/dto"
)

// Option document file names, in lookup order.
const (
	OptionsJSON = "data.json"
	OptionsYAML = "data.yaml"
)

// OptionsHandler serves the option lists document from the data directory.
type OptionsHandler struct {
	Cfg *Config
}

// Options serves data.json verbatim, or data.yaml converted to JSON.
func (h *OptionsHandler) Options(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := h.load()
	if errors.Is(err, fs.ErrNotExist) {
		writeErrorResponse(w, dto.NotFound(OptionsJSON))
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load options", "err", err)
		writeErrorResponse(w, dto.Internal("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if _, err := w.Write(b); err != nil {
		slog.ErrorContext(ctx, "Failed to write options", "err", err)
	}
}

func (h *OptionsHandler) load() ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(h.Cfg.DataDir, OptionsJSON))
	if !errors.Is(err, fs.ErrNotExist) {
		return b, err
	}
	y, err := os.ReadFile(filepath.Join(h.Cfg.DataDir, OptionsYAML))
	if err != nil {
		return nil, err
	}
	return yamlToJSON(y)
}

func yamlToJSON(y []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(y, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", OptionsYAML, err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", OptionsYAML, err)
	}
	return b, nil
}
