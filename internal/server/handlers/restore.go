// Handles replacing the database with an uploaded file.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/whintake/whintake/internal/restore"
	"github.com/whintake/whintake/internal/server/dto"
)

// RestoreHandler installs an uploaded database file.
type RestoreHandler struct {
	Svc *Services
	Cfg *Config
}

// Restore is a raw http.HandlerFunc because the body is the binary database
// file, not JSON.
func (h *RestoreHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Cfg.MaxRestoreBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.MaxRestoreBytes)
	}
	data, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.observe("rejected")
			writeErrorResponse(w, dto.PayloadTooLarge(maxBytesErr.Limit))
			return
		}
		slog.ErrorContext(ctx, "Failed to read upload", "err", err)
		h.observe("error")
		writeErrorResponse(w, dto.BadRequest("Failed to read request body"))
		return
	}

	err = h.Svc.Restore.Restore(ctx, data)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "Database restored from upload", "bytes", len(data))
		h.observe("ok")
		writeJSON(w, http.StatusOK, dto.StatusResponse{Status: dto.StatusOK, Message: "Database restored successfully"})
	case errors.Is(err, restore.ErrEmpty):
		h.observe("rejected")
		writeErrorResponse(w, dto.NewAPIError(http.StatusBadRequest, dto.ErrorCodeMissingField, "No file uploaded"))
	case errors.Is(err, restore.ErrInvalidFormat):
		h.observe("rejected")
		writeErrorResponse(w, dto.InvalidFormat("Invalid database file format"))
	default:
		slog.ErrorContext(ctx, "Restore failed", "err", err)
		h.observe("error")
		writeErrorResponse(w, dto.Storage("Internal Server Error during restore", err))
	}
}

func (h *RestoreHandler) observe(result string) {
	if m := h.Svc.Metrics; m != nil {
		m.Restores.WithLabelValues(result).Inc()
	}
}
