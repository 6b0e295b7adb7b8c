// Provides helper functions for writing JSON and error responses.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/whintake/whintake/internal/server/dto"
)

// writeErrorResponse writes err as a JSON error body.
// Use this in raw http.HandlerFunc handlers that don't use server.Wrap.
func writeErrorResponse(w http.ResponseWriter, err error) {
	resp := dto.ErrorResponse{
		Status:  dto.StatusError,
		Code:    dto.ErrorCodeInternal,
		Message: "Internal server error",
	}
	statusCode := http.StatusInternalServerError
	var ewsErr dto.ErrorWithStatus
	if errors.As(err, &ewsErr) {
		statusCode = ewsErr.StatusCode()
		resp.Code = ewsErr.Code()
		resp.Message = ewsErr.Message()
		resp.Details = ewsErr.Details()
	}
	writeJSON(w, statusCode, resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}
