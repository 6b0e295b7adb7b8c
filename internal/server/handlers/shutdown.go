// Handles the operator's request to stop the server.

package handlers

import (
	"context"
	"log/slog"

	"github.com/whintake/whintake/internal/server/dto"
)

// ShutdownHandler stops the server on request.
type ShutdownHandler struct {
	// Stop begins graceful shutdown. It is called on its own goroutine so
	// the response is sent before the listener closes.
	Stop func()
}

// Shutdown acknowledges and then stops the server asynchronously.
func (h *ShutdownHandler) Shutdown(ctx context.Context, _ *dto.ShutdownRequest) (*dto.StatusResponse, error) {
	slog.InfoContext(ctx, "Shutdown requested")
	if h.Stop != nil {
		go h.Stop()
	}
	return &dto.StatusResponse{Status: dto.StatusOK, Message: "Server shutting down..."}, nil
}
