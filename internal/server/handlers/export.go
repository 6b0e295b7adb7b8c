// Handles CSV export of filtered submissions.

package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/whintake/whintake/internal/export"
	"github.com/whintake/whintake/internal/query"
	"github.com/whintake/whintake/internal/server/dto"
)

// ExportHandler streams filtered submissions as a CSV attachment.
type ExportHandler struct {
	Svc *Services
}

// Export is a raw http.HandlerFunc because the body is streamed CSV.
// Filters are the same as ListRecords; paging parameters are ignored.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hdr := w.Header()
	hdr.Set("Content-Type", export.ContentType)
	hdr.Set("Content-Disposition", "attachment; filename="+h.Svc.Export.Filename())
	cw := &countingWriter{w: w}
	n, err := h.Svc.Export.Write(ctx, cw, query.Build(r.URL.Query()))
	if m := h.Svc.Metrics; m != nil {
		m.ExportRows.Add(float64(n))
	}
	if err == nil {
		slog.InfoContext(ctx, "Exported records", "rows", n)
		return
	}
	slog.ErrorContext(ctx, "Export failed", "err", err, "rows", n, "bytes", cw.n)
	if cw.n == 0 {
		hdr.Del("Content-Disposition")
		writeErrorResponse(w, dto.Storage("Failed to export records", err))
	}
	// Otherwise the status line is already sent; the truncated body is all
	// the client gets.
}

// countingWriter tracks whether anything reached the client.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
