// Handles listing, creating and deleting submissions.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/whintake/whintake/internal/query"
	"github.com/whintake/whintake/internal/records"
	"github.com/whintake/whintake/internal/server/dto"
)

// RecordHandler handles submission requests.
type RecordHandler struct {
	Svc *Services
	Cfg *Config
}

// ListRecords returns one page of the submissions matching the filters,
// newest session first.
func (h *RecordHandler) ListRecords(ctx context.Context, req *dto.ListRecordsRequest) (*dto.ListRecordsResponse, error) {
	perPage := req.PerPageNumber()
	if perPage == 0 {
		perPage = h.Cfg.DefaultPerPage
	}
	if h.Cfg.MaxPerPage > 0 {
		perPage = min(perPage, h.Cfg.MaxPerPage)
	}
	page := req.PageNumber()
	total, recs, err := h.Svc.Store.Query(ctx, query.Build(req.Filters), page, perPage)
	if err != nil {
		return nil, dto.Storage("Failed to fetch records", err)
	}
	out := make([]json.Marshaler, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return &dto.ListRecordsResponse{Total: total, Page: page, PerPage: perPage, Records: out}, nil
}

// Submit stores a new submission.
func (h *RecordHandler) Submit(ctx context.Context, req *dto.SubmitRequest) (*dto.SubmitResponse, error) {
	id, err := h.Svc.Store.Create(ctx, req.Fields)
	if err != nil {
		var ve *records.ValidationError
		if errors.As(err, &ve) {
			if ve.Field == "session_date" {
				return nil, dto.Required(ve.Field)
			}
			return nil, dto.InvalidField(ve.Field, ve.Error())
		}
		return nil, dto.Storage("Failed to save record", err)
	}
	slog.InfoContext(ctx, "Record created", "id", id)
	if m := h.Svc.Metrics; m != nil {
		m.RecordsCreated.Inc()
	}
	return &dto.SubmitResponse{Status: dto.StatusOK, ID: id}, nil
}

// DeleteRecord removes one submission by id.
func (h *RecordHandler) DeleteRecord(ctx context.Context, req *dto.DeleteRecordRequest) (*dto.DeleteRecordResponse, error) {
	id, err := h.Svc.Store.Delete(ctx, req.RecordID())
	if errors.Is(err, records.ErrNotFound) {
		return nil, dto.NotFound("Record")
	}
	if err != nil {
		return nil, dto.Storage("Failed to delete record", err)
	}
	slog.InfoContext(ctx, "Record deleted", "id", id)
	if m := h.Svc.Metrics; m != nil {
		m.RecordsDeleted.Inc()
	}
	return &dto.DeleteRecordResponse{Status: dto.StatusOK, DeletedID: id}, nil
}
