package dto

import "encoding/json"

// StatusOK is the discriminator value of every success envelope.
const StatusOK = "ok"

// ListRecordsResponse is one page of submissions.
type ListRecordsResponse struct {
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
	Records []json.Marshaler `json:"records"`
}

// SubmitResponse is returned after storing a submission.
type SubmitResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

// DeleteRecordResponse is returned after deleting a submission.
type DeleteRecordResponse struct {
	Status    string `json:"status"`
	DeletedID int64  `json:"deleted_id"`
}

// StatusResponse is a success envelope with a human-readable message.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
