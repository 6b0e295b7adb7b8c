package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/whintake/whintake/internal/records"
)

// --- Records ---

// ListRecordsRequest is a request for one page of filtered submissions.
type ListRecordsRequest struct {
	Page    string `query:"page"`
	PerPage string `query:"per_page"`
	// Filters holds every query parameter; unknown names are ignored later.
	Filters url.Values `json:"-"`

	page    int
	perPage int
}

// BindQuery keeps the raw query for predicate construction.
func (r *ListRecordsRequest) BindQuery(q url.Values) {
	r.Filters = q
}

// Validate parses the paging parameters.
func (r *ListRecordsRequest) Validate() error {
	var err error
	if r.page, err = positive("page", r.Page); err != nil {
		return err
	}
	if r.perPage, err = positive("per_page", r.PerPage); err != nil {
		return err
	}
	return nil
}

// PageNumber returns the 1-based page, 1 when unset.
func (r *ListRecordsRequest) PageNumber() int {
	return max(r.page, 1)
}

// PerPageNumber returns per_page or 0 when unset.
func (r *ListRecordsRequest) PerPageNumber() int {
	return r.perPage
}

// positive parses an optional positive integer. Empty yields 0.
func positive(name, v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, InvalidField(name, fmt.Sprintf("%s must be a positive integer", name))
	}
	return n, nil
}

// SubmitRequest is a new submission as a JSON object of field to value.
type SubmitRequest struct {
	Fields map[string]any
}

// UnmarshalJSON accepts only a JSON object. Numbers are kept as
// json.Number so large integers are stored exactly.
func (r *SubmitRequest) UnmarshalJSON(b []byte) error {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	return d.Decode(&r.Fields)
}

// Validate checks that session_date is supplied.
func (r *SubmitRequest) Validate() error {
	if records.Blank(r.Fields["session_date"]) {
		return Required("session_date")
	}
	return nil
}

// DeleteRecordRequest is a request to delete one submission.
type DeleteRecordRequest struct {
	ID string `path:"id"`

	id int64
}

// Validate checks that the id is a base-10 integer.
func (r *DeleteRecordRequest) Validate() error {
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return InvalidField("id", "Invalid record ID")
	}
	r.id = id
	return nil
}

// RecordID returns the parsed id.
func (r *DeleteRecordRequest) RecordID() int64 {
	return r.id
}

// --- Misc ---

// HealthRequest is the request type for health check (empty).
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}

// SchemaRequest is a request for the submission JSON schema.
type SchemaRequest struct{}

// Validate is a no-op for SchemaRequest.
func (r *SchemaRequest) Validate() error {
	return nil
}

// ShutdownRequest asks the server to stop.
type ShutdownRequest struct{}

// Validate is a no-op for ShutdownRequest.
func (r *ShutdownRequest) Validate() error {
	return nil
}
