package httpapi

import "time"

// DefaultPageSize is the number of records requested per list page.
const DefaultPageSize = 100

// API paths, relative to the base URL.
const (
	EndpointRecords = "/collections/%s/records"
	EndpointRecord  = "/collections/%s/records/%s"
	EndpointHealth  = "/health"
)

// Record is a record as exchanged with the remote API.
type Record struct {
	ID         string         `json:"id"`
	LocalID    string         `json:"local_id,omitempty"`
	Properties map[string]any `json:"properties"`
	UpdatedAt  time.Time      `json:"updated_at,omitzero"`
}

// ListResponse is one page of GET /collections/{collection}/records.
type ListResponse struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// CreateRequest is the body of POST /collections/{collection}/records.
type CreateRequest struct {
	LocalID    string         `json:"local_id,omitempty"`
	Properties map[string]any `json:"properties"`
}

// UpdateRequest is the body of PATCH /collections/{collection}/records/{id}.
type UpdateRequest struct {
	Properties map[string]any `json:"properties"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
