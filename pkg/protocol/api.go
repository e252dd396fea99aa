// Package protocol defines the API request/response types.
package protocol

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// DrawingsResponse is returned by GET /patents/{doc_id}/drawings.
// Truncated is only present when storage stopped listing at its page cap.
type DrawingsResponse struct {
	Drawings  []string `json:"drawings"`
	Truncated bool     `json:"truncated,omitempty"`
}

// DeleteDrawingsResponse is returned by DELETE /patents/{doc_id}/drawings.
type DeleteDrawingsResponse struct {
	Deleted int `json:"deleted"`
}

// StatusResponse is returned by /health and successful writes.
type StatusResponse struct {
	Status string `json:"status"`
}

// Content types served by the API.
const (
	ContentTypeJSON = "application/json"
	ContentTypeTIFF = "image/tiff"
)
