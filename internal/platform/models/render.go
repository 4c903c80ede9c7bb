package models

import "encoding/json"

const (
	RenderStatusPending   = "pending"
	RenderStatusSucceeded = "succeeded"
	RenderStatusFailed    = "failed"
)

// Render is an asynchronous render requested through this service.
// RenderID is the identifier assigned by the render API.
type Render struct {
	ID        string          `json:"id"`
	RenderID  string          `json:"render_id,omitempty"`
	Status    string          `json:"status"`
	Target    string          `json:"target"`
	Format    string          `json:"format"`
	StatusURL string          `json:"status_url,omitempty"`
	RenderURL string          `json:"render_url,omitempty"`
	Size      int64           `json:"size,omitempty"`
	Error     string          `json:"error,omitempty"`
	Options   json.RawMessage `json:"options"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`

	Events []*RenderEvent `json:"events,omitempty"`
}
