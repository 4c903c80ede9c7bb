package models

import "encoding/json"

const (
	EventRenderSucceeded = "render.succeeded"
	EventRenderFailed    = "render.failed"
)

// WebhookPayload is the body of a render callback.
type WebhookPayload struct {
	Event    string `json:"event"`
	RenderID string `json:"renderId"`
	Result   *struct {
		RenderURL string `json:"renderUrl"`
		Size      int64  `json:"size"`
	} `json:"result,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Meta struct {
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
	} `json:"meta"`
}

// RenderEvent is a verified webhook call as stored. Payload is the body
// exactly as received.
type RenderEvent struct {
	ID         string          `json:"id"`
	RenderID   string          `json:"render_id"`
	Event      string          `json:"event"`
	RenderURL  string          `json:"render_url,omitempty"`
	Size       int64           `json:"size,omitempty"`
	Error      string          `json:"error,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	SignedAt   int64           `json:"signed_at"`
	ReceivedAt int64           `json:"received_at"`
}

// RenderStatus maps a webhook event onto a render status. Unknown events
// leave the render untouched.
func RenderStatus(event string) (string, bool) {
	switch event {
	case EventRenderSucceeded:
		return RenderStatusSucceeded, true
	case EventRenderFailed:
		return RenderStatusFailed, true
	default:
		return "", false
	}
}
