package handlers

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Metrics holds the process-wide counters exported by MetricsHandler.
type Metrics struct {
	WebhooksAccepted  atomic.Int64
	WebhooksDuplicate atomic.Int64
	WebhooksRejected  atomic.Int64
	RendersRequested  atomic.Int64
	RenderErrors      atomic.Int64
	EventsPurged      atomic.Int64
}

type MetricsHandler struct {
	metrics *Metrics
}

func NewMetricsHandler(metrics *Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Export writes the counters in the Prometheus text exposition format.
func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP urlbox_up Is the server up\n")
	fmt.Fprintf(w, "# TYPE urlbox_up gauge\n")
	fmt.Fprintf(w, "urlbox_up 1\n")

	fmt.Fprintf(w, "# HELP urlbox_webhooks_total Webhook calls by outcome\n")
	fmt.Fprintf(w, "# TYPE urlbox_webhooks_total counter\n")
	fmt.Fprintf(w, "urlbox_webhooks_total{outcome=\"accepted\"} %d\n", h.metrics.WebhooksAccepted.Load())
	fmt.Fprintf(w, "urlbox_webhooks_total{outcome=\"duplicate\"} %d\n", h.metrics.WebhooksDuplicate.Load())
	fmt.Fprintf(w, "urlbox_webhooks_total{outcome=\"rejected\"} %d\n", h.metrics.WebhooksRejected.Load())

	fmt.Fprintf(w, "# HELP urlbox_renders_requested_total Asynchronous renders requested\n")
	fmt.Fprintf(w, "# TYPE urlbox_renders_requested_total counter\n")
	fmt.Fprintf(w, "urlbox_renders_requested_total %d\n", h.metrics.RendersRequested.Load())

	fmt.Fprintf(w, "# HELP urlbox_render_errors_total Render requests that failed\n")
	fmt.Fprintf(w, "# TYPE urlbox_render_errors_total counter\n")
	fmt.Fprintf(w, "urlbox_render_errors_total %d\n", h.metrics.RenderErrors.Load())

	fmt.Fprintf(w, "# HELP urlbox_events_purged_total Webhook events removed by retention\n")
	fmt.Fprintf(w, "# TYPE urlbox_events_purged_total counter\n")
	fmt.Fprintf(w, "urlbox_events_purged_total %d\n", h.metrics.EventsPurged.Load())
}
