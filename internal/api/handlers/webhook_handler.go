package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"urlbox/internal/engine/webhooks"
	"urlbox/internal/pkg/errors"
	"urlbox/internal/platform/models"
	"urlbox/internal/platform/repositories"
)

// WebhookHandler receives render callbacks signed with the webhook secret.
type WebhookHandler struct {
	verifier *webhooks.Verifier
	events   *repositories.RenderEventRepository
	metrics  *Metrics
	maxBody  int64
}

func NewWebhookHandler(
	verifier *webhooks.Verifier,
	events *repositories.RenderEventRepository,
	metrics *Metrics,
	maxBody int64,
) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		events:   events,
		metrics:  metrics,
		maxBody:  maxBody,
	}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodeInvalidInput, "Request body too large", nil)
			return
		}
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Could not read request body", nil)
		return
	}

	header := r.Header.Get(webhooks.SignatureHeader)
	if err := h.verifier.Verify(header, body); err != nil {
		h.metrics.WebhooksRejected.Add(1)
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected webhook")
		errors.Write(w, err)
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Event == "" || payload.RenderID == "" {
		h.metrics.WebhooksRejected.Add(1)
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Webhook payload must carry event and renderId", nil)
		return
	}

	signedAt, _ := webhooks.SignedAt(header)
	event := &models.RenderEvent{
		RenderID: payload.RenderID,
		Event:    payload.Event,
		Payload:  body,
		SignedAt: signedAt,
	}
	if payload.Result != nil {
		event.RenderURL = payload.Result.RenderURL
		event.Size = payload.Result.Size
	}
	if payload.Error != nil {
		event.Error = payload.Error.Message
	}

	created, tracked, err := h.events.Record(r.Context(), event)
	logger := log.With().Str("render_id", event.RenderID).Str("event", event.Event).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("failed to record webhook event")
		errors.Write(w, err)
		return
	}

	if !created {
		h.metrics.WebhooksDuplicate.Add(1)
		logger.Info().Msg("duplicate webhook ignored")
	} else {
		h.metrics.WebhooksAccepted.Add(1)
		logger.Info().Bool("tracked", tracked).Msg("webhook accepted")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
