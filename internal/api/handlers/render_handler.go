package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "urlbox/internal/api/context"
	"urlbox/internal/engine/options"
	"urlbox/internal/pkg/errors"
	"urlbox/internal/platform/models"
	"urlbox/internal/platform/repositories"
	"urlbox/internal/platform/urlbox"
)

const maxPageSize = 200

// Renderer is the part of the render API client the handlers depend on.
type Renderer interface {
	Post(ctx context.Context, opts *options.Options) (*urlbox.RenderResponse, error)
	GenerateURL(opts *options.Options) (string, error)
}

type RenderHandler struct {
	client  Renderer
	renders *repositories.RenderRepository
	events  *repositories.RenderEventRepository
	metrics *Metrics
	maxBody int64
}

func NewRenderHandler(
	client Renderer,
	renders *repositories.RenderRepository,
	events *repositories.RenderEventRepository,
	metrics *Metrics,
	maxBody int64,
) *RenderHandler {
	return &RenderHandler{
		client:  client,
		renders: renders,
		events:  events,
		metrics: metrics,
		maxBody: maxBody,
	}
}

// Create submits an asynchronous render and tracks it as pending until its
// webhook arrives.
func (h *RenderHandler) Create(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.readOptions(w, r)
	if !ok {
		return
	}

	normalized, err := options.Normalize(opts)
	if err != nil {
		errors.Write(w, err)
		return
	}

	h.metrics.RendersRequested.Add(1)
	ack, err := h.client.Post(r.Context(), normalized)
	if err != nil {
		h.metrics.RenderErrors.Add(1)
		log.Error().Err(err).Msg("render request failed")
		errors.Write(w, err)
		return
	}

	stored, err := json.Marshal(normalized)
	if err != nil {
		errors.Write(w, err)
		return
	}
	format, _ := options.Format(normalized)

	render := &models.Render{
		RenderID:  ack.RenderID,
		Target:    target(normalized),
		Format:    format,
		StatusURL: ack.StatusURL,
		Options:   stored,
	}
	if err := h.renders.Create(r.Context(), render); err != nil {
		log.Error().Err(err).Str("render_id", ack.RenderID).Msg("failed to store render")
		errors.Write(w, err)
		return
	}

	// The callback can beat the acknowledgement; apply whatever already arrived.
	if ack.RenderID != "" {
		early, err := h.events.ListByRender(r.Context(), ack.RenderID)
		if err == nil {
			render, err = h.renders.ReplayEvents(r.Context(), render, early)
		}
		if err != nil {
			log.Error().Err(err).Str("render_id", ack.RenderID).Msg("failed to apply early webhook events")
			errors.Write(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(render)
}

func (h *RenderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	renders, err := h.renders.List(r.Context(), limit, offset)
	if err != nil {
		errors.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"renders": renders,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get looks a render up by the render API's id, or by the local id.
func (h *RenderHandler) Get(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	id := params.ByName("render_id")

	render, err := h.renders.GetByRenderID(r.Context(), id)
	if stderrors.Is(err, repositories.ErrNotFound) {
		render, err = h.renders.GetByID(r.Context(), id)
	}
	if err != nil {
		errors.Write(w, err)
		return
	}

	if render.RenderID != "" {
		render.Events, err = h.events.ListByRender(r.Context(), render.RenderID)
		if err != nil {
			errors.Write(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(render)
}

// GenerateURL returns the display URL for the posted options. The URL never
// carries a token so it is safe to hand to browsers.
func (h *RenderHandler) GenerateURL(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.readOptions(w, r)
	if !ok {
		return
	}

	renderURL, err := h.client.GenerateURL(opts)
	if err != nil {
		errors.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": renderURL})
}

func (h *RenderHandler) readOptions(w http.ResponseWriter, r *http.Request) (*options.Options, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodeInvalidInput, "Request body too large", nil)
		return nil, false
	}

	opts, err := options.Parse(body)
	if err != nil {
		var unsupported *options.UnsupportedValueError
		if stderrors.As(err, &unsupported) {
			errors.Write(w, err)
			return nil, false
		}
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Request body must be a JSON object of render options", nil)
		return nil, false
	}
	return opts, true
}

func target(opts *options.Options) string {
	if v, ok := opts.Get(options.KeyURL); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return options.KeyHTML
}
