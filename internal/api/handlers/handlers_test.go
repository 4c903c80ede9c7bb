package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	apiContext "urlbox/internal/api/context"
	"urlbox/internal/engine/options"
	"urlbox/internal/engine/webhooks"
	"urlbox/internal/platform/config"
	"urlbox/internal/platform/database"
	"urlbox/internal/platform/models"
	"urlbox/internal/platform/repositories"
	"urlbox/internal/platform/urlbox"
	"urlbox/migrations"
)

const webhookSecret = "whsec_handler_test"

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if err := database.Migrate(db, migrations.FS(), database.DirectionUp); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeRenderer struct {
	posted []*options.Options
	err    error
	// onPost runs before Post returns its acknowledgement.
	onPost func()
}

func (f *fakeRenderer) Post(ctx context.Context, opts *options.Options) (*urlbox.RenderResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.posted = append(f.posted, opts)
	if f.onPost != nil {
		f.onPost()
	}
	return &urlbox.RenderResponse{
		Status:    "created",
		RenderID:  "r-1",
		StatusURL: "https://api.urlbox.io/v1/render/r-1",
	}, nil
}

func (f *fakeRenderer) GenerateURL(opts *options.Options) (string, error) {
	return urlbox.NewClient(config.UrlboxConfig{APIKey: "MY_API_KEY", APISecret: "secret"}).GenerateURL(opts)
}

func withParams(r *http.Request, ps httprouter.Params) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), apiContext.Params, ps))
}

func TestWebhookHandler_Receive(t *testing.T) {
	db := setupTestDB(t)
	renders := repositories.NewRenderRepository(db)
	events := repositories.NewRenderEventRepository(db)
	metrics := &Metrics{}
	h := NewWebhookHandler(webhooks.NewVerifier(webhookSecret), events, metrics, 1<<16)

	ctx := context.Background()
	if err := renders.Create(ctx, &models.Render{RenderID: "r-1", Target: "http://example.com", Format: "png", Options: []byte(`{}`)}); err != nil {
		t.Fatalf("Create render: %v", err)
	}

	payload := `{"event":"render.succeeded","renderId":"r-1","result":{"renderUrl":"https://renders.example.com/r-1.png","size":34097},"meta":{"startTime":"2021-11-24T16:49:48.307Z","endTime":"2021-11-24T16:49:53.659Z"}}`
	header, err := webhooks.SignHeader(webhookSecret, time.Now().Unix(), []byte(payload))
	if err != nil {
		t.Fatalf("SignHeader() error = %v", err)
	}

	send := func(header, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/urlbox", strings.NewReader(body))
		req.Header.Set(webhooks.SignatureHeader, header)
		rr := httptest.NewRecorder()
		h.Receive(rr, req)
		return rr
	}

	rr := send(header, payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("Receive() status = %d, body %s", rr.Code, rr.Body.String())
	}
	if strings.TrimSpace(rr.Body.String()) != `{"received":true}` {
		t.Errorf("Receive() body = %s", rr.Body.String())
	}

	render, err := renders.GetByRenderID(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetByRenderID() error = %v", err)
	}
	if render.Status != models.RenderStatusSucceeded || render.Size != 34097 {
		t.Errorf("render after webhook = %+v", render)
	}

	// Redelivery is acknowledged but stored once.
	if rr := send(header, payload); rr.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", rr.Code)
	}
	stored, err := events.ListByRender(ctx, "r-1")
	if err != nil || len(stored) != 1 {
		t.Fatalf("stored events = %v, %v", stored, err)
	}
	if string(stored[0].Payload) != payload {
		t.Errorf("stored payload = %s", stored[0].Payload)
	}

	if metrics.WebhooksAccepted.Load() != 1 || metrics.WebhooksDuplicate.Load() != 1 {
		t.Errorf("metrics accepted=%d duplicate=%d", metrics.WebhooksAccepted.Load(), metrics.WebhooksDuplicate.Load())
	}
}

func TestWebhookHandler_RejectsBadSignatures(t *testing.T) {
	db := setupTestDB(t)
	metrics := &Metrics{}
	h := NewWebhookHandler(
		webhooks.NewVerifier(webhookSecret),
		repositories.NewRenderEventRepository(db),
		metrics,
		1<<16,
	)

	payload := `{"event":"render.failed","renderId":"r-2","error":{"message":"timeout"}}`
	stale, _ := webhooks.SignHeader(webhookSecret, time.Now().Add(-10*time.Minute).Unix(), []byte(payload))
	wrong, _ := webhooks.SignHeader("other", time.Now().Unix(), []byte(payload))

	for name, header := range map[string]string{
		"missing": "",
		"stale":   stale,
		"wrong":   wrong,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/urlbox", strings.NewReader(payload))
			req.Header.Set(webhooks.SignatureHeader, header)
			rr := httptest.NewRecorder()
			h.Receive(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			if !strings.Contains(rr.Body.String(), "INVALID_SIGNATURE") {
				t.Errorf("body = %s", rr.Body.String())
			}
		})
	}

	if metrics.WebhooksRejected.Load() != 3 {
		t.Errorf("rejected = %d, want 3", metrics.WebhooksRejected.Load())
	}
}

func TestWebhookHandler_BodyLimitAndShape(t *testing.T) {
	db := setupTestDB(t)
	h := NewWebhookHandler(
		webhooks.NewVerifier(webhookSecret),
		repositories.NewRenderEventRepository(db),
		&Metrics{},
		32,
	)

	big := `{"event":"render.succeeded","renderId":"r-1","padding":"` + strings.Repeat("x", 64) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/urlbox", strings.NewReader(big))
	rr := httptest.NewRecorder()
	h.Receive(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body status = %d", rr.Code)
	}

	h.maxBody = 1 << 16
	body := `{"status":"ok"}`
	header, _ := webhooks.SignHeader(webhookSecret, time.Now().Unix(), []byte(body))
	req = httptest.NewRequest(http.MethodPost, "/webhooks/urlbox", strings.NewReader(body))
	req.Header.Set(webhooks.SignatureHeader, header)
	rr = httptest.NewRecorder()
	h.Receive(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("signed payload without event status = %d", rr.Code)
	}
}

func TestRenderHandler_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	renders := repositories.NewRenderRepository(db)
	events := repositories.NewRenderEventRepository(db)
	client := &fakeRenderer{}
	metrics := &Metrics{}
	h := NewRenderHandler(client, renders, events, metrics, 1<<16)

	body := `{"url":"example.com","full_page":true,"webhook_url":"https://hooks.example.com/urlbox"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/renders", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("Create() status = %d, body %s", rr.Code, rr.Body.String())
	}
	var created models.Render
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.RenderID != "r-1" || created.Status != models.RenderStatusPending || created.Target != "http://example.com" {
		t.Errorf("created = %+v", created)
	}
	if string(created.Options) != `{"url":"http://example.com","full_page":true,"webhook_url":"https://hooks.example.com/urlbox","format":"png"}` {
		t.Errorf("stored options = %s", created.Options)
	}
	if len(client.posted) != 1 || metrics.RendersRequested.Load() != 1 {
		t.Errorf("posted = %d, requested = %d", len(client.posted), metrics.RendersRequested.Load())
	}

	if _, err := events.Create(context.Background(), &models.RenderEvent{RenderID: "r-1", Event: models.EventRenderSucceeded, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("Create event: %v", err)
	}

	for _, id := range []string{"r-1", created.ID} {
		req = withParams(httptest.NewRequest(http.MethodGet, "/api/v1/renders/"+id, nil),
			httprouter.Params{{Key: "render_id", Value: id}})
		rr = httptest.NewRecorder()
		h.Get(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Get(%s) status = %d", id, rr.Code)
		}
		var got models.Render
		json.NewDecoder(rr.Body).Decode(&got)
		if got.ID != created.ID || len(got.Events) != 1 {
			t.Errorf("Get(%s) = %+v", id, got)
		}
	}

	req = withParams(httptest.NewRequest(http.MethodGet, "/api/v1/renders/missing", nil),
		httprouter.Params{{Key: "render_id", Value: "missing"}})
	rr = httptest.NewRecorder()
	h.Get(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Get(missing) status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/renders?limit=10", nil))
	var page struct {
		Renders []models.Render `json:"renders"`
		Limit   int             `json:"limit"`
	}
	json.NewDecoder(rr.Body).Decode(&page)
	if len(page.Renders) != 1 || page.Limit != 10 {
		t.Errorf("List() = %+v", page)
	}
}

func TestRenderHandler_CreateErrors(t *testing.T) {
	db := setupTestDB(t)
	tests := []struct {
		name   string
		body   string
		client *fakeRenderer
		status int
		code   string
	}{
		{"missing target", `{"full_page":true}`, &fakeRenderer{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"invalid url", `{"url":"intranet"}`, &fakeRenderer{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"nested object", `{"url":"example.com","headers":{"a":"b"}}`, &fakeRenderer{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"not json", `url=example.com`, &fakeRenderer{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"upstream", `{"url":"example.com"}`, &fakeRenderer{err: &urlbox.APIError{StatusCode: 401}}, http.StatusBadGateway, "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRenderHandler(tt.client, repositories.NewRenderRepository(db), repositories.NewRenderEventRepository(db), &Metrics{}, 1<<16)
			rr := httptest.NewRecorder()
			h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/renders", strings.NewReader(tt.body)))

			if rr.Code != tt.status || !strings.Contains(rr.Body.String(), tt.code) {
				t.Errorf("status = %d body = %s, want %d %s", rr.Code, rr.Body.String(), tt.status, tt.code)
			}
		})
	}
}

func TestRenderHandler_GenerateURL(t *testing.T) {
	h := NewRenderHandler(&fakeRenderer{}, nil, nil, &Metrics{}, 1<<16)

	rr := httptest.NewRecorder()
	h.GenerateURL(rr, httptest.NewRequest(http.MethodPost, "/api/v1/render-urls", strings.NewReader(`{"url":"example.com"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	var got map[string]string
	json.NewDecoder(rr.Body).Decode(&got)
	want := "https://api.urlbox.io/v1/MY_API_KEY/png?url=http%3A%2F%2Fexample.com&format=png"
	if got["url"] != want {
		t.Errorf("url = %s, want %s", got["url"], want)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	db := setupTestDB(t)

	rr := httptest.NewRecorder()
	NewHealthHandler(db).Check(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"database":"healthy"`) {
		t.Errorf("health = %d %s", rr.Code, rr.Body.String())
	}

	closed := setupTestDB(t)
	closed.Close()
	rr = httptest.NewRecorder()
	NewHealthHandler(closed).Check(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("health on closed db = %d", rr.Code)
	}

	metrics := &Metrics{}
	metrics.WebhooksAccepted.Add(3)
	metrics.RendersRequested.Add(2)
	rr = httptest.NewRecorder()
	NewMetricsHandler(metrics).Export(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	out := rr.Body.String()
	for _, line := range []string{
		`urlbox_webhooks_total{outcome="accepted"} 3`,
		`urlbox_renders_requested_total 2`,
	} {
		if !bytes.Contains([]byte(out), []byte(line)) {
			t.Errorf("metrics output missing %q:\n%s", line, out)
		}
	}
}

func TestWebhookHandler_FailedStatusUpdateIsRetried(t *testing.T) {
	db := setupTestDB(t)
	renders := repositories.NewRenderRepository(db)
	events := repositories.NewRenderEventRepository(db)
	h := NewWebhookHandler(webhooks.NewVerifier(webhookSecret), events, &Metrics{}, 1<<16)

	ctx := context.Background()
	if err := renders.Create(ctx, &models.Render{RenderID: "r-7", Target: "http://example.com", Format: "png", Options: []byte(`{}`)}); err != nil {
		t.Fatalf("Create render: %v", err)
	}

	payload := `{"event":"render.succeeded","renderId":"r-7","result":{"renderUrl":"https://renders.example.com/r-7.png","size":10}}`
	header, _ := webhooks.SignHeader(webhookSecret, time.Now().Unix(), []byte(payload))
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/urlbox", strings.NewReader(payload))
		req.Header.Set(webhooks.SignatureHeader, header)
		rr := httptest.NewRecorder()
		h.Receive(rr, req)
		return rr.Code
	}

	if _, err := db.Exec(`ALTER TABLE renders RENAME TO renders_offline`); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if code := send(); code != http.StatusInternalServerError {
		t.Fatalf("first delivery status = %d, want 500", code)
	}
	if stored, _ := events.ListByRender(ctx, "r-7"); len(stored) != 0 {
		t.Fatalf("failed delivery left %d events behind", len(stored))
	}

	if _, err := db.Exec(`ALTER TABLE renders_offline RENAME TO renders`); err != nil {
		t.Fatalf("rename back: %v", err)
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want 200", code)
	}

	render, err := renders.GetByRenderID(ctx, "r-7")
	if err != nil {
		t.Fatalf("GetByRenderID() error = %v", err)
	}
	if render.Status != models.RenderStatusSucceeded {
		t.Errorf("status after redelivery = %s, want %s", render.Status, models.RenderStatusSucceeded)
	}
}

func TestRenderHandler_CallbackBeforeAcknowledgement(t *testing.T) {
	db := setupTestDB(t)
	renders := repositories.NewRenderRepository(db)
	events := repositories.NewRenderEventRepository(db)
	receiver := NewWebhookHandler(webhooks.NewVerifier(webhookSecret), events, &Metrics{}, 1<<16)

	payload := `{"event":"render.succeeded","renderId":"r-1","result":{"renderUrl":"https://renders.example.com/r-1.png","size":2048}}`
	client := &fakeRenderer{onPost: func() {
		header, _ := webhooks.SignHeader(webhookSecret, time.Now().Unix(), []byte(payload))
		req := httptest.NewRequest(http.MethodPost, "/webhooks/urlbox", strings.NewReader(payload))
		req.Header.Set(webhooks.SignatureHeader, header)
		rr := httptest.NewRecorder()
		receiver.Receive(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("early webhook status = %d", rr.Code)
		}
	}}
	h := NewRenderHandler(client, renders, events, &Metrics{}, 1<<16)

	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/renders", strings.NewReader(`{"url":"example.com"}`)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Create() status = %d, body %s", rr.Code, rr.Body.String())
	}

	var created models.Render
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != models.RenderStatusSucceeded || created.Size != 2048 {
		t.Errorf("response render = %+v", created)
	}

	stored, err := renders.GetByRenderID(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("GetByRenderID() error = %v", err)
	}
	if stored.Status != models.RenderStatusSucceeded || stored.RenderURL != "https://renders.example.com/r-1.png" {
		t.Errorf("stored render = %+v", stored)
	}
}
