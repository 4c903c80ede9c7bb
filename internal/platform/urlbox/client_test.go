package urlbox

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"urlbox/internal/engine/options"
	"urlbox/internal/engine/signing"
	"urlbox/internal/platform/config"
)

func newTestClient(t *testing.T, secret string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.UrlboxConfig{APIKey: "MY_API_KEY", APISecret: secret, Timeout: 5 * time.Second}
	return NewClient(cfg).WithBaseURL(server.URL + "/v1")
}

func TestClient_GetSendsSignedURL(t *testing.T) {
	var gotPath, gotQuery, gotMethod string
	client := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNGDATA"))
	})

	opts := options.New().Set("url", "example.com")
	resp, err := client.Get(context.Background(), opts)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	wantQuery := "url=http%3A%2F%2Fexample.com&format=png"
	wantPath := "/v1/MY_API_KEY/" + signing.Token("secret", wantQuery) + "/png"
	if gotMethod != http.MethodGet || gotPath != wantPath || gotQuery != wantQuery {
		t.Errorf("request = %s %s?%s, want GET %s?%s", gotMethod, gotPath, gotQuery, wantPath, wantQuery)
	}
	if resp.StatusCode != http.StatusOK || resp.ContentType != "image/png" || string(resp.Body) != "PNGDATA" {
		t.Errorf("response = %+v", resp)
	}
}

func TestClient_HeadAndDeleteUseTheirMethods(t *testing.T) {
	var methods []string
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if strings.Count(r.URL.Path, "/") != 3 {
			t.Errorf("unsigned path should have no token segment: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	opts := options.New().Set("url", "https://example.com")
	if _, err := client.Head(context.Background(), opts); err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if _, err := client.Delete(context.Background(), opts); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if len(methods) != 2 || methods[0] != http.MethodHead || methods[1] != http.MethodDelete {
		t.Errorf("methods = %v", methods)
	}
}

func TestClient_NonSuccessIsAPIError(t *testing.T) {
	client := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid token"}}`))
	})

	_, err := client.Get(context.Background(), options.New().Set("url", "example.com"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || !strings.Contains(string(apiErr.Body), "Invalid token") {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClient_InvalidOptionsNeverReachServer(t *testing.T) {
	client := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	})

	_, err := client.Get(context.Background(), options.New().Set("full_page", true))
	var missing *options.MissingTargetError
	if !errors.As(err, &missing) {
		t.Errorf("expected MissingTargetError, got %v", err)
	}
}

func TestClient_PostAndStatus(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/render":
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"url":"http://example.com","webhook_url":"https://hooks.example.com","format":"png"}` {
				t.Errorf("body = %s", body)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"status":"created","renderId":"r-1","statusUrl":"` + server.URL + `/v1/render/r-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/render/r-1":
			w.Write([]byte(`{"status":"succeeded","renderId":"r-1","renderUrl":"https://renders.example.com/r-1.png","size":2048}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(config.UrlboxConfig{APIKey: "MY_API_KEY", APISecret: "secret"}).WithBaseURL(server.URL + "/v1")

	opts := options.New().
		Set("url", "example.com").
		Set("webhook_url", "https://hooks.example.com")
	ack, err := client.Post(context.Background(), opts)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if ack.RenderID != "r-1" || ack.Status != "created" {
		t.Fatalf("Post() = %+v", ack)
	}

	status, err := client.Status(context.Background(), ack.StatusURL)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Status != "succeeded" || status.Size != 2048 {
		t.Errorf("Status() = %+v", status)
	}
}

func TestClient_PostRequiresSecret(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	})

	_, err := client.Post(context.Background(), options.New().Set("url", "example.com"))
	var missing *signing.MissingSecretError
	if !errors.As(err, &missing) {
		t.Errorf("expected MissingSecretError, got %v", err)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, options.New().Set("url", "example.com"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_GenerateURLHasNoToken(t *testing.T) {
	client := NewClient(config.UrlboxConfig{APIKey: "MY_API_KEY", APISecret: "secret"})

	got, err := client.GenerateURL(options.New().Set("url", "example.com"))
	if err != nil {
		t.Fatalf("GenerateURL() error = %v", err)
	}
	want := "https://api.urlbox.io/v1/MY_API_KEY/png?url=http%3A%2F%2Fexample.com&format=png"
	if got != want {
		t.Errorf("GenerateURL() = %s, want %s", got, want)
	}
}
