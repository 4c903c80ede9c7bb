// Package urlbox sends render requests built by the signing package to the
// render API.
package urlbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"urlbox/internal/engine/options"
	"urlbox/internal/engine/signing"
	"urlbox/internal/platform/config"
)

const defaultTimeout = 100 * time.Second

// APIError is returned for any non-2xx response from the render API.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("urlbox: render api returned status %d: %s", e.StatusCode, string(e.Body))
}

// Response is the raw result of a GET, HEAD or DELETE render call.
type Response struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// RenderResponse is the acknowledgement of an asynchronous render request.
type RenderResponse struct {
	Status    string `json:"status"`
	RenderID  string `json:"renderId"`
	StatusURL string `json:"statusUrl"`
}

// RenderStatus is the document served at a render's status URL.
type RenderStatus struct {
	Status    string `json:"status"`
	RenderID  string `json:"renderId"`
	RenderURL string `json:"renderUrl,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type Client struct {
	signer *signing.Signer
	http   *http.Client
	secret string
	logger zerolog.Logger
}

func NewClient(cfg config.UrlboxConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	creds := signing.Credentials{
		APIKey:        cfg.APIKey,
		APISecret:     cfg.APISecret,
		WebhookSecret: cfg.WebhookSecret,
	}

	return &Client{
		signer: signing.NewSigner(creds, cfg.APIHostName),
		http:   &http.Client{Timeout: timeout},
		secret: cfg.APISecret,
		logger: log.Logger,
	}
}

// WithBaseURL points the client at base, typically a proxy or test server.
func (c *Client) WithBaseURL(base string) *Client {
	cp := *c
	cp.signer = c.signer.WithBaseURL(base)
	return &cp
}

func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	cp := *c
	cp.logger = logger
	cp.signer = c.signer.WithLogger(logger)
	return &cp
}

func (c *Client) Signer() *signing.Signer {
	return c.signer
}

func (c *Client) Get(ctx context.Context, opts *options.Options) (*Response, error) {
	return c.do(ctx, opts, signing.ModeGet)
}

func (c *Client) Head(ctx context.Context, opts *options.Options) (*Response, error) {
	return c.do(ctx, opts, signing.ModeHead)
}

func (c *Client) Delete(ctx context.Context, opts *options.Options) (*Response, error) {
	return c.do(ctx, opts, signing.ModeDelete)
}

// GenerateURL returns the display form of the render URL. It never carries a
// token.
func (c *Client) GenerateURL(opts *options.Options) (string, error) {
	return c.signer.BuildURL(opts, signing.ModeString)
}

// Post requests an asynchronous render. The result is delivered to the
// webhook_url option when set, otherwise it must be polled via StatusURL.
func (c *Client) Post(ctx context.Context, opts *options.Options) (*RenderResponse, error) {
	post, err := c.signer.BuildPostRequest(opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, post.URL, bytes.NewReader(post.Body))
	if err != nil {
		return nil, fmt.Errorf("urlbox: create render request: %w", err)
	}
	req.Header = post.Header

	var out RenderResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the current state of an asynchronous render.
func (c *Client) Status(ctx context.Context, statusURL string) (*RenderStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("urlbox: create status request: %w", err)
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	var out RenderStatus
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, opts *options.Options, mode signing.Mode) (*Response, error) {
	target, err := c.signer.BuildURL(opts, mode)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, mode.String(), target, nil)
	if err != nil {
		return nil, fmt.Errorf("urlbox: create %s request: %w", mode, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("urlbox: %s request failed: %w", mode, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("urlbox: read response: %w", err)
	}

	c.logger.Debug().
		Str("method", mode.String()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("render api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        body,
	}, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("urlbox: %s request failed: %w", req.Method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("urlbox: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("urlbox: decode response: %w", err)
	}
	return nil
}
