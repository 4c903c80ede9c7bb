package signing

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"urlbox/internal/engine/options"
)

const DefaultBaseURL = "https://api.urlbox.io/v1"

// Mode selects how BuildURL renders the request URL.
type Mode int

const (
	ModeGet Mode = iota
	ModeHead
	ModeDelete
	// ModeString builds a display URL that never carries a token, even when
	// a secret is configured.
	ModeString
)

func (m Mode) String() string {
	switch m {
	case ModeGet:
		return http.MethodGet
	case ModeHead:
		return http.MethodHead
	case ModeDelete:
		return http.MethodDelete
	case ModeString:
		return "STRING"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

type Credentials struct {
	APIKey        string
	APISecret     string
	WebhookSecret string
}

// MissingSecretError is returned when an operation needs the API secret.
type MissingSecretError struct{}

func (e *MissingSecretError) Error() string {
	return "signing: api secret is required for this request"
}

// PostRequest is a ready-to-send render request for the POST endpoint.
type PostRequest struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Signer builds request URLs and POST requests for the render API. It holds
// no mutable state and is safe for concurrent use.
type Signer struct {
	credentials Credentials
	baseURL     string
	logger      zerolog.Logger
}

func NewSigner(creds Credentials, hostName string) *Signer {
	return &Signer{
		credentials: creds,
		baseURL:     BaseURL(hostName),
		logger:      log.Logger,
	}
}

// WithLogger returns a copy of the signer that reports warnings to logger.
func (s *Signer) WithLogger(logger zerolog.Logger) *Signer {
	c := *s
	c.logger = logger
	return &c
}

// WithBaseURL returns a copy of the signer that targets base instead of the
// API root derived from the host name.
func (s *Signer) WithBaseURL(base string) *Signer {
	c := *s
	c.baseURL = strings.TrimRight(base, "/")
	return &c
}

func (s *Signer) BaseURL() string {
	return s.baseURL
}

// BaseURL returns the API root for an optional host override such as
// api-eu.urlbox.io. Only the host of DefaultBaseURL is replaced.
func BaseURL(hostName string) string {
	host := strings.TrimSpace(hostName)
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	host = strings.TrimRight(host, "/")
	if host == "" {
		return DefaultBaseURL
	}

	base, _ := url.Parse(DefaultBaseURL)
	base.Host = host
	return base.String()
}

// Token is the lowercase hex HMAC-SHA1 of the encoded options keyed by the
// API secret.
func Token(secret, encodedOptions string) string {
	h := hmac.New(sha1.New, []byte(secret))
	h.Write([]byte(encodedOptions))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildURL returns the request URL for mode. With a secret configured the
// GET, HEAD and DELETE forms carry a token over the encoded options.
func (s *Signer) BuildURL(opts *options.Options, mode Mode) (string, error) {
	query, format, err := options.Encode(opts)
	if err != nil {
		return "", err
	}

	key := url.PathEscape(s.credentials.APIKey)
	if mode == ModeString || s.credentials.APISecret == "" {
		return fmt.Sprintf("%s/%s/%s?%s", s.baseURL, key, url.PathEscape(format), query), nil
	}

	token := Token(s.credentials.APISecret, query)
	return fmt.Sprintf("%s/%s/%s/%s?%s", s.baseURL, key, token, url.PathEscape(format), query), nil
}

// BuildPostRequest prepares an asynchronous render request. The body is the
// normalized options as a JSON object and the secret itself is the bearer
// credential.
func (s *Signer) BuildPostRequest(opts *options.Options) (*PostRequest, error) {
	if s.credentials.APISecret == "" {
		return nil, &MissingSecretError{}
	}

	normalized, err := options.Normalize(opts)
	if err != nil {
		return nil, err
	}

	if !normalized.Has(options.KeyWebhookURL) {
		s.logger.Warn().
			Str("base_url", s.baseURL).
			Msg("webhook_url not provided: poll the statusUrl returned by the render request for the result")
	}

	body, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("signing: encode render body: %w", err)
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+s.credentials.APISecret)

	return &PostRequest{
		URL:    s.baseURL + "/render",
		Header: header,
		Body:   body,
	}, nil
}
