package webhooks

import (
	"crypto/hmac"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureHeader carries "t=<unix seconds>,sha256=<hex digest>".
	SignatureHeader = "X-Urlbox-Signature"

	// MaxAge bounds how long a captured signature can be replayed.
	MaxAge = 5 * time.Minute

	ReasonInvalidTimestamp = "Invalid timestamp"
	ReasonInvalidSignature = "Invalid signature"
)

var (
	timestampPattern = regexp.MustCompile(`^t=[0-9]+$`)
	signaturePattern = regexp.MustCompile(`^sha256=[0-9a-zA-Z]{40,}$`)
)

// InvalidSignatureError rejects a webhook call. Reason is empty when the
// header could not be split into its two fields.
type InvalidSignatureError struct {
	Reason string
}

func (e *InvalidSignatureError) Error() string {
	if e.Reason == "" {
		return "webhooks: invalid signature header"
	}
	return "webhooks: " + e.Reason
}

// Verifier checks signed webhook calls against a webhook secret. It is
// stateless apart from its configuration and safe for concurrent use.
type Verifier struct {
	secret string
	maxAge time.Duration
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: secret,
		maxAge: MaxAge,
		now:    time.Now,
	}
}

// WithClock returns a copy of the verifier that reads the current time from now.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	c := *v
	c.now = now
	return &c
}

// Verify is a one-shot helper around NewVerifier(secret).Verify.
func Verify(header string, payload []byte, secret string) error {
	return NewVerifier(secret).Verify(header, payload)
}

// Verify accepts the call only when header is well formed, no older than
// MaxAge and carries the HMAC-SHA256 of "{timestamp}.{compact payload}".
// Structural and freshness checks run before any digest is computed.
func (v *Verifier) Verify(header string, payload []byte) error {
	fields := strings.Split(header, ",")
	if len(fields) != 2 {
		return &InvalidSignatureError{}
	}

	timestamp, err := v.checkTimestamp(fields[0])
	if err != nil {
		return err
	}
	return v.checkSignature(fields[1], timestamp, payload)
}

func (v *Verifier) checkTimestamp(field string) (int64, error) {
	if !timestampPattern.MatchString(field) {
		return 0, &InvalidSignatureError{Reason: ReasonInvalidTimestamp}
	}

	timestamp, err := strconv.ParseInt(strings.TrimPrefix(field, "t="), 10, 64)
	if err != nil {
		return 0, &InvalidSignatureError{Reason: ReasonInvalidTimestamp}
	}

	age := v.now().UTC().Sub(time.Unix(timestamp, 0).UTC())
	if age > v.maxAge {
		return 0, &InvalidSignatureError{Reason: ReasonInvalidTimestamp}
	}
	return timestamp, nil
}

func (v *Verifier) checkSignature(field string, timestamp int64, payload []byte) error {
	if !signaturePattern.MatchString(field) {
		return &InvalidSignatureError{Reason: ReasonInvalidSignature}
	}
	if v.secret == "" {
		return &InvalidSignatureError{Reason: ReasonInvalidSignature}
	}

	compact, err := CompactJSON(payload)
	if err != nil {
		return &InvalidSignatureError{Reason: ReasonInvalidSignature}
	}

	expected := Sign(v.secret, SignedContent(timestamp, compact))
	supplied := strings.TrimPrefix(field, "sha256=")
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return &InvalidSignatureError{Reason: ReasonInvalidSignature}
	}
	return nil
}

// SignedAt returns the timestamp carried by a header that Verify accepted.
func SignedAt(header string) (int64, bool) {
	field, _, ok := strings.Cut(header, ",")
	if !ok || !timestampPattern.MatchString(field) {
		return 0, false
	}
	timestamp, err := strconv.ParseInt(strings.TrimPrefix(field, "t="), 10, 64)
	if err != nil {
		return 0, false
	}
	return timestamp, true
}
