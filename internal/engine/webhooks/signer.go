package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// SignedContent is the message covered by a webhook signature:
// "{timestamp}.{compact json payload}".
func SignedContent(timestamp int64, compactPayload []byte) []byte {
	ts := strconv.FormatInt(timestamp, 10)
	msg := make([]byte, 0, len(ts)+1+len(compactPayload))
	msg = append(msg, ts...)
	msg = append(msg, '.')
	return append(msg, compactPayload...)
}

// SignHeader builds a signature header value for payload the same way the
// render service does. Receivers use it in tests and local tooling.
func SignHeader(secret string, timestamp int64, payload []byte) (string, error) {
	compact, err := CompactJSON(payload)
	if err != nil {
		return "", err
	}
	digest := Sign(secret, SignedContent(timestamp, compact))
	return fmt.Sprintf("t=%d,sha256=%s", timestamp, digest), nil
}
