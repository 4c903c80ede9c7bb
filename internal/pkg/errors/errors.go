package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"urlbox/internal/engine/options"
	"urlbox/internal/engine/webhooks"
	"urlbox/internal/platform/repositories"
	"urlbox/internal/platform/urlbox"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInvalidSignature  = "INVALID_SIGNATURE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeUpstream          = "UPSTREAM_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

// FromEngine maps an error returned by the option, webhook, storage or
// render API layers onto an HTTP status and error code. Anything else,
// including a missing API secret, is internal.
func FromEngine(err error) (int, string) {
	var (
		missingTarget *options.MissingTargetError
		invalidURL    *options.InvalidURLError
		unsupported   *options.UnsupportedValueError
		badSignature  *webhooks.InvalidSignatureError
		apiErr        *urlbox.APIError
	)

	switch {
	case stderrors.As(err, &missingTarget),
		stderrors.As(err, &invalidURL),
		stderrors.As(err, &unsupported):
		return http.StatusBadRequest, ErrCodeInvalidInput
	case stderrors.As(err, &badSignature):
		return http.StatusUnauthorized, ErrCodeInvalidSignature
	case stderrors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case stderrors.As(err, &apiErr):
		return http.StatusBadGateway, ErrCodeUpstream
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// Write reports err through WriteError using the FromEngine mapping. Internal
// errors are not echoed back to the caller.
func Write(w http.ResponseWriter, err error) {
	status, code := FromEngine(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	var details interface{}
	var apiErr *urlbox.APIError
	if stderrors.As(err, &apiErr) {
		details = map[string]int{"upstream_status": apiErr.StatusCode}
	}

	WriteError(w, status, code, message, details)
}
