package imagen

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed generation so callers can decide whether to
// retry, reprompt or give up.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindRequestRejected   Kind = "RequestRejected"
	KindQuotaExceeded     Kind = "QuotaExceeded"
	KindContentBlocked    Kind = "ContentBlocked"
	KindUpstreamProtocol  Kind = "UpstreamProtocolError"
	KindTransientUpstream Kind = "TransientUpstreamError"
	KindInternal          Kind = "InternalError"
)

// Retryable reports whether the same request may succeed later.
func (k Kind) Retryable() bool {
	return k == KindTransientUpstream || k == KindQuotaExceeded
}

// Error is the failure variant of a generation.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int    // HTTP status, 0 when no response was received
	Status     string // upstream status such as RESOURCE_EXHAUSTED
	Reason     string // upstream ErrorInfo reason such as API_KEY_INVALID
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for errors not produced by
// this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ValidationError wraps a request validation failure.
func ValidationError(err error) *Error {
	return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
}

// upstreamError is the Google API error envelope:
//
//	{"error": {"code": 400, "message": "...", "status": "INVALID_ARGUMENT",
//	           "details": [{"@type": "...ErrorInfo", "reason": "API_KEY_INVALID"}]}}
type upstreamError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type   string `json:"@type"`
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// classifyStatus maps a non-2xx upstream answer onto a Kind.
func classifyStatus(statusCode int, status string) Kind {
	switch {
	case statusCode == http.StatusTooManyRequests || strings.EqualFold(status, "RESOURCE_EXHAUSTED"):
		return KindQuotaExceeded
	case statusCode >= 400 && statusCode < 500:
		return KindRequestRejected
	case statusCode >= 500:
		return KindTransientUpstream
	default:
		return KindUpstreamProtocol
	}
}

// statusError builds the Error for a non-2xx response. The upstream message
// and machine-readable codes are kept; the body is otherwise discarded.
func statusError(statusCode int, message, status, reason string) *Error {
	kind := classifyStatus(statusCode, status)

	var b strings.Builder
	switch kind {
	case KindQuotaExceeded:
		b.WriteString("upstream quota exceeded")
	case KindRequestRejected:
		b.WriteString("upstream rejected the request")
	default:
		b.WriteString("upstream unavailable")
	}
	codes := []string{fmt.Sprintf("%d", statusCode)}
	if status != "" {
		codes = append(codes, status)
	}
	if reason != "" {
		codes = append(codes, reason)
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(codes, " "))
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}

	return &Error{
		Kind:       kind,
		Message:    b.String(),
		StatusCode: statusCode,
		Status:     status,
		Reason:     reason,
	}
}
