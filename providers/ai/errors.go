package ai

import (
	"errors"
	"net/http"

	"github.com/leofalp/toolchat/internal/utils"
)

// ErrorClass partitions provider failures by how the caller should react.
type ErrorClass int

const (
	// ErrorUnknown covers errors that match no known class. Treated as fatal
	// by callers, since blind retries against an unknown failure mode only
	// burn the retry budget.
	ErrorUnknown ErrorClass = iota
	// ErrorTransient marks failures worth retrying: rate limits, server-side
	// errors, and overload conditions.
	ErrorTransient
	// ErrorFatalRequest marks failures caused by the request itself. Retrying
	// the same request cannot succeed.
	ErrorFatalRequest
)

// transientStatusCodes are the HTTP status codes worth retrying.
// 529 is Anthropic's overloaded status.
var transientStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	529:                            true,
}

// fatalRequestStatusCodes are the HTTP status codes that indicate the request
// itself is invalid, including oversized context (400/413).
var fatalRequestStatusCodes = map[int]bool{
	http.StatusBadRequest:            true, // 400
	http.StatusUnauthorized:          true, // 401
	http.StatusForbidden:             true, // 403
	http.StatusNotFound:              true, // 404
	http.StatusRequestEntityTooLarge: true, // 413
}

// Classify maps a provider error to its ErrorClass. Typed status errors from
// the HTTP layer are classified by status code; anything else (SSE parse
// failures, network errors surfaced mid-stream, context cancellation) is
// ErrorUnknown.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorUnknown
	}

	var statusErr *utils.StatusError
	if errors.As(err, &statusErr) {
		if transientStatusCodes[statusErr.StatusCode] {
			return ErrorTransient
		}
		if fatalRequestStatusCodes[statusErr.StatusCode] {
			return ErrorFatalRequest
		}
	}

	return ErrorUnknown
}

// IsTransient reports whether err is worth retrying with the same request.
func IsTransient(err error) bool {
	return Classify(err) == ErrorTransient
}
