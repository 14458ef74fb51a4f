package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Kind classifies an API failure.
type Kind string

// Failure kinds exposed to clients.
const (
	KindValidation      Kind = "validation"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindTooManyRequests Kind = "too_many_requests"
	KindInternal        Kind = "internal"
)

// Error is an expected, client-visible failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	// RetryAfter is only meaningful for KindTooManyRequests.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
}

// Validation builds a KindValidation error.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

// Forbidden builds a KindForbidden error.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// NotFound builds a KindNotFound error.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict builds a KindConflict error.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// TooManyRequests builds a KindTooManyRequests error with a retry hint.
func TooManyRequests(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindTooManyRequests,
		Code:       "rate_limited",
		Message:    "too many requests, try again later",
		RetryAfter: retryAfter,
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Kind == kind
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Body renders the JSON error envelope.
func Body(e *Error) gin.H {
	return gin.H{"error": gin.H{
		"kind":    e.Kind,
		"code":    e.Code,
		"message": e.Message,
	}}
}

// Respond writes err to the client and aborts the handler chain.
// Errors outside the taxonomy are logged and surfaced as a generic 500.
func Respond(c *gin.Context, err error) {
	apiErr, ok := As(err)
	if !ok {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"route":  c.FullPath(),
		}).Error("request failed")
		apiErr = &Error{Kind: KindInternal, Code: "internal_error", Message: "internal server error"}
	}
	if apiErr.Kind == KindTooManyRequests && apiErr.RetryAfter > 0 {
		seconds := int(apiErr.RetryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	c.AbortWithStatusJSON(Status(apiErr.Kind), Body(apiErr))
}
