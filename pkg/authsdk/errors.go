package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/aussiebroadwan/emstore/pkg/httpx"
)

// ============================================================================
// Sentinels
// ============================================================================

var (
	// ErrNetwork matches any *NetworkError: no response was received.
	ErrNetwork = errors.New("authsdk: network error")

	// ErrReauthenticationRequired is terminal. The credential could not be
	// refreshed, or the replayed request was rejected again. Local
	// credentials have been cleared and the user must log in again.
	ErrReauthenticationRequired = errors.New("authsdk: reauthentication required")

	// ErrAuthRejected matches a 401 or 403 that was not recovered, such as
	// a failed login.
	ErrAuthRejected = errors.New("authsdk: authentication rejected")

	ErrValidation = errors.New("authsdk: validation error")
	ErrConflict   = errors.New("authsdk: conflict")
	ErrServer     = errors.New("authsdk: server error")

	// ErrNoRefreshToken is returned when a bearer refresh is needed but no
	// refresh token is stored.
	ErrNoRefreshToken = errors.New("authsdk: no refresh token")
)

// ============================================================================
// NetworkError
// ============================================================================

// NetworkError reports a request that produced no HTTP response: connection
// failures, timeouts and cancellation. It is never retried.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// Timeout reports whether the request ran out of time.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// ============================================================================
// APIError
// ============================================================================

// Kind classifies an APIError by status code.
type Kind int

const (
	KindOther Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
	KindRateLimited
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	default:
		return "other"
	}
}

// Error codes written by the server.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeValidation         = "validation_error"
	CodeInvalidCredentials = "invalid_credentials"
	CodeNotAuthenticated   = "not_authenticated"
	CodeCSRFFailed         = "csrf_failed"
	CodePermissionDenied   = "permission_denied"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeRateLimited        = "rate_limit_exceeded"
	CodeServerError        = "server_error"
)

// APIError is a non-2xx response. The server writes it with WriteError and
// the client reads it back with parseErrorResponse.
type APIError struct {
	StatusCode int                 `json:"-"`
	Code       string              `json:"error"`
	Detail     string              `json:"detail,omitempty"`
	Status     string              `json:"status,omitempty"`
	Fields     map[string][]string `json:"fields,omitempty"`

	// Body holds the raw response for endpoint-specific payloads.
	Body []byte `json:"-"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("http %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
		}
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	return msg
}

// Kind classifies the error by status code.
func (e *APIError) Kind() Kind {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return KindValidation
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return KindAuth
	case e.StatusCode == http.StatusNotFound:
		return KindNotFound
	case e.StatusCode == http.StatusConflict:
		return KindConflict
	case e.StatusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case e.StatusCode >= 500:
		return KindServer
	default:
		return KindOther
	}
}

// Is lets callers match on the sentinel for the error's kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind() == KindValidation
	case ErrAuthRejected:
		return e.Kind() == KindAuth
	case ErrConflict:
		return e.Kind() == KindConflict
	case ErrServer:
		return e.Kind() == KindServer
	}
	return false
}

// DecodeBody unmarshals the raw response body into v.
func (e *APIError) DecodeBody(v any) error {
	if len(e.Body) == 0 {
		return errors.New("authsdk: empty error body")
	}
	return json.Unmarshal(e.Body, v)
}

// WriteError writes this error as a JSON response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithDetail returns a copy with a different detail message.
func (e *APIError) WithDetail(detail string) *APIError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// NewAPIError builds an APIError.
func NewAPIError(statusCode int, code, detail string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Detail: detail}
}

// NewValidationError builds a 400 carrying per-field messages.
func NewValidationError(fields map[string][]string) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeValidation,
		Detail:     "one or more fields are invalid",
		Fields:     fields,
	}
}

// ============================================================================
// Predefined errors
// ============================================================================

var (
	ErrInvalidRequest = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidRequest,
		Detail:     "the request is malformed or missing required fields",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeInvalidCredentials,
		Detail:     "invalid username or password",
	}

	ErrNotAuthenticated = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeNotAuthenticated,
		Detail:     "authentication credentials were not provided or have expired",
	}

	ErrCSRFFailed = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       CodeCSRFFailed,
		Detail:     "CSRF token missing or incorrect",
	}

	ErrPermissionDenied = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       CodePermissionDenied,
		Detail:     "you do not have permission to perform this action",
	}

	ErrResourceNotFound = &APIError{
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Detail:     "not found",
	}

	ErrMethodNotAllowed = &APIError{
		StatusCode: http.StatusMethodNotAllowed,
		Code:       CodeInvalidRequest,
		Detail:     "method not allowed",
	}

	ErrServerError = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeServerError,
		Detail:     "internal server error",
	}
)

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError. It accepts
// the server's own {error, detail} shape, the {"detail": "..."} shape and
// bare field maps like {"username": ["already taken"]}.
func parseErrorResponse(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Body: body}

	var known APIError
	if err := json.Unmarshal(body, &known); err == nil && (known.Code != "" || known.Detail != "") {
		apiErr.Code = known.Code
		apiErr.Detail = known.Detail
		apiErr.Status = known.Status
		apiErr.Fields = known.Fields
		if apiErr.Code == "" {
			apiErr.Code = codeForStatus(statusCode)
		}
		return apiErr
	}

	var fields map[string][]string
	if err := json.Unmarshal(body, &fields); err == nil && len(fields) > 0 {
		apiErr.Code = CodeValidation
		apiErr.Fields = fields
		return apiErr
	}

	apiErr.Code = codeForStatus(statusCode)
	apiErr.Detail = http.StatusText(statusCode)
	return apiErr
}

func codeForStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusBadRequest:
		return CodeInvalidRequest
	case statusCode == http.StatusUnauthorized:
		return CodeNotAuthenticated
	case statusCode == http.StatusForbidden:
		return CodePermissionDenied
	case statusCode == http.StatusNotFound:
		return CodeNotFound
	case statusCode == http.StatusConflict:
		return CodeConflict
	case statusCode == http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeServerError
	}
}

// reauthenticate wraps the cause of a terminal authentication failure.
func reauthenticate(cause error) error {
	return fmt.Errorf("%w: %w", ErrReauthenticationRequired, cause)
}
