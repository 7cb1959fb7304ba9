package backend

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	campus "github.com/campushq/campus/internal"
)

// APIError is a non-2xx response from a backend service.
// It satisfies the HTTPStatus interface used by circuit breaker classification
// and unwraps to the matching campus sentinel.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

// Error returns a formatted error string including service, status, and message.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Message)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Unwrap maps the status code to a campus sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return campus.ErrBadRequest
	case http.StatusUnauthorized:
		return campus.ErrUnauthorized
	case http.StatusForbidden:
		return campus.ErrForbidden
	case http.StatusNotFound:
		return campus.ErrNotFound
	case http.StatusConflict:
		return campus.ErrConflict
	default:
		return campus.ErrBackend
	}
}

// ParseAPIError reads up to 4KB from the response body and returns an APIError.
// The message is taken from a JSON "message" or "error" field when present.
func ParseAPIError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Service: service, StatusCode: resp.StatusCode, Message: errorMessage(body, resp.StatusCode)}
}

func errorMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "message").String(); msg != "" {
			return msg
		}
		// {"error":"..."} or {"error":{"message":"..."}}
		if e := gjson.GetBytes(body, "error"); e.Exists() {
			if e.IsObject() {
				if msg := e.Get("message").String(); msg != "" {
					return msg
				}
			} else if msg := e.String(); msg != "" {
				return msg
			}
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" && !gjson.ValidBytes(body) {
		return msg
	}
	return http.StatusText(status)
}
