package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	campus "github.com/campushq/campus/internal"
)

// maxBody is the maximum allowed request body size (64 KB).
const maxBody = 64 << 10

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(status int, msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = errorType(status)
	return e
}

func errorType(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusConflict:
		return "conflict_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	}
	if status >= 500 {
		return "api_error"
	}
	return "invalid_request_error"
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, campus.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, campus.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, campus.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, campus.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, campus.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, campus.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, campus.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, campus.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes a sanitized message. Server-side
// failures are logged with the full error; client errors are not.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	var msg string
	switch status {
	case http.StatusBadRequest:
		msg = err.Error()
	case http.StatusBadGateway:
		msg = "backend error"
	case http.StatusServiceUnavailable:
		msg = "backend unavailable"
	case http.StatusInternalServerError:
		msg = "internal error"
	default:
		msg = http.StatusText(status)
	}
	if status >= 500 {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
			slog.String("request_id", campus.RequestIDFromContext(r.Context())),
		)
	}
	writeJSON(w, status, errorResponse(status, msg))
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "invalid request body"))
		return false
	}
	return true
}

// pathID returns the canonical form of the UUID path parameter name.
// Writes 400 and returns false if it is not a UUID.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(http.StatusBadRequest, "invalid "+name))
		return "", false
	}
	return id.String(), true
}

// queryInt returns the integer query parameter key, or def when it is
// absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// --- Pagination helpers ---

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type listResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func parsePagination(r *http.Request) (offset, limit int) {
	offset = queryInt(r, "offset", 0)
	limit = queryInt(r, "limit", 50)
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return
}

// caller returns the authenticated identity. Routes under /v1 always have one.
func caller(r *http.Request) *campus.Identity {
	return campus.IdentityFromContext(r.Context())
}
