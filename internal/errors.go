package campus

import "errors"

// Sentinel errors for the dashboard domain.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrRateLimited        = errors.New("rate limited")
	ErrBadRequest         = errors.New("bad request")
	ErrBackend            = errors.New("backend error")
	ErrBackendUnavailable = errors.New("backend unavailable")
)
