package circuitbreaker

import (
	"context"
	"errors"
	"os"
)

// httpStatusError is satisfied by backend.APIError.
type httpStatusError interface {
	HTTPStatus() int
}

// ClassifyError returns the error weight of a backend call outcome.
//
// Weights:
//   - nil, 4xx except 429 -> 0 (caller errors, including 404 "absent")
//   - 429 -> 0.5
//   - 5xx -> 1.0
//   - deadline exceeded -> 1.5
//   - context canceled -> 0 (the caller went away)
//   - other transport errors -> 1.0
func ClassifyError(err error) float64 {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}
	if errors.Is(err, context.Canceled) {
		return 0
	}
	var he httpStatusError
	if errors.As(err, &he) {
		return classifyStatus(he.HTTPStatus())
	}
	return 1.0
}

func classifyStatus(code int) float64 {
	switch {
	case code == 429:
		return 0.5
	case code >= 500:
		return 1.0
	default:
		return 0
	}
}
