package ratelimit

import (
	"errors"
	"net/http"
)

// FailureKind classifies the final failure of an external call.
type FailureKind string

const (
	FailureAuth        FailureKind = "auth"
	FailureRateLimited FailureKind = "rate_limited"
	FailureServer      FailureKind = "server"
	FailureOther       FailureKind = "other"
)

// StatusCoder is implemented by errors that carry a remote HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Classify maps an error to a FailureKind using its status code when present.
func Classify(err error) FailureKind {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return FailureOther
	}

	code := sc.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return FailureAuth
	case code == http.StatusTooManyRequests:
		return FailureRateLimited
	case code >= 500:
		return FailureServer
	default:
		return FailureOther
	}
}
