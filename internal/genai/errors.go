package genai

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
)

// ErrorKind classifies Model Gateway failures.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	RateLimited
	AuthFailed
	TransientAPIError
)

func (k ErrorKind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case AuthFailed:
		return "auth_failed"
	case TransientAPIError:
		return "transient_api_error"
	default:
		return "unknown"
	}
}

// Error is returned by every Gateway method on failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "genai: " + e.Kind.String()
	}
	return "genai: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a gateway error, or Unknown for any other error.
func KindOf(err error) ErrorKind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return Unknown
}

// classify maps an openai-go error onto an ErrorKind.
func classify(err error) *Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &Error{Kind: RateLimited, Err: err}
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return &Error{Kind: AuthFailed, Err: err}
		default:
			return &Error{Kind: TransientAPIError, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: TransientAPIError, Err: err}
	}
	return &Error{Kind: Unknown, Err: err}
}
