package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")

	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrAmbiguousIntent = errors.New("ambiguous intent")
	ErrUpstreamModel   = errors.New("upstream model failed")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrStore           = errors.New("store failure")
	ErrConflict        = errors.New("concurrent modification")
)

// ErrorKind is the closed set of error codes surfaced to the model and to callers.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation_error"
	KindNotFound      ErrorKind = "not_found"
	KindAmbiguous     ErrorKind = "ambiguous_intent"
	KindUpstreamModel ErrorKind = "upstream_model_error"
	KindRateLimited   ErrorKind = "rate_limit_exceeded"
	KindStore         ErrorKind = "store_error"
)

// KindOf maps an error chain onto its ErrorKind. Unknown errors are reported as
// store errors so callers only ever see the generic "try again" path.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrSchemaViolation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAmbiguousIntent):
		return KindAmbiguous
	case errors.Is(err, ErrUpstreamModel), errors.Is(err, ErrModelInvoke):
		return KindUpstreamModel
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindStore
	}
}

// Candidate is one entity a request could have referred to.
type Candidate struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// AmbiguityError reports that a reference matched several entities.
type AmbiguityError struct {
	Query      string
	Candidates []Candidate
}

func (e *AmbiguityError) Error() string {
	titles := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		titles = append(titles, fmt.Sprintf("#%d %q", c.ID, c.Title))
	}
	return fmt.Sprintf("%s: %q matches %s", ErrAmbiguousIntent, e.Query, strings.Join(titles, ", "))
}

func (e *AmbiguityError) Unwrap() error { return ErrAmbiguousIntent }

// RateLimitError carries the time at which the caller's quota resets.
type RateLimitError struct {
	Limit int64
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: limit=%d reset=%s", ErrRateLimited, e.Limit, e.Reset.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// IsCancellation reports whether err comes from the caller going away.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
