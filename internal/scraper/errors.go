package scraper

import (
	"context"
	"errors"
	"fmt"
)

// NetworkError covers connection and timeout failures. Status is the HTTP
// status observed before the failure, zero when the request never landed.
type NetworkError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx response from the source.
type APIError struct {
	URL    string
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("source returned %d for %s", e.Status, e.URL)
}

// ValidationError marks a malformed or incomplete extracted record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record field %q: %s", e.Field, e.Reason)
}

// ScrapeError is the catch-all with a machine-readable code.
type ScrapeError struct {
	Code string
	Msg  string
	Err  error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether a page-level error should be treated as an
// empty page rather than ending the run. Cancellation is never
// recoverable: it means the run is being shut down.
func Recoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Classify maps an error onto a short classification label used in the
// run summary troubleshooting hint.
func Classify(err error) string {
	var netErr *NetworkError
	var apiErr *APIError
	var valErr *ValidationError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &valErr):
		return "validation"
	default:
		return "unknown"
	}
}
