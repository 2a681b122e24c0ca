package models

import (
	"errors"
	"fmt"
)

// Error codes used internally and in logs. The HTTP layer collapses them
// into the user-facing strings in response.go.
const (
	ErrCodeNotFound         = "ACCOUNT_NOT_FOUND"
	ErrCodeTimeout          = "SCRAPE_TIMEOUT"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash     = "BROWSER_CRASH"
	ErrCodeRetriesExhausted = "RETRIES_EXHAUSTED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost ScrapeError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err was classified as a missing account or video.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}
