package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrCorrupt        = errors.New("corrupt spreadsheet")
	ErrRateLimited    = errors.New("oracle rate limited")
	ErrUnavailable    = errors.New("oracle unavailable")
	ErrMalformed      = errors.New("oracle returned no text")
	ErrNoWorksheet    = errors.New("template has no worksheet")
	ErrPersistFailure = errors.New("persist failure")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNoTemplate     = errors.New("no active template")
)

// StageError carries the pipeline stage, tenant and template name of a failure.
// Storage paths are deliberately kept out of it.
type StageError struct {
	Stage    string
	TenantID string
	Template string
	Err      error
}

func (e *StageError) Error() string {
	var parts []string
	parts = append(parts, "stage="+e.Stage)
	if e.TenantID != "" {
		parts = append(parts, "tenant="+e.TenantID)
	}
	if e.Template != "" {
		parts = append(parts, "template="+e.Template)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Err)
	}
	return strings.Join(parts, " ")
}

func (e *StageError) Unwrap() error { return e.Err }

// Wrap returns nil when err is nil.
func Wrap(stage, tenantID, template string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, TenantID: tenantID, Template: template, Err: err}
}

// exhausted is returned by the oracle client once rate-limit retries run out.
// It matches both ErrUnavailable and ErrRateLimited.
type exhausted struct {
	attempts int
	last     error
}

func (e *exhausted) Error() string {
	return fmt.Sprintf("oracle unavailable after %d rate-limited attempts: %v", e.attempts, e.last)
}

func (e *exhausted) Unwrap() []error { return []error{ErrUnavailable, e.last} }

// RetriesExhausted builds the error surfaced after the last rate-limited attempt.
func RetriesExhausted(attempts int, last error) error {
	return &exhausted{attempts: attempts, last: last}
}

// PublicMessage is the short reason shown to end users.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "required information is missing"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrCorrupt):
		return "the spreadsheet could not be read"
	case errors.Is(err, ErrNoWorksheet):
		return "the template has no worksheet"
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrRateLimited):
		return "the assistant is busy, please try again shortly"
	case errors.Is(err, ErrMalformed):
		return "the assistant returned an empty answer"
	case errors.Is(err, ErrPersistFailure):
		return "the result could not be saved"
	case errors.Is(err, ErrNoTemplate):
		return "no active template"
	default:
		return "an error occurred while processing the request"
	}
}

// HTTPStatus maps an error to a response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoTemplate):
		return http.StatusNotFound
	case errors.Is(err, ErrCorrupt), errors.Is(err, ErrNoWorksheet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrRateLimited):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
