package domain

import "fmt"

// Error codes travel to API clients next to the message and pick the HTTP
// status.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// DomainError is an error a caller can act on. Message is safe to show to
// API clients; Err, when set, is only for logs.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is compares code and message, so a sentinel still matches after WithCause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code && e.Message == t.Message
}

// WithCause returns a copy of e that wraps cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Err: cause}
}

func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewValidationError is a shorthand for request validation failures.
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrCodeValidation, message)
}

var (
	ErrEmptyQuery          = NewValidationError("query is required")
	ErrInvalidVerdict      = NewValidationError("verdict must be approve or reject")
	ErrInvalidRequestState = NewValidationError("invalid request status")
	ErrInvalidCursor       = NewValidationError("invalid cursor")

	ErrRequestNotFound       = NewDomainError(ErrCodeNotFound, "search request not found")
	ErrReviewItemNotFound    = NewDomainError(ErrCodeNotFound, "review item not found")
	ErrAnalysisNotFound      = NewDomainError(ErrCodeNotFound, "analysis result not found")
	ErrConfigurationNotFound = NewDomainError(ErrCodeNotFound, "search configuration not found")
	ErrEnrichmentNotFound    = NewDomainError(ErrCodeNotFound, "enrichment not found")
	ErrReportNotFound        = NewDomainError(ErrCodeNotFound, "report not found")
	ErrFileNotFound          = NewDomainError(ErrCodeNotFound, "file not found")

	ErrConfigurationAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "search configuration already exists")
	ErrInvalidAPIKey              = NewDomainError(ErrCodeUnauthorized, "invalid api key")

	ErrReviewAlreadySubmitted = NewDomainError(ErrCodeConflict, "review item already reviewed")
	// ErrInvalidTransition and ErrContinueNotReady are also how the
	// dispatcher recognises a run that had nothing to do.
	ErrInvalidTransition = NewDomainError(ErrCodeInvalidOperation, "request is not in the expected phase")
	ErrContinueNotReady  = NewDomainError(ErrCodeInvalidOperation, "request still has pending review items")
)
