package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Domain Error Types
// ============================================================================

// DomainError is an OAuth error with its wire code, a public description and the
// HTTP status it maps to. Cause is for logs only and is never sent to clients.
type DomainError struct {
	Code    string
	Message string
	Status  int
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so wrapped copies compare equal to the sentinels
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, status int, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Status:  status,
		Cause:   cause,
	}
}

// ============================================================================
// Error Codes
// ============================================================================

const (
	CodeMissingClientID     = "missing_client_id"
	CodeInvalidRequest      = "invalid_request"
	CodeInvalidGrant        = "invalid_grant"
	CodeTokenExchangeFailed = "token_exchange_failed"
	CodeServerError         = "server_error"
	CodeNotFound            = "not_found"
)

// ============================================================================
// Common Domain Errors
// ============================================================================

var (
	// Configuration
	ErrMissingClientID = &DomainError{
		Code:    CodeMissingClientID,
		Message: "GitHub OAuth client id is not configured",
		Status:  http.StatusInternalServerError,
	}

	// Client input
	ErrInvalidRequest = &DomainError{
		Code:    CodeInvalidRequest,
		Message: "the request is missing a required parameter or is malformed",
		Status:  http.StatusBadRequest,
	}
	ErrInvalidGrant = &DomainError{
		Code:    CodeInvalidGrant,
		Message: "the authorization state is invalid, expired or already used",
		Status:  http.StatusBadRequest,
	}

	// Upstream
	ErrTokenExchangeFailed = &DomainError{
		Code:    CodeTokenExchangeFailed,
		Message: "GitHub rejected the authorization code",
		Status:  http.StatusBadRequest,
	}
	ErrServerError = &DomainError{
		Code:    CodeServerError,
		Message: "failed to complete the token exchange with GitHub",
		Status:  http.StatusInternalServerError,
	}
)

// ============================================================================
// Error Wrapping Helpers
// ============================================================================

// WrapInvalidRequest reports a missing or malformed client parameter
func WrapInvalidRequest(message string) error {
	return &DomainError{
		Code:    CodeInvalidRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// WrapInvalidGrant reports a state/verifier that cannot be used
func WrapInvalidGrant(message string, cause error) error {
	return &DomainError{
		Code:    CodeInvalidGrant,
		Message: message,
		Status:  http.StatusBadRequest,
		Cause:   cause,
	}
}

// WrapUpstream passes GitHub's own error code and description through as a 400
func WrapUpstream(code, description string) error {
	if code == "" {
		code = CodeTokenExchangeFailed
	}
	if description == "" {
		description = ErrTokenExchangeFailed.Message
	}
	return &DomainError{
		Code:    code,
		Message: description,
		Status:  http.StatusBadRequest,
	}
}

// WrapServerError hides cause behind the generic server_error description
func WrapServerError(cause error) error {
	return &DomainError{
		Code:    CodeServerError,
		Message: ErrServerError.Message,
		Status:  http.StatusInternalServerError,
		Cause:   cause,
	}
}

// ============================================================================
// Error Checking Helpers
// ============================================================================

// CodeOf returns the wire code of err, server_error for anything unclassified
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code
	}
	return CodeServerError
}

// StatusOf returns the HTTP status err maps to
func StatusOf(err error) int {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Status != 0 {
		return domainErr.Status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns a description that is safe to send to the browser
func PublicMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return ErrServerError.Message
}

// IsClientError reports whether the caller has to restart the flow
func IsClientError(err error) bool {
	status := StatusOf(err)
	return status >= 400 && status < 500
}
