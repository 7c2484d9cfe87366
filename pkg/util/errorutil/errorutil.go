package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared with clients. The ERR_* codes are part of the wire
// contract and are matched by front-ends for translated messages.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
	CodeOtherOpenTicket   = "ERR_OTHER_OPEN_TICKET"
	CodeNoDefaultWhatsapp = "ERR_NO_DEF_WAPP_FOUND"
	CodeQueueRequired     = "ERR_QUEUE_REQUIRED"
	CodeInvalidTransition = "ERR_INVALID_TRANSITION"
	CodeSendingMessage    = "ERR_SENDING_WAPP_MSG"
	CodeSessionNotFound   = "ERR_WAPP_NOT_INITIALIZED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code so callers can use errors.Is with the
// sentinel-like constructors below.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewOtherOpenTicket reports a violation of the one-active-ticket-per-contact rule.
func NewOtherOpenTicket(existingTicketID int64) error {
	details := map[string]any{}
	if existingTicketID > 0 {
		details["ticket_id"] = existingTicketID
	}
	return NewDomainError(CodeOtherOpenTicket, "contact already has an open ticket on this connection", http.StatusConflict, details)
}

func NewNoDefaultWhatsapp() error {
	return NewDomainError(CodeNoDefaultWhatsapp, "no default whatsapp connection configured", http.StatusNotFound, nil)
}

func NewQueueRequired(details map[string]any) error {
	return NewDomainError(CodeQueueRequired, "a queue must be selected for this ticket", http.StatusBadRequest, details)
}

func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition, "invalid status transition", http.StatusBadRequest, map[string]any{
		"from": from,
		"to":   to,
	})
}

// NewSendingMessage wraps a transport failure. Sending is never retried here.
func NewSendingMessage(err error) error {
	return &DomainError{
		Code:       CodeSendingMessage,
		Message:    "failed to send whatsapp message",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewSessionNotFound(whatsappID int64) error {
	return NewDomainError(CodeSessionNotFound, "whatsapp session not initialized", http.StatusBadRequest, map[string]any{
		"whatsapp_id": whatsappID,
	})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// MapError converts err into a DomainError, preserving nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// CodeForStatus picks the generic code for a bare HTTP status.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	default:
		return CodeInternal
	}
}
