// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Client errors: the request is malformed or cannot be resolved.
	ErrInvalidInput        = errors.New("invalid input")
	ErrMissingSendAt       = fmt.Errorf("%w: sendAt is required", ErrInvalidInput)
	ErrUnresolvedRecipient = fmt.Errorf("%w: recipient could not be resolved", ErrInvalidInput)
	ErrAccountNotFound     = fmt.Errorf("%w: account not found", ErrInvalidInput)

	// ErrNotFound covers missing, foreign and no-longer-mutable rows alike.
	ErrNotFound = errors.New("resource not found")

	// Dispatch errors.
	ErrAlreadySent    = errors.New("message already sent")
	ErrAccountMissing = errors.New("sending account no longer exists")
	ErrTransport      = errors.New("mail transport failure")

	// ErrSendUnrecorded means the transport accepted the message but the
	// sent status could not be stored. The row still reads pending.
	ErrSendUnrecorded = errors.New("message sent but status not recorded")

	ErrUnauthorized = errors.New("unauthorized")
)

// Error codes for API responses
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeMissingSendAt       = "MISSING_SEND_AT"
	CodeUnresolvedRecipient = "UNRESOLVED_RECIPIENT"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadySent         = "ALREADY_SENT"
	CodeAccountMissing      = "ACCOUNT_MISSING"
	CodeTransport           = "TRANSPORT_FAILURE"
	CodeSendUnrecorded      = "SEND_UNRECORDED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// ErrCampaignNotFound is returned by campaign lookups.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func (e *ErrCampaignNotFound) Unwrap() error {
	return ErrNotFound
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// NewTransportError wraps a mail transport failure so that both
// ErrTransport and the underlying cause match errors.Is.
func NewTransportError(err error) error {
	return &AppError{
		Err:     errors.Join(ErrTransport, err),
		Message: fmt.Sprintf("%v: %v", ErrTransport, err),
		Code:    CodeTransport,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrMissingSendAt):
		return CodeMissingSendAt
	case errors.Is(err, ErrUnresolvedRecipient):
		return CodeUnresolvedRecipient
	case errors.Is(err, ErrAccountNotFound):
		return CodeAccountNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case IsNotFound(err):
		return CodeNotFound
	case errors.Is(err, ErrAlreadySent):
		return CodeAlreadySent
	case errors.Is(err, ErrAccountMissing):
		return CodeAccountMissing
	case errors.Is(err, ErrTransport):
		return CodeTransport
	case errors.Is(err, ErrSendUnrecorded):
		return CodeSendUnrecorded
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternalError
	}
}

// HTTPStatus maps an error onto the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case IsClientError(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadySent):
		return http.StatusConflict
	case errors.Is(err, ErrAccountMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
