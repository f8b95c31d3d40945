package convo

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	// Protocol errors (from server error frames)
	ErrorUnknown ErrorCode = iota
	ErrorUnauthorized
	ErrorRoomNotFound
	ErrorBadRequest
	ErrorInternalServer

	// Client-side errors
	ErrorNoCredential
	ErrorHandshakeFailure
	ErrorTransportDropped
	ErrorHistoryFetchFailure
	ErrorStaleResult
	ErrorNotConnected
	ErrorNoActiveRoom
	ErrorSerialization
	ErrorInvalidConfig
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorRoomNotFound:
		return "room_not_found"
	case ErrorBadRequest:
		return "bad_request"
	case ErrorInternalServer:
		return "internal_error"
	case ErrorNoCredential:
		return "no_credential"
	case ErrorHandshakeFailure:
		return "handshake_failure"
	case ErrorTransportDropped:
		return "transport_dropped"
	case ErrorHistoryFetchFailure:
		return "history_fetch_failure"
	case ErrorStaleResult:
		return "stale_result"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorNoActiveRoom:
		return "no_active_room"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorInvalidConfig:
		return "invalid_config"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ParseErrorCode converts a protocol error code string to ErrorCode.
func ParseErrorCode(code string) ErrorCode {
	switch code {
	case "unauthorized":
		return ErrorUnauthorized
	case "room_not_found":
		return ErrorRoomNotFound
	case "bad_request":
		return ErrorBadRequest
	case "internal_error":
		return ErrorInternalServer
	default:
		return ErrorUnknown
	}
}

// ConvoError is a structured error with code and context. The core never
// formats user-facing strings; UI layers map codes to display text.
type ConvoError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *ConvoError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *ConvoError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is support; two ConvoErrors match on their code.
func (e *ConvoError) Is(target error) bool {
	t, ok := target.(*ConvoError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new ConvoError with the given code and message.
func NewError(code ErrorCode, message string) *ConvoError {
	return &ConvoError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a ConvoError.
func WrapError(code ErrorCode, message string, err error) *ConvoError {
	return &ConvoError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// FromProtocolError converts a protocol Error frame to a ConvoError.
func FromProtocolError(e *Error) *ConvoError {
	if e == nil {
		return nil
	}
	return &ConvoError{
		Code:    ParseErrorCode(e.Code),
		Message: e.Msg,
	}
}

// CodeOf extracts the ErrorCode from an error, or ErrorUnknown when the error
// is not a ConvoError.
func CodeOf(err error) ErrorCode {
	var ce *ConvoError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrorUnknown
}

// IsConnectionError reports whether an error is connection-related.
func IsConnectionError(err error) bool {
	switch CodeOf(err) {
	case ErrorHandshakeFailure, ErrorTransportDropped, ErrorNotConnected:
		return true
	default:
		return false
	}
}
