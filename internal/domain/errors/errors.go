// Package errors provides domain-specific errors for the invsync engine.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error taxonomy.
var (
	ErrRemoteUnavailable     = errors.New("remote unavailable")
	ErrRecordPushFailed      = errors.New("record push failed")
	ErrCheckpointWriteFailed = errors.New("checkpoint write failed")
	ErrCheckpointNotFound    = errors.New("checkpoint not found")
	ErrSyncInProgress        = errors.New("sync already in progress")
	ErrKindNotRegistered     = errors.New("entity kind not registered")
	ErrUnknownKind           = errors.New("unknown entity kind")
	ErrRecordNotFound        = errors.New("record not found")
	ErrInvalidPayload        = errors.New("invalid payload")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation            ErrorCode = "VALIDATION"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeConfiguration         ErrorCode = "CONFIG"
	CodeRemoteUnavailable     ErrorCode = "REMOTE_UNAVAILABLE"
	CodeRecordPushFailed      ErrorCode = "RECORD_PUSH_FAILED"
	CodeCheckpointWriteFailed ErrorCode = "CHECKPOINT_WRITE_FAILED"
	CodeCheckpointNotFound    ErrorCode = "CHECKPOINT_NOT_FOUND"
	CodeSyncInProgress        ErrorCode = "SYNC_IN_PROGRESS"
	CodeStorage               ErrorCode = "STORAGE"
)

// codeSentinels lets errors.Is match an InvsyncError against the sentinel of
// its code, so callers can test either way.
var codeSentinels = map[ErrorCode]error{
	CodeRemoteUnavailable:     ErrRemoteUnavailable,
	CodeRecordPushFailed:      ErrRecordPushFailed,
	CodeCheckpointWriteFailed: ErrCheckpointWriteFailed,
	CodeCheckpointNotFound:    ErrCheckpointNotFound,
	CodeSyncInProgress:        ErrSyncInProgress,
}

// InvsyncError wraps errors with additional context for debugging and handling.
type InvsyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *InvsyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *InvsyncError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel error for e's code.
func (e *InvsyncError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// NewError creates a new InvsyncError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *InvsyncError {
	return &InvsyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
// This allows for method chaining when adding multiple context values.
func WithContext(err *InvsyncError, key string, value interface{}) *InvsyncError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// CodeOf returns the code of the first InvsyncError in err's chain. Bare
// sentinels map to their code. Unknown errors return the empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ie *InvsyncError
	if errors.As(err, &ie) {
		return ie.Code
	}
	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	switch {
	case errors.Is(err, ErrKindNotRegistered), errors.Is(err, ErrUnknownKind), errors.Is(err, ErrInvalidPayload):
		return CodeValidation
	case errors.Is(err, ErrRecordNotFound):
		return CodeNotFound
	}
	return ""
}

// Is reports whether err matches target using errors.Is semantics.
// This is a convenience wrapper around the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target and sets target to that error value.
// This is a convenience wrapper around the standard library's errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a new validation InvsyncError with the given domain and message.
func New(domain, message string) *InvsyncError {
	return &InvsyncError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("[%s] %s", domain, message),
		Context: make(map[string]interface{}),
	}
}
