package models

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class in the expansion error taxonomy.
type ErrorCode string

const (
	// ErrCodeInvalidInput rejects empty or malformed task text before any
	// job starts.
	ErrCodeInvalidInput ErrorCode = "invalid_input"
	// ErrCodeNotExpandable means the target node is atomic or already
	// expanded. Caller error, no state change.
	ErrCodeNotExpandable ErrorCode = "not_expandable"
	// ErrCodeAlreadyInProgress means another expansion owns the node.
	ErrCodeAlreadyInProgress ErrorCode = "already_in_progress"
	// ErrCodeMalformedResponse means the reasoning service returned
	// unusable data. Job failure, node reverts to stub.
	ErrCodeMalformedResponse ErrorCode = "malformed_response"
	// ErrCodeServiceUnavailable covers transport-level failures.
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
	// ErrCodeTimeout covers deadline expiry and caller cancellation, which
	// collapses into job failure.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeMergeConflict means the tree changed incompatibly between job
	// start and completion. Children are discarded, never retried here.
	ErrCodeMergeConflict ErrorCode = "merge_conflict"
	// ErrCodeInvalidTransition rejects an illegal node state transition.
	ErrCodeInvalidTransition ErrorCode = "invalid_transition"
	// ErrCodeNotFound means the task or node does not exist.
	ErrCodeNotFound ErrorCode = "not_found"
)

// Error is a typed engine error carrying a taxonomy code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a typed error with a formatted message.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a taxonomy code to an underlying cause.
func WrapError(code ErrorCode, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the taxonomy code from err, or empty if err is untyped.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
