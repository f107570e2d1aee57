package store

import (
	"errors"
	"fmt"
)

// RuntimeError represents a broken store invariant or a rejected dispatch.
//
// Runtime errors include:
//   - Reducer contract violations: nil slice, re-entrant dispatch
//   - Invalid dispatches: empty action type, thunk without middleware
//   - Lifecycle: dispatch after Close, quota exceeded, thunk panic
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the affected flow.
	FlowToken string

	// ActionType is the action being dispatched, if any.
	ActionType string

	// Slice names the offending slice reducer (for NIL_SLICE).
	Slice string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeReentrantDispatch indicates a dispatch issued while reducing.
	ErrCodeReentrantDispatch RuntimeErrorCode = "REENTRANT_DISPATCH"

	// ErrCodeNilSlice indicates a slice reducer returned nil.
	ErrCodeNilSlice RuntimeErrorCode = "NIL_SLICE"

	// ErrCodeInvalidAction indicates an action without a type.
	ErrCodeInvalidAction RuntimeErrorCode = "INVALID_ACTION"

	// ErrCodeUnhandledDispatchable indicates a non-action reached the reducers.
	ErrCodeUnhandledDispatchable RuntimeErrorCode = "UNHANDLED_DISPATCHABLE"

	// ErrCodeStoreClosed indicates a dispatch after Close.
	ErrCodeStoreClosed RuntimeErrorCode = "STORE_CLOSED"

	// ErrCodeQuotaExceeded indicates the flow exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeThunkPanic indicates a thunk panicked.
	ErrCodeThunkPanic RuntimeErrorCode = "THUNK_PANIC"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Slice != "" {
		msg += fmt.Sprintf(" (slice=%s)", e.Slice)
	}
	if e.ActionType != "" {
		msg += fmt.Sprintf(" (action=%s)", e.ActionType)
	}
	if e.FlowToken != "" {
		msg += fmt.Sprintf(" (flow=%s)", e.FlowToken)
	}
	return msg
}

// HasCode reports whether err wraps a RuntimeError with the given code.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsReentrantError returns true if the error is a re-entrant dispatch error.
func IsReentrantError(err error) bool {
	return HasCode(err, ErrCodeReentrantDispatch)
}

// IsNilSliceError returns true if a reducer returned a nil slice.
func IsNilSliceError(err error) bool {
	return HasCode(err, ErrCodeNilSlice)
}

// IsClosedError returns true if the store was closed.
func IsClosedError(err error) bool {
	return HasCode(err, ErrCodeStoreClosed)
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	if HasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// NewNilSliceError creates a RuntimeError for a reducer that returned nil.
func NewNilSliceError(slice, actionType string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeNilSlice,
		Message:    "reducer returned nil; return ir.Null for an absent value",
		Slice:      slice,
		ActionType: actionType,
	}
}

// NewReentrantError creates a RuntimeError for dispatch during reduction.
func NewReentrantError(flowToken, actionType string) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeReentrantDispatch,
		Message:    "reducers may not dispatch",
		FlowToken:  flowToken,
		ActionType: actionType,
	}
}

// NewClosedError creates a RuntimeError for dispatch after Close.
func NewClosedError(flowToken string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeStoreClosed,
		Message:   "store is closed",
		FlowToken: flowToken,
	}
}
