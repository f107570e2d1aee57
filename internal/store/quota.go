package store

import (
	"errors"
	"fmt"
)

// QuotaEnforcer tracks the number of dispatches made within one flow
// and enforces a maximum steps limit.
//
// Each flow has its own QuotaEnforcer. Every action or thunk dispatched
// under the flow counts as one step, so a thunk that keeps dispatching
// itself terminates with a StepsExceededError instead of running forever.
//
// Enforcers carry no lock; the store guards them.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
//
// Typical default: 1000 (configurable via WithMaxSteps).
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
//
// Returns StepsExceededError if the quota is exceeded.
func (q *QuotaEnforcer) Check(flowToken string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			FlowToken: flowToken,
			Steps:     q.current,
			Limit:     q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a flow exceeds the max steps quota.
//
// The offending dispatch is rejected; the rest of the flow observes the
// error through its futures.
type StepsExceededError struct {
	FlowToken string
	Steps     int
	Limit     int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded max steps quota: %d steps > %d limit",
		e.FlowToken, e.Steps, e.Limit)
}

// Code returns the runtime error code for matching.
func (e *StepsExceededError) Code() RuntimeErrorCode {
	return ErrCodeQuotaExceeded
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
