package store

import (
	"context"

	"github.com/roach88/relay/internal/ir"
)

// Reserved action types. User reducers must treat them like any other
// unknown type and return their slice unchanged.
const (
	// ActionInit is reduced once when a store is created.
	ActionInit = "@@relay/INIT"

	// actionShapeCheck is used by Combine to check reducer totality.
	actionShapeCheck = "@@relay/SHAPE_CHECK_UNKNOWN_ACTION"
)

// Dispatchable is the sum type accepted at the dispatch boundary.
// It is implemented by Action (data) and Thunk (behavior) only.
type Dispatchable interface {
	dispatchable()
}

// Action is a plain, synchronous description of a state change.
// It carries no behavior.
type Action struct {
	Type    string     `json:"type"`
	Payload ir.IRValue `json:"payload,omitempty"`
}

func (Action) dispatchable() {}

// NewAction creates an action with a payload.
func NewAction(actionType string, payload ir.IRValue) Action {
	return Action{Type: actionType, Payload: payload}
}

// PayloadOrNull returns the payload, or ir.Null when none was set.
func (a Action) PayloadOrNull() ir.IRValue {
	if a.Payload == nil {
		return ir.Null
	}
	return a.Payload
}

// Dispatch is the dispatcher handed to thunks. It may be called from any
// goroutine; it returns once the dispatched value has been applied on the
// owner goroutine (for actions) or started (for thunks).
type Dispatch func(ctx context.Context, d Dispatchable) *Future

// GetState returns the current state snapshot.
type GetState func() ir.IRObject

// Thunk is deferred behavior that may read state, perform I/O and dispatch
// further actions or thunks. Its returned error is the explicit outcome of
// the invocation and is delivered through the dispatch Future.
//
// Thunks must honor ctx cancellation.
type Thunk func(ctx context.Context, dispatch Dispatch, getState GetState) error

func (Thunk) dispatchable() {}
