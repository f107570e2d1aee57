// Package auth tracks whether a user is signed in.
//
// The slice starts unknown ({isSignedIn: null, userId: null}) until the
// auth provider has been asked. From then on it moves between signedOut
// and signedIn(userId):
//
//	unknown --SIGN_IN--> signedIn(id)
//	unknown --SIGN_OUT--> signedOut
//	signedIn <--SIGN_IN/SIGN_OUT--> signedOut
package auth

import (
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// Slice is the slice name.
const Slice = "auth"

// Action types.
const (
	ActionSignIn  = "SIGN_IN"
	ActionSignOut = "SIGN_OUT"
)

var initial = ir.Obj(
	ir.O("isSignedIn", ir.Null),
	ir.O("userId", ir.Null),
)

// Reducer is the auth slice reducer.
func Reducer(state ir.IRValue, action store.Action) ir.IRValue {
	cur, ok := state.(ir.IRObject)
	if !ok {
		cur = initial
	}

	switch action.Type {
	case ActionSignIn:
		return cur.Merge(ir.Obj(
			ir.O("isSignedIn", ir.IRBool(true)),
			ir.O("userId", action.PayloadOrNull()),
		))
	case ActionSignOut:
		return cur.Merge(ir.Obj(
			ir.O("isSignedIn", ir.IRBool(false)),
			ir.O("userId", ir.Null),
		))
	}

	if state == nil {
		return initial
	}
	return state
}

// Reducers returns the slices this app contributes.
func Reducers() map[string]store.Reducer {
	return map[string]store.Reducer{Slice: Reducer}
}

// SignIn creates the sign-in action.
func SignIn(userID string) store.Action {
	return store.NewAction(ActionSignIn, ir.IRString(userID))
}

// SignOut creates the sign-out action.
func SignOut() store.Action {
	return store.Action{Type: ActionSignOut}
}

// Status is the auth state machine position.
type Status int

const (
	StatusUnknown Status = iota
	StatusSignedOut
	StatusSignedIn
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSignedOut:
		return "signedOut"
	case StatusSignedIn:
		return "signedIn"
	default:
		return "unknown"
	}
}

// StatusOf reads the auth slice from a tree. The user id is set only when
// signed in.
func StatusOf(state ir.IRObject) (Status, string) {
	slice, _ := state.Get(Slice).(ir.IRObject)
	switch v := slice.Get("isSignedIn").(type) {
	case ir.IRBool:
		if !v {
			return StatusSignedOut, ""
		}
		id, _ := ir.KeyOf(slice.Get("userId"))
		return StatusSignedIn, id
	default:
		return StatusUnknown, ""
	}
}

// UserID returns the signed-in user id as stored, or null.
func UserID(state ir.IRObject) ir.IRValue {
	slice, _ := state.Get(Slice).(ir.IRObject)
	return slice.Get("userId")
}
