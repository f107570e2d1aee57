package auth

import (
	"context"
	"fmt"

	"github.com/roach88/relay/internal/store"
)

// TrackSignIn asks the provider for the current user, dispatches SIGN_IN
// or SIGN_OUT, and keeps mirroring provider changes until ctx is done.
// It returns nil when tracking stops because ctx ended.
func TrackSignIn(p Provider) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		// Listen first so a change between the two calls is not lost.
		changes, err := p.Listen(ctx)
		if err != nil {
			return fmt.Errorf("listen for auth changes: %w", err)
		}

		current, err := p.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("get current user: %w", err)
		}
		if err := dispatch(ctx, actionFor(current)).Err(); err != nil && ctx.Err() == nil {
			return err
		}

		// Each change is its own flow so a session-long tracker never
		// runs out of steps.
		for change := range changes {
			if err := dispatch(store.NewFlow(ctx), actionFor(change)).Err(); err != nil && ctx.Err() == nil {
				return err
			}
		}
		return nil
	}
}

// CheckSignIn asks the provider for the current user once and dispatches
// SIGN_IN or SIGN_OUT.
func CheckSignIn(p Provider) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		current, err := p.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("get current user: %w", err)
		}
		return dispatch(ctx, actionFor(current)).Err()
	}
}

// RequestSignIn asks the provider to sign in. The state follows through
// TrackSignIn.
func RequestSignIn(p Provider) store.Thunk {
	return func(ctx context.Context, _ store.Dispatch, _ store.GetState) error {
		return p.SignIn(ctx)
	}
}

// RequestSignOut asks the provider to sign out.
func RequestSignOut(p Provider) store.Thunk {
	return func(ctx context.Context, _ store.Dispatch, _ store.GetState) error {
		return p.SignOut(ctx)
	}
}

func actionFor(c Change) store.Action {
	if c.SignedIn {
		return SignIn(c.UserID)
	}
	return SignOut()
}
