package store

import (
	"context"
	"log/slog"
)

// MiddlewareAPI is the view of the store handed to each middleware.
type MiddlewareAPI struct {
	// Dispatch re-enters the full middleware chain from the top.
	Dispatch Dispatch

	// GetState returns the current snapshot.
	GetState GetState

	// Spawn runs a thunk on its own goroutine with the store's bound
	// dispatch. The returned future resolves with the thunk's error.
	Spawn func(ctx context.Context, thunk Thunk) *Future
}

// Middleware intercepts every dispatched value before it reaches the
// reducers. Middleware is composed right to left: the first middleware
// passed to WithMiddleware sees a dispatch first.
type Middleware func(api MiddlewareAPI) func(next Dispatch) Dispatch

// compose builds the dispatch chain ending in base.
func compose(api MiddlewareAPI, base Dispatch, mws []Middleware) Dispatch {
	chain := base
	for i := len(mws) - 1; i >= 0; i-- {
		chain = mws[i](api)(chain)
	}
	return chain
}

// ThunkMiddleware routes thunks to Spawn and forwards plain actions
// unchanged. The thunk's future is returned to the original caller so
// async dispatches can be sequenced.
func ThunkMiddleware() Middleware {
	return func(api MiddlewareAPI) func(next Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			return func(ctx context.Context, d Dispatchable) *Future {
				if thunk, ok := d.(Thunk); ok {
					return api.Spawn(ctx, thunk)
				}
				return next(ctx, d)
			}
		}
	}
}

// Logger logs every dispatch at Debug and every rejected action at Warn.
// A nil logger uses slog.Default().
func Logger(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(api MiddlewareAPI) func(next Dispatch) Dispatch {
		return func(next Dispatch) Dispatch {
			return func(ctx context.Context, d Dispatchable) *Future {
				flow, _ := FlowFromContext(ctx)

				action, isAction := d.(Action)
				if !isAction {
					logger.Debug("dispatching thunk", "flow", flow)
					return next(ctx, d)
				}

				logger.Debug("dispatching action",
					"type", action.Type,
					"flow", flow,
				)
				f := next(ctx, d)
				if err := f.Err(); err != nil && err != ErrPending {
					logger.Warn("action rejected",
						"type", action.Type,
						"flow", flow,
						"error", err,
					)
				}
				return f
			}
		}
	}
}
