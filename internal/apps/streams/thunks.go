package streams

import (
	"context"
	"fmt"

	"github.com/roach88/relay/internal/apps/auth"
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// API is the subset of the REST client the stream thunks use.
type API interface {
	Get(ctx context.Context, path string) (ir.IRValue, error)
	Post(ctx context.Context, path string, body ir.IRValue) (ir.IRValue, error)
	Patch(ctx context.Context, path string, body ir.IRValue) (ir.IRValue, error)
	Delete(ctx context.Context, path string) (ir.IRValue, error)
}

// FetchStreams loads every stream (GET /streams).
func FetchStreams(api API) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		list, err := api.Get(ctx, "/streams")
		if err != nil {
			return fmt.Errorf("fetch streams: %w", err)
		}
		return dispatch(ctx, store.NewAction(ActionFetchStreams, list)).Err()
	}
}

// FetchStream loads one stream (GET /streams/:id).
func FetchStream(api API, id int64) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		record, err := api.Get(ctx, streamPath(id))
		if err != nil {
			return fmt.Errorf("fetch stream %d: %w", id, err)
		}
		return dispatch(ctx, store.NewAction(ActionFetchStream, record)).Err()
	}
}

// CreateStream posts a new stream owned by the signed-in user
// (POST /streams). The userId is read from state when the thunk runs and
// is null when nobody is signed in.
func CreateStream(api API, values ir.IRObject) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, getState store.GetState) error {
		body := values.With("userId", auth.UserID(getState()))
		record, err := api.Post(ctx, "/streams", body)
		if err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		return dispatch(ctx, store.NewAction(ActionCreateStream, record)).Err()
	}
}

// EditStream updates some properties of a stream (PATCH /streams/:id).
func EditStream(api API, id int64, values ir.IRObject) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		record, err := api.Patch(ctx, streamPath(id), values)
		if err != nil {
			return fmt.Errorf("edit stream %d: %w", id, err)
		}
		return dispatch(ctx, store.NewAction(ActionEditStream, record)).Err()
	}
}

// DeleteStream removes a stream (DELETE /streams/:id).
func DeleteStream(api API, id int64) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		if _, err := api.Delete(ctx, streamPath(id)); err != nil {
			return fmt.Errorf("delete stream %d: %w", id, err)
		}
		return dispatch(ctx, store.NewAction(ActionDeleteStream, ir.IRInt(id))).Err()
	}
}

func streamPath(id int64) string {
	return fmt.Sprintf("/streams/%d", id)
}
