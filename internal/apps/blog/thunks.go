package blog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// API is the subset of the REST client the blog thunks use.
type API interface {
	Get(ctx context.Context, path string) (ir.IRValue, error)
}

// FetchPosts loads the post list (GET /posts).
func FetchPosts(api API) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		posts, err := api.Get(ctx, "/posts")
		if err != nil {
			return fmt.Errorf("fetch posts: %w", err)
		}
		return dispatch(ctx, store.NewAction(ActionFetchPosts, posts)).Err()
	}
}

// FetchUser loads one author (GET /users/:id).
func FetchUser(api API, id ir.IRValue) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		path, err := userPath(id)
		if err != nil {
			return err
		}
		user, err := api.Get(ctx, path)
		if err != nil {
			return fmt.Errorf("fetch user %s: %w", path, err)
		}
		return dispatch(ctx, store.NewAction(ActionFetchUser, user)).Err()
	}
}

// FetchPostsAndUsers loads the posts, then every distinct author exactly
// once. Author fetches run concurrently; their failures are combined.
func FetchPostsAndUsers(api API) store.Thunk {
	return fetchPostsThen(api, func(id ir.IRValue) store.Thunk {
		return FetchUser(api, id)
	})
}

func fetchPostsThen(api API, fetchUser func(ir.IRValue) store.Thunk) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, getState store.GetState) error {
		if err := dispatch(ctx, FetchPosts(api)).Wait(ctx); err != nil {
			return err
		}

		ids := UniqueUserIDs(Posts(getState()))
		pending := make([]*store.Future, 0, len(ids))
		for _, id := range ids {
			pending = append(pending, dispatch(ctx, fetchUser(id)))
		}

		var errs error
		for _, f := range pending {
			errs = multierr.Append(errs, f.Wait(ctx))
		}
		return errs
	}
}

// UserFetcher fetches each author at most once across every dispatch that
// shares it. Concurrent requests for the same id wait on the first; a
// failed fetch is forgotten so a later request retries.
//
// Thread-safety: UserFetcher is safe for concurrent use.
type UserFetcher struct {
	api API

	mu    sync.Mutex
	calls map[string]*userCall
}

type userCall struct {
	done chan struct{}
	err  error
}

// NewUserFetcher creates a memoizing author fetcher.
func NewUserFetcher(api API) *UserFetcher {
	return &UserFetcher{api: api, calls: make(map[string]*userCall)}
}

// Fetch returns a thunk that loads the author with id unless it has been
// loaded (or is loading) already.
func (m *UserFetcher) Fetch(id ir.IRValue) store.Thunk {
	return func(ctx context.Context, dispatch store.Dispatch, getState store.GetState) error {
		key, ok := ir.KeyOf(id)
		if !ok {
			return fmt.Errorf("user id must be a scalar, got %T", id)
		}

		m.mu.Lock()
		if c, ok := m.calls[key]; ok {
			m.mu.Unlock()
			select {
			case <-c.done:
				return c.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		c := &userCall{done: make(chan struct{})}
		m.calls[key] = c
		m.mu.Unlock()

		c.err = FetchUser(m.api, id)(ctx, dispatch, getState)
		if c.err != nil {
			m.mu.Lock()
			delete(m.calls, key)
			m.mu.Unlock()
		}
		close(c.done)
		return c.err
	}
}

// Loaded reports how many authors are fetched or in flight.
func (m *UserFetcher) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// FetchPostsAndUsers is like the package-level FetchPostsAndUsers but
// goes through the memo, so repeated runs skip authors already loaded.
func (m *UserFetcher) FetchPostsAndUsers() store.Thunk {
	return fetchPostsThen(m.api, m.Fetch)
}

func userPath(id ir.IRValue) (string, error) {
	key, ok := ir.KeyOf(id)
	if !ok {
		return "", fmt.Errorf("user id must be a scalar, got %T", id)
	}
	return "/users/" + key, nil
}
