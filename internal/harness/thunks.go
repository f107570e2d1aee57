package harness

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/relay/internal/api"
	"github.com/roach88/relay/internal/apps/auth"
	"github.com/roach88/relay/internal/apps/blog"
	"github.com/roach88/relay/internal/apps/streams"
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// Deps are the collaborators a scenario's thunks run against. One set is
// built per scenario run.
type Deps struct {
	API      *api.Client
	Provider *auth.MemoryProvider
	Users    *blog.UserFetcher
}

// ThunkFactory builds a thunk from scenario arguments.
type ThunkFactory func(d *Deps, args ir.IRArray) (store.Thunk, error)

var thunkRegistry = map[string]ThunkFactory{
	"blog.fetch_posts": func(d *Deps, _ ir.IRArray) (store.Thunk, error) {
		return blog.FetchPosts(d.API), nil
	},
	"blog.fetch_user": func(d *Deps, args ir.IRArray) (store.Thunk, error) {
		id, err := argValue(args, 0)
		if err != nil {
			return nil, err
		}
		return blog.FetchUser(d.API, id), nil
	},
	"blog.fetch_posts_and_users": func(d *Deps, _ ir.IRArray) (store.Thunk, error) {
		return blog.FetchPostsAndUsers(d.API), nil
	},
	"blog.fetch_user_memo": func(d *Deps, args ir.IRArray) (store.Thunk, error) {
		id, err := argValue(args, 0)
		if err != nil {
			return nil, err
		}
		return d.Users.Fetch(id), nil
	},
	"blog.fetch_posts_and_users_memo": func(d *Deps, _ ir.IRArray) (store.Thunk, error) {
		return d.Users.FetchPostsAndUsers(), nil
	},
	"streams.fetch_streams": func(d *Deps, _ ir.IRArray) (store.Thunk, error) {
		return streams.FetchStreams(d.API), nil
	},
	"streams.fetch_stream": func(d *Deps, args ir.IRArray) (store.Thunk, error) {
		id, err := argInt(args, 0)
		if err != nil {
			return nil, err
		}
		return streams.FetchStream(d.API, id), nil
	},
	"streams.create_stream": func(d *Deps, args ir.IRArray) (store.Thunk, error) {
		values, err := argObject(args, 0)
		if err != nil {
			return nil, err
		}
		return streams.CreateStream(d.API, values), nil
	},
	"streams.edit_stream": func(d *Deps, args ir.IRArray) (store.Thunk, error) {
		id, err := argInt(args, 0)
		if err != nil {
			return nil, err
		}
		values, err := argObject(args, 1)
		if err != nil {
			return nil, err
		}
		return streams.EditStream(d.API, id, values), nil
	},
	"streams.delete_stream": func(d *Deps, args ir.IRArray) (store.Thunk, error) {
		id, err := argInt(args, 0)
		if err != nil {
			return nil, err
		}
		return streams.DeleteStream(d.API, id), nil
	},
	"auth.check_sign_in": func(d *Deps, _ ir.IRArray) (store.Thunk, error) {
		return auth.CheckSignIn(d.Provider), nil
	},
	"auth.request_sign_in": func(d *Deps, _ ir.IRArray) (store.Thunk, error) {
		return auth.RequestSignIn(d.Provider), nil
	},
	"auth.request_sign_out": func(d *Deps, _ ir.IRArray) (store.Thunk, error) {
		return auth.RequestSignOut(d.Provider), nil
	},
}

// ThunkNames returns the registered thunk names in sorted order.
func ThunkNames() []string {
	return slices.Sorted(maps.Keys(thunkRegistry))
}

// BuildThunk resolves name against the registry.
func BuildThunk(name string, d *Deps, args ir.IRArray) (store.Thunk, error) {
	factory, ok := thunkRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown thunk %q", name)
	}
	return factory(d, args)
}

func argValue(args ir.IRArray, i int) (ir.IRValue, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d", i)
	}
	return args[i], nil
}

func argInt(args ir.IRArray, i int) (int64, error) {
	v, err := argValue(args, i)
	if err != nil {
		return 0, err
	}
	n, ok := v.(ir.IRInt)
	if !ok {
		return 0, fmt.Errorf("argument %d must be an integer, got %T", i, v)
	}
	return int64(n), nil
}

func argObject(args ir.IRArray, i int) (ir.IRObject, error) {
	v, err := argValue(args, i)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("argument %d must be an object, got %T", i, v)
	}
	return obj, nil
}
