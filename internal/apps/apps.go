// Package apps assembles the example applications into one state tree.
//
// Every app contributes named slices; the full tree is what the demo
// command runs against and what journal replay rebuilds.
package apps

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/relay/internal/apps/auth"
	"github.com/roach88/relay/internal/apps/blog"
	"github.com/roach88/relay/internal/apps/songs"
	"github.com/roach88/relay/internal/apps/streams"
	"github.com/roach88/relay/internal/store"
)

// App names.
const (
	Songs   = "songs"
	Auth    = "auth"
	Blog    = "blog"
	Streams = "streams"
)

var registry = map[string]func() map[string]store.Reducer{
	Songs:   songs.Reducers,
	Auth:    auth.Reducers,
	Blog:    blog.Reducers,
	Streams: streams.Reducers,
}

// Names returns the app names in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(registry))
}

// Reducers returns the slices contributed by the named apps. With no names
// every app is included. Two apps claiming the same slice is an error.
func Reducers(names ...string) (map[string]store.Reducer, error) {
	if len(names) == 0 {
		names = Names()
	}
	out := make(map[string]store.Reducer)
	owner := make(map[string]string)
	for _, name := range names {
		build, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown app %q (known: %v)", name, Names())
		}
		for slice, r := range build() {
			if prev, dup := owner[slice]; dup && prev != name {
				return nil, fmt.Errorf("slice %q claimed by both %s and %s", slice, prev, name)
			}
			owner[slice] = name
			out[slice] = r
		}
	}
	return out, nil
}

// Root combines the named apps (all apps by default) into a root reducer.
func Root(names ...string) (*store.Combination, error) {
	reducers, err := Reducers(names...)
	if err != nil {
		return nil, err
	}
	return store.Combine(reducers)
}
