package store

import (
	"fmt"
	"sort"

	"github.com/roach88/relay/internal/ir"
)

// Reducer is a pure slice reduction function.
//
// A reducer is invoked with a nil state when no prior value exists and must
// return its default. It must be total: for any action type it does not
// recognize it returns state unchanged (the same instance). It must never
// return nil; use ir.Null for an absent value.
type Reducer func(state ir.IRValue, action Action) ir.IRValue

// RootReducer reduces a whole state tree.
type RootReducer interface {
	Reduce(state ir.IRObject, action Action) (ir.IRObject, error)
}

// Combination is the root reducer produced by Combine. Its output tree has
// exactly one key per registered slice.
type Combination struct {
	keys     []string // sorted for deterministic evaluation order
	reducers map[string]Reducer
}

// Combine composes slice reducers into one root reducer.
//
// Every reducer is called with an absent state for the init action and for
// an unknown action type; a nil result from either fails construction with
// a NIL_SLICE error, surfacing a broken reducer before any real dispatch.
func Combine(slices map[string]Reducer) (*Combination, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("combine: at least one slice reducer is required")
	}

	c := &Combination{
		keys:     make([]string, 0, len(slices)),
		reducers: make(map[string]Reducer, len(slices)),
	}
	for name, r := range slices {
		if name == "" {
			return nil, fmt.Errorf("combine: slice name must not be empty")
		}
		if r == nil {
			return nil, fmt.Errorf("combine: slice %q has no reducer", name)
		}
		c.keys = append(c.keys, name)
		c.reducers[name] = r
	}
	sort.Strings(c.keys)

	for _, name := range c.keys {
		for _, check := range []string{ActionInit, actionShapeCheck} {
			if c.reducers[name](nil, Action{Type: check}) == nil {
				return nil, NewNilSliceError(name, check)
			}
		}
	}

	return c, nil
}

// MustCombine is like Combine but panics on error.
// Use only for reducer sets known at compile time.
func MustCombine(slices map[string]Reducer) *Combination {
	c, err := Combine(slices)
	if err != nil {
		panic(err)
	}
	return c
}

// Reduce implements RootReducer.
//
// When no slice changes (every reducer returns the identical instance) the
// input tree itself is returned, so callers can detect a no-op with
// ir.Same. Otherwise the new tree shares every unchanged slice with the
// input.
func (c *Combination) Reduce(state ir.IRObject, action Action) (ir.IRObject, error) {
	next := make(ir.IRObject, len(c.keys))
	changed := state == nil || len(state) != len(c.keys)

	for _, name := range c.keys {
		prev, had := state[name]
		if !had {
			prev = nil
		}
		value := c.reducers[name](prev, action)
		if value == nil {
			return nil, NewNilSliceError(name, action.Type)
		}
		next[name] = value
		if !had || !ir.Same(prev, value) {
			changed = true
		}
	}

	if !changed {
		return state, nil
	}
	return next, nil
}

// Slices returns the registered slice names in evaluation order.
func (c *Combination) Slices() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}
