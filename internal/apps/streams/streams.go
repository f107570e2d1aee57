// Package streams keeps stream records keyed by id and syncs them with the
// REST API.
package streams

import (
	"slices"
	"strconv"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// Slice is the slice name.
const Slice = "streams"

// Action types.
const (
	ActionFetchStreams = "FETCH_STREAMS"
	ActionFetchStream  = "FETCH_STREAM"
	ActionCreateStream = "CREATE_STREAM"
	ActionEditStream   = "EDIT_STREAM"
	ActionDeleteStream = "DELETE_STREAM"
)

// Reducer is the streams slice reducer.
//
// Records are keyed by their "id" field; records without a scalar id are
// ignored.
func Reducer(state ir.IRValue, action store.Action) ir.IRValue {
	cur, ok := state.(ir.IRObject)
	if !ok {
		cur = ir.IRObject{}
	}

	switch action.Type {
	case ActionFetchStreams:
		list, ok := action.Payload.(ir.IRArray)
		if !ok {
			break
		}
		keyed := keyByID(list)
		if len(keyed) == 0 {
			break
		}
		return cur.Merge(keyed)

	case ActionFetchStream, ActionCreateStream, ActionEditStream:
		record, _ := action.Payload.(ir.IRObject)
		key, ok := ir.KeyOf(record.Get("id"))
		if !ok {
			break
		}
		return cur.With(key, record)

	case ActionDeleteStream:
		key, ok := ir.KeyOf(action.PayloadOrNull())
		if !ok {
			break
		}
		return cur.Without(key)
	}

	if state == nil {
		return cur
	}
	return state
}

// keyByID indexes records by id; the last record wins for a repeated id.
func keyByID(list ir.IRArray) ir.IRObject {
	out := make(ir.IRObject, len(list))
	for _, v := range list {
		record, ok := v.(ir.IRObject)
		if !ok {
			continue
		}
		if key, ok := ir.KeyOf(record.Get("id")); ok {
			out[key] = record
		}
	}
	return out
}

// Reducers returns the slices this app contributes.
func Reducers() map[string]store.Reducer {
	return map[string]store.Reducer{Slice: Reducer}
}

// Get returns the stream with id, or null when it is not loaded.
func Get(state ir.IRObject, id int64) ir.IRValue {
	slice, _ := state.Get(Slice).(ir.IRObject)
	return slice.Get(strconv.FormatInt(id, 10))
}

// List returns every loaded stream ordered by id. Numeric ids sort
// numerically and come before any non-numeric id.
func List(state ir.IRObject) ir.IRArray {
	slice, _ := state.Get(Slice).(ir.IRObject)
	keys := make([]string, 0, len(slice))
	for k := range slice {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareIDs)

	out := make(ir.IRArray, 0, len(keys))
	for _, k := range keys {
		out = append(out, slice[k])
	}
	return out
}

func compareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
