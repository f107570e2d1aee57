// Package songs is the song picker: a fixed catalog and the current
// selection.
package songs

import (
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// Slice names.
const (
	SliceSongs    = "songs"
	SliceSelected = "selectedSong"
)

// ActionSongSelected sets the selected song to the payload.
const ActionSongSelected = "SONG_SELECTED"

// catalog is shared by every tree; it is never modified.
var catalog = ir.Arr(
	song("No Scrubs", "4:05"),
	song("Macarena", "2:30"),
	song("All start", "3:15"),
	song("that way", "74:13"),
)

func song(title, duration string) ir.IRObject {
	return ir.Obj(
		ir.O("title", ir.IRString(title)),
		ir.O("duration", ir.IRString(duration)),
	)
}

// Catalog returns the fixed song list in display order.
func Catalog() ir.IRArray {
	return catalog
}

// SongsReducer always yields the catalog.
func SongsReducer(state ir.IRValue, _ store.Action) ir.IRValue {
	if state == nil {
		return catalog
	}
	return state
}

// SelectedReducer holds the last selected song, or null.
func SelectedReducer(state ir.IRValue, action store.Action) ir.IRValue {
	if action.Type == ActionSongSelected {
		return action.PayloadOrNull()
	}
	if state == nil {
		return ir.Null
	}
	return state
}

// Reducers returns the slices this app contributes.
func Reducers() map[string]store.Reducer {
	return map[string]store.Reducer{
		SliceSongs:    SongsReducer,
		SliceSelected: SelectedReducer,
	}
}

// SelectSong creates the selection action.
func SelectSong(s ir.IRValue) store.Action {
	return store.NewAction(ActionSongSelected, s)
}

// Selected returns the selected song, or null.
func Selected(state ir.IRObject) ir.IRValue {
	return state.Get(SliceSelected)
}

// List returns the songs in the tree.
func List(state ir.IRObject) ir.IRArray {
	arr, _ := state.Get(SliceSongs).(ir.IRArray)
	return arr
}

// ByTitle finds a catalog song by title, or null.
func ByTitle(state ir.IRObject, title string) ir.IRValue {
	for _, s := range List(state) {
		if obj, ok := s.(ir.IRObject); ok && obj.Get("title") == ir.IRString(title) {
			return obj
		}
	}
	return ir.Null
}
