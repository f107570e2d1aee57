// Package blog lists posts with their authors. Posts are fetched in one
// request; each distinct author is then fetched on its own.
package blog

import (
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// Slice names.
const (
	SlicePosts = "posts"
	SliceUsers = "users"
)

// Action types.
const (
	ActionFetchPosts = "FETCH_POSTS"
	ActionFetchUser  = "FETCH_USER"
)

// PostsReducer replaces the post list on every fetch.
func PostsReducer(state ir.IRValue, action store.Action) ir.IRValue {
	if action.Type == ActionFetchPosts {
		if list, ok := action.Payload.(ir.IRArray); ok {
			return list
		}
		return ir.Arr()
	}
	if state == nil {
		return ir.Arr()
	}
	return state
}

// UsersReducer appends each fetched user. A user fetched twice appears
// twice; UserByID returns the first.
func UsersReducer(state ir.IRValue, action store.Action) ir.IRValue {
	users, ok := state.(ir.IRArray)
	if !ok {
		users = ir.Arr()
	}
	if action.Type == ActionFetchUser && !ir.IsNull(action.Payload) {
		return users.Append(action.Payload)
	}
	if state == nil {
		return users
	}
	return state
}

// Reducers returns the slices this app contributes.
func Reducers() map[string]store.Reducer {
	return map[string]store.Reducer{
		SlicePosts: PostsReducer,
		SliceUsers: UsersReducer,
	}
}

// Posts returns the loaded posts.
func Posts(state ir.IRObject) ir.IRArray {
	list, _ := state.Get(SlicePosts).(ir.IRArray)
	return list
}

// Users returns the loaded users in fetch order.
func Users(state ir.IRObject) ir.IRArray {
	list, _ := state.Get(SliceUsers).(ir.IRArray)
	return list
}

// UserByID returns the author with id, or null while it is not loaded.
// Ids match by key, so 1 and "1" are the same author.
func UserByID(state ir.IRObject, id ir.IRValue) ir.IRValue {
	want, ok := ir.KeyOf(id)
	if !ok {
		return ir.Null
	}
	for _, v := range Users(state) {
		user, ok := v.(ir.IRObject)
		if !ok {
			continue
		}
		if got, ok := ir.KeyOf(user.Get("id")); ok && got == want {
			return user
		}
	}
	return ir.Null
}

// UniqueUserIDs returns the distinct userId values of posts in first-seen
// order. Posts without a scalar userId are skipped.
func UniqueUserIDs(posts ir.IRArray) ir.IRArray {
	seen := make(map[string]bool, len(posts))
	out := ir.Arr()
	for _, v := range posts {
		post, ok := v.(ir.IRObject)
		if !ok {
			continue
		}
		id := post.Get("userId")
		key, ok := ir.KeyOf(id)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}
