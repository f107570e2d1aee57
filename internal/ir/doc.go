// Package ir provides the canonical value representation for relay state.
//
// State trees, action payloads and API response bodies are all IRValue
// trees. This package imports nothing internal so every other package can
// depend on it.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Values inside a committed state tree are never mutated in place;
//     With, Without, Merge and Append return new values that share
//     unchanged children with their input
//   - Canonical JSON (RFC 8785) is the only encoding used for hashing
//   - Logical clocks (seq) only, never wall-clock timestamps
package ir
