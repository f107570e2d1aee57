package journal

import (
	"context"
	"fmt"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// ReplayResult is the outcome of a successful replay.
type ReplayResult struct {
	State   ir.IRObject
	Entries int
	LastSeq int64
	Flows   int
}

// HashMismatchError reports the first entry whose replayed tree differs
// from the recorded one.
type HashMismatchError struct {
	Seq        int64
	ActionType string
	Recorded   string
	Replayed   string
}

// Error implements the error interface.
func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("replay diverged at seq %d (%s): recorded state %s, replayed %s",
		e.Seq, e.ActionType, short(e.Recorded), short(e.Replayed))
}

// Replay rebuilds state by reducing every journaled action, in seq order,
// from the root reducer's initial tree. Each resulting tree must hash to
// the recorded state hash.
func (j *Journal) Replay(ctx context.Context, root store.RootReducer) (ReplayResult, error) {
	entries, err := j.Entries(ctx)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	return ReplayEntries(root, entries)
}

// ReplayEntries is Replay over an already loaded entry list.
func ReplayEntries(root store.RootReducer, entries []Entry) (ReplayResult, error) {
	state, err := root.Reduce(nil, store.Action{Type: store.ActionInit})
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: initial reduction: %w", err)
	}

	flows := make(map[string]struct{})
	result := ReplayResult{}
	for _, e := range entries {
		state, err = root.Reduce(state, e.Action())
		if err != nil {
			return ReplayResult{}, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}

		got, err := ir.StateHash(state)
		if err != nil {
			return ReplayResult{}, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		if got != e.StateHash {
			return ReplayResult{}, &HashMismatchError{
				Seq:        e.Seq,
				ActionType: e.ActionType,
				Recorded:   e.StateHash,
				Replayed:   got,
			}
		}

		flows[e.FlowToken] = struct{}{}
		result.Entries++
		result.LastSeq = e.Seq
	}

	result.State = state
	result.Flows = len(flows)
	return result, nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
