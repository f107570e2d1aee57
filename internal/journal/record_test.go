package journal

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

func tallyReducer(state ir.IRValue, action store.Action) ir.IRValue {
	n, _ := state.(ir.IRInt)
	switch action.Type {
	case "ADD":
		delta, _ := action.Payload.(ir.IRInt)
		return n + delta
	case "RESET":
		return ir.IRInt(0)
	}
	if state == nil {
		return ir.IRInt(0)
	}
	return state
}

func labelReducer(state ir.IRValue, action store.Action) ir.IRValue {
	if action.Type == "LABEL" {
		return action.PayloadOrNull()
	}
	if state == nil {
		return ir.Null
	}
	return state
}

func testRoot() *store.Combination {
	return store.MustCombine(map[string]store.Reducer{
		"tally": tallyReducer,
		"label": labelReducer,
	})
}

// journaledStore wires a store to record into j.
func journaledStore(t *testing.T, j *Journal, flows ...string) *store.Store {
	t.Helper()
	s, err := store.New(testRoot(),
		store.WithCommitHook(j.Hook()),
		store.WithFlowGenerator(store.NewFixedGenerator(flows...)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecord_FromStore(t *testing.T) {
	j := createTestJournal(t)
	s := journaledStore(t, j, "flow-1", "flow-2", "flow-3")
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, store.NewAction("ADD", ir.IRInt(2))).Err())
	require.NoError(t, s.Dispatch(ctx, store.NewAction("LABEL", ir.IRString("two"))).Err())
	require.NoError(t, s.Dispatch(ctx, store.NewAction("UNKNOWN", nil)).Err())

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, "flow-1", entries[0].FlowToken)
	assert.Equal(t, "ADD", entries[0].ActionType)
	assert.Equal(t, ir.IRInt(2), entries[0].Payload)
	assert.True(t, entries[0].Changed)
	assert.Equal(t, ir.IRVersion, entries[0].IRVersion)
	assert.Equal(t, ir.StoreVersion, entries[0].StoreVersion)

	assert.Equal(t, ir.IRString("two"), entries[1].Payload)

	assert.False(t, entries[2].Changed, "unknown action is journaled as unchanged")
	assert.Equal(t, ir.Null, entries[2].Payload, "absent payload reads back as null")
	assert.Equal(t, entries[1].StateHash, entries[2].StateHash)

	assert.Equal(t, ir.MustStateHash(s.GetState()), entries[2].StateHash)
}

func TestRecord_Idempotent(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	c := store.Commit{
		Seq:     1,
		Flow:    "flow-1",
		Action:  store.NewAction("ADD", ir.IRInt(1)),
		State:   ir.IRObject{"tally": ir.IRInt(1), "label": ir.Null},
		Changed: true,
	}
	require.NoError(t, j.Record(ctx, c))
	require.NoError(t, j.Record(ctx, c))

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecord_IDIsContentAddressed(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	c := store.Commit{
		Seq:    7,
		Flow:   "flow-x",
		Action: store.NewAction("ADD", ir.IRInt(3)),
		State:  ir.IRObject{"tally": ir.IRInt(3), "label": ir.Null},
	}
	require.NoError(t, j.Record(ctx, c))

	e, err := j.ReadEntry(ctx, 7)
	require.NoError(t, err)

	want, err := ir.ActionID("flow-x", "ADD", ir.IRInt(3), 7)
	require.NoError(t, err)
	assert.Equal(t, want, e.ID)
}

func TestReadEntry_NotFound(t *testing.T) {
	j := createTestJournal(t)

	_, err := j.ReadEntry(context.Background(), 42)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadFlow_AndFlows(t *testing.T) {
	j := createTestJournal(t)
	s := journaledStore(t, j, "flow-a", "flow-b")
	ctx := context.Background()

	thunk := store.Thunk(func(ctx context.Context, dispatch store.Dispatch, _ store.GetState) error {
		dispatch(ctx, store.NewAction("ADD", ir.IRInt(1)))
		return dispatch(ctx, store.NewAction("ADD", ir.IRInt(1))).Err()
	})

	// Thunks need the middleware; build a second store sharing the journal.
	ts, err := store.New(testRoot(),
		store.WithMiddleware(store.ThunkMiddleware()),
		store.WithCommitHook(j.Record),
		store.WithFlowGenerator(store.NewFixedGenerator("flow-t")),
		store.WithClock(store.NewClockAt(100)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { ts.Close() })

	require.NoError(t, s.Dispatch(ctx, store.NewAction("ADD", ir.IRInt(5))).Err())
	require.NoError(t, ts.Await(ctx, ts.Dispatch(ctx, thunk)))
	require.NoError(t, s.Dispatch(ctx, store.NewAction("RESET", nil)).Err())

	flowT, err := j.ReadFlow(ctx, "flow-t")
	require.NoError(t, err)
	require.Len(t, flowT, 2)
	assert.Equal(t, int64(101), flowT[0].Seq)
	assert.Equal(t, int64(102), flowT[1].Seq)

	none, err := j.ReadFlow(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	flows, err := j.Flows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []FlowSummary{
		{FlowToken: "flow-a", FirstSeq: 1, LastSeq: 1, Count: 1},
		{FlowToken: "flow-b", FirstSeq: 2, LastSeq: 2, Count: 1},
		{FlowToken: "flow-t", FirstSeq: 101, LastSeq: 102, Count: 2},
	}, flows)

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(102), last)
}

func TestLastSeq_Empty(t *testing.T) {
	j := createTestJournal(t)

	last, err := j.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}
