package streams

import (
	"context"
	"maps"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relay/internal/api"
	"github.com/roach88/relay/internal/apps/auth"
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
	"github.com/roach88/relay/internal/testutil"
)

func stream(id int64, title string) ir.IRObject {
	return ir.Obj(ir.O("id", ir.IRInt(id)), ir.O("title", ir.IRString(title)))
}

func newStreamsStore(t *testing.T) *store.Store {
	t.Helper()
	reducers := Reducers()
	maps.Copy(reducers, auth.Reducers())

	s, err := store.New(store.MustCombine(reducers), store.WithMiddleware(store.ThunkMiddleware()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newBackend(t *testing.T, seed ...ir.IRValue) (*testutil.Backend, *api.Client) {
	t.Helper()
	b := testutil.NewBackend(testutil.BackendData{Streams: ir.Arr(seed...)})
	t.Cleanup(b.Close)

	c, err := api.New(b.URL())
	require.NoError(t, err)
	return b, c
}

func run(t *testing.T, s *store.Store, thunk store.Thunk) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Await(ctx, s.Dispatch(ctx, thunk))
}

func TestReducer_FetchThenDelete(t *testing.T) {
	state := Reducer(nil, store.NewAction(ActionFetchStreams, ir.Arr(stream(1, "a"), stream(2, "b"))))
	assert.True(t, ir.Equal(ir.Obj(ir.O("1", stream(1, "a")), ir.O("2", stream(2, "b"))), state))

	state = Reducer(state, store.NewAction(ActionDeleteStream, ir.IRInt(1)))
	assert.True(t, ir.Equal(ir.Obj(ir.O("2", stream(2, "b"))), state))
}

func TestReducer_FetchMergesIntoExisting(t *testing.T) {
	state := Reducer(nil, store.NewAction(ActionCreateStream, stream(5, "mine")))
	state = Reducer(state, store.NewAction(ActionFetchStreams, ir.Arr(stream(1, "a"))))

	obj := state.(ir.IRObject)
	assert.Len(t, obj, 2)
	assert.True(t, ir.Equal(stream(5, "mine"), obj.Get("5")))
}

func TestReducer_SingleRecordActionsReplace(t *testing.T) {
	state := Reducer(nil, store.NewAction(ActionFetchStream, stream(3, "old")))
	state = Reducer(state, store.NewAction(ActionEditStream, stream(3, "new")))

	assert.True(t, ir.Equal(ir.Obj(ir.O("3", stream(3, "new"))), state))
}

func TestReducer_IgnoresRecordsWithoutID(t *testing.T) {
	initial := Reducer(nil, store.NewAction(store.ActionInit, nil))
	assert.Equal(t, ir.IRObject{}, initial)

	next := Reducer(initial, store.NewAction(ActionCreateStream, ir.Obj(ir.O("title", ir.IRString("x")))))
	assert.True(t, ir.Same(initial, next))

	next = Reducer(initial, store.NewAction(ActionDeleteStream, nil))
	assert.True(t, ir.Same(initial, next))

	next = Reducer(initial, store.NewAction("OTHER", nil))
	assert.True(t, ir.Same(initial, next))
}

func TestReducer_FetchWithoutRecordsKeepsIdentity(t *testing.T) {
	state := Reducer(nil, store.NewAction(ActionFetchStream, stream(1, "a")))

	for name, payload := range map[string]ir.IRValue{
		"null":        ir.Null,
		"object":      stream(2, "b"),
		"empty array": ir.Arr(),
		"no ids":      ir.Arr(ir.Obj(ir.O("title", ir.IRString("x"))), ir.IRInt(3)),
	} {
		next := Reducer(state, store.NewAction(ActionFetchStreams, payload))
		assert.True(t, ir.Same(state, next), name)
	}
}

func TestReducer_DeleteMissingKeepsIdentity(t *testing.T) {
	state := Reducer(nil, store.NewAction(ActionFetchStream, stream(1, "a")))
	next := Reducer(state, store.NewAction(ActionDeleteStream, ir.IRInt(9)))
	assert.True(t, ir.Same(state, next))
}

func TestList_OrdersByNumericID(t *testing.T) {
	state := ir.Obj(ir.O(Slice, ir.Obj(
		ir.O("10", stream(10, "ten")),
		ir.O("2", stream(2, "two")),
		ir.O("abc", ir.Obj(ir.O("id", ir.IRString("abc")))),
	)))

	list := List(state)
	require.Len(t, list, 3)
	assert.Equal(t, ir.IRInt(2), list[0].(ir.IRObject).Get("id"))
	assert.Equal(t, ir.IRInt(10), list[1].(ir.IRObject).Get("id"))
	assert.Equal(t, ir.IRString("abc"), list[2].(ir.IRObject).Get("id"))

	assert.True(t, ir.Equal(stream(2, "two"), Get(state, 2)))
	assert.True(t, ir.IsNull(Get(state, 3)))
}

func TestFetchStreams(t *testing.T) {
	_, c := newBackend(t, stream(1, "a"), stream(2, "b"))
	s := newStreamsStore(t)

	require.NoError(t, run(t, s, FetchStreams(c)))

	list := List(s.GetState())
	require.Len(t, list, 2)
	assert.Equal(t, ir.IRString("b"), list[1].(ir.IRObject).Get("title"))
}

func TestFetchStream_NotFound(t *testing.T) {
	_, c := newBackend(t)
	s := newStreamsStore(t)

	err := run(t, s, FetchStream(c, 42))
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
	assert.Equal(t, int64(0), s.Seq())
}

func TestCreateStream_StampsSignedInUser(t *testing.T) {
	b, c := newBackend(t)
	s := newStreamsStore(t)

	ctx := context.Background()
	require.NoError(t, s.Dispatch(ctx, auth.SignIn("user-7")).Err())

	values := ir.Obj(ir.O("title", ir.IRString("My stream")))
	require.NoError(t, run(t, s, CreateStream(c, values)))

	created, ok := b.Stream(1)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("user-7"), created.Get("userId"))

	got := Get(s.GetState(), 1).(ir.IRObject)
	assert.Equal(t, ir.IRString("My stream"), got.Get("title"))
	assert.Equal(t, ir.IRString("user-7"), got.Get("userId"))
	assert.Equal(t, ir.IRString("My stream"), values.Get("title"))
	assert.NotContains(t, values, "userId", "caller values are not modified")
}

func TestCreateStream_SignedOutSendsNullUser(t *testing.T) {
	b, c := newBackend(t)
	s := newStreamsStore(t)

	require.NoError(t, run(t, s, CreateStream(c, ir.Obj(ir.O("title", ir.IRString("t"))))))

	created, ok := b.Stream(1)
	require.True(t, ok)
	assert.True(t, ir.IsNull(created.Get("userId")))
}

func TestEditStream_Patches(t *testing.T) {
	b, c := newBackend(t, ir.Obj(ir.O("id", ir.IRInt(1)), ir.O("title", ir.IRString("a")), ir.O("description", ir.IRString("keep"))))
	s := newStreamsStore(t)

	require.NoError(t, run(t, s, EditStream(c, 1, ir.Obj(ir.O("title", ir.IRString("renamed"))))))

	got := Get(s.GetState(), 1).(ir.IRObject)
	assert.Equal(t, ir.IRString("renamed"), got.Get("title"))
	assert.Equal(t, ir.IRString("keep"), got.Get("description"))
	assert.Equal(t, 1, b.Hits("PATCH", "/streams/1"))
}

func TestDeleteStream(t *testing.T) {
	_, c := newBackend(t, stream(1, "a"), stream(2, "b"))
	s := newStreamsStore(t)

	require.NoError(t, run(t, s, FetchStreams(c)))
	require.NoError(t, run(t, s, DeleteStream(c, 1)))

	assert.True(t, ir.IsNull(Get(s.GetState(), 1)))
	assert.Len(t, List(s.GetState()), 1)
}

func TestDeleteStream_FailureLeavesState(t *testing.T) {
	b, c := newBackend(t, stream(1, "a"))
	s := newStreamsStore(t)

	require.NoError(t, run(t, s, FetchStreams(c)))
	before := s.GetState()

	b.Fail("DELETE", "/streams/1", http.StatusInternalServerError)
	err := run(t, s, DeleteStream(c, 1))
	require.Error(t, err)
	assert.True(t, ir.Same(before, s.GetState()))
}

func TestFetchStreams_StateUnchangedUntilAwaited(t *testing.T) {
	b, c := newBackend(t, stream(1, "a"))
	b.SetDelay(20 * time.Millisecond)
	s := newStreamsStore(t)

	before := s.GetState()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := s.Dispatch(ctx, FetchStreams(c))
	assert.True(t, ir.Same(before, s.GetState()), "the response has not been applied yet")

	require.NoError(t, s.Await(ctx, f))
	assert.Len(t, List(s.GetState()), 1)
}

// cancellingAPI answers GET /streams and then cancels the dispatch context,
// as a view unmounting mid-request would.
type cancellingAPI struct {
	API
	cancel context.CancelFunc
}

func (a cancellingAPI) Get(context.Context, string) (ir.IRValue, error) {
	a.cancel()
	return ir.Arr(stream(1, "late")), nil
}

func TestFetchStreams_CancelledBeforeCommit(t *testing.T) {
	s := newStreamsStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := s.Dispatch(ctx, FetchStreams(cancellingAPI{cancel: cancel}))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	err := s.Await(waitCtx, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, store.ErrPending)
	assert.Empty(t, List(s.GetState()), "late response is not committed")
}
