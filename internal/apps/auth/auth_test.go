package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

func newStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	opts = append([]store.Option{store.WithMiddleware(store.ThunkMiddleware())}, opts...)
	s, err := store.New(store.MustCombine(Reducers()), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAuth_InitialState(t *testing.T) {
	s := newStore(t)

	assert.Equal(t,
		ir.IRObject{"isSignedIn": ir.Null, "userId": ir.Null},
		s.GetState()[Slice],
	)
	status, id := StatusOf(s.GetState())
	assert.Equal(t, StatusUnknown, status)
	assert.Empty(t, id)
}

func TestAuth_SignInThenOut(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, SignIn("user-42")).Err())
	assert.Equal(t,
		ir.IRObject{"isSignedIn": ir.IRBool(true), "userId": ir.IRString("user-42")},
		s.GetState()[Slice],
	)
	status, id := StatusOf(s.GetState())
	assert.Equal(t, StatusSignedIn, status)
	assert.Equal(t, "user-42", id)
	assert.Equal(t, ir.IRString("user-42"), UserID(s.GetState()))

	require.NoError(t, s.Dispatch(ctx, SignOut()).Err())
	assert.Equal(t,
		ir.IRObject{"isSignedIn": ir.IRBool(false), "userId": ir.Null},
		s.GetState()[Slice],
	)
	status, _ = StatusOf(s.GetState())
	assert.Equal(t, StatusSignedOut, status)
	assert.True(t, ir.IsNull(UserID(s.GetState())))
}

func TestAuth_UnknownToSignedOut(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Dispatch(context.Background(), SignOut()).Err())
	status, _ := StatusOf(s.GetState())
	assert.Equal(t, StatusSignedOut, status)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "signedOut", StatusSignedOut.String())
	assert.Equal(t, "signedIn", StatusSignedIn.String())
}

func TestStatusOf_MissingSlice(t *testing.T) {
	status, _ := StatusOf(ir.IRObject{})
	assert.Equal(t, StatusUnknown, status)
}

func TestTrackSignIn_MirrorsProvider(t *testing.T) {
	s := newStore(t)
	p := NewMemoryProvider("user-7")

	var seen []Status
	s.Subscribe(func() {
		status, _ := StatusOf(s.GetState())
		seen = append(seen, status)
	})

	ctx, cancel := context.WithCancel(context.Background())
	tracking := s.Dispatch(ctx, TrackSignIn(p))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	pump := func(want Status) {
		t.Helper()
		for {
			if status, _ := StatusOf(s.GetState()); status == want {
				return
			}
			tick, tickCancel := context.WithTimeout(waitCtx, 10*time.Millisecond)
			s.Await(tick, tracking)
			tickCancel()
			require.NoError(t, waitCtx.Err(), "timed out waiting for %s", want)
		}
	}

	pump(StatusSignedOut)

	require.NoError(t, p.SignIn(context.Background()))
	pump(StatusSignedIn)
	_, id := StatusOf(s.GetState())
	assert.Equal(t, "user-7", id)

	require.NoError(t, p.SignOut(context.Background()))
	pump(StatusSignedOut)

	cancel()
	require.NoError(t, s.Await(waitCtx, tracking), "tracking ends cleanly on cancel")
	assert.Equal(t, []Status{StatusSignedOut, StatusSignedIn, StatusSignedOut}, seen)
}

func TestRequestSignIn(t *testing.T) {
	s := newStore(t)
	p := NewMemoryProvider("user-1")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Await(ctx, s.Dispatch(ctx, RequestSignIn(p))))
	current, err := p.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, Change{UserID: "user-1", SignedIn: true}, current)

	require.NoError(t, s.Await(ctx, s.Dispatch(ctx, RequestSignOut(p))))
	current, err = p.CurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, current.SignedIn)
}

func TestMemoryProvider_NoAccount(t *testing.T) {
	p := NewMemoryProvider("")
	assert.ErrorIs(t, p.SignIn(context.Background()), ErrNoAccount)
}

func TestMemoryProvider_ListenClosesOnCancel(t *testing.T) {
	p := NewMemoryProvider("u")
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := p.Listen(ctx)
	require.NoError(t, err)

	require.NoError(t, p.SignIn(context.Background()))
	assert.Equal(t, Change{UserID: "u", SignedIn: true}, <-ch)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("listen channel not closed")
	}
}

func TestCheckSignIn(t *testing.T) {
	s := newStore(t)
	p := NewMemoryProvider("user-3")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Await(ctx, s.Dispatch(ctx, CheckSignIn(p))))
	status, _ := StatusOf(s.GetState())
	assert.Equal(t, StatusSignedOut, status)

	require.NoError(t, p.SignIn(ctx))
	require.NoError(t, s.Await(ctx, s.Dispatch(ctx, CheckSignIn(p))))
	status, id := StatusOf(s.GetState())
	assert.Equal(t, StatusSignedIn, status)
	assert.Equal(t, "user-3", id)
}

// pumpUntil drains the store on the test goroutine until the auth slice
// reaches want.
func pumpUntil(t *testing.T, s *store.Store, tracking *store.Future, want Status) {
	t.Helper()
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if status, _ := StatusOf(s.GetState()); status == want {
			return
		}
		tick, tickCancel := context.WithTimeout(waitCtx, 10*time.Millisecond)
		s.Await(tick, tracking)
		tickCancel()
		require.NoError(t, waitCtx.Err(), "timed out waiting for %s", want)
	}
}

func TestTrackSignIn_BurstEndsOnLatest(t *testing.T) {
	s := newStore(t)
	p := NewMemoryProvider("user-9")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracking := s.Dispatch(ctx, TrackSignIn(p))
	pumpUntil(t, s, tracking, StatusSignedOut)

	// The owner is not draining while the provider flips, so the tracker
	// falls behind. The last change is a sign-in.
	for i := 0; i < 11; i++ {
		if i%2 == 0 {
			require.NoError(t, p.SignIn(context.Background()))
		} else {
			require.NoError(t, p.SignOut(context.Background()))
		}
	}

	pumpUntil(t, s, tracking, StatusSignedIn)

	settle, settleCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	s.Await(settle, tracking)
	settleCancel()

	status, id := StatusOf(s.GetState())
	assert.Equal(t, StatusSignedIn, status, "no stale change arrives after the latest")
	assert.Equal(t, "user-9", id)
	current, err := p.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.True(t, current.SignedIn)
}

func TestTrackSignIn_OutlivesStepQuota(t *testing.T) {
	s := newStore(t, store.WithMaxSteps(6))
	p := NewMemoryProvider("user-5")

	ctx, cancel := context.WithCancel(context.Background())
	tracking := s.Dispatch(ctx, TrackSignIn(p))
	pumpUntil(t, s, tracking, StatusSignedOut)

	for i := 0; i < 4; i++ {
		require.NoError(t, p.SignIn(context.Background()))
		pumpUntil(t, s, tracking, StatusSignedIn)
		require.NoError(t, p.SignOut(context.Background()))
		pumpUntil(t, s, tracking, StatusSignedOut)
	}
	assert.ErrorIs(t, tracking.Err(), store.ErrPending, "tracking is still alive after more changes than the quota")

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, s.Await(waitCtx, tracking))
}

func TestMemoryProvider_ListenKeepsNewest(t *testing.T) {
	p := NewMemoryProvider("u")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Listen(ctx)
	require.NoError(t, err)

	require.NoError(t, p.SignIn(context.Background()))
	require.NoError(t, p.SignOut(context.Background()))
	require.NoError(t, p.SignIn(context.Background()))

	assert.Equal(t, Change{UserID: "u", SignedIn: true}, <-ch)
	select {
	case c := <-ch:
		t.Fatalf("unexpected buffered change %+v", c)
	default:
	}
}
