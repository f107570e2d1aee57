package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relay/internal/api"
	"github.com/roach88/relay/internal/ir"
)

func newBackendClient(t *testing.T, data BackendData) (*Backend, *api.Client) {
	t.Helper()
	b := NewBackend(data)
	t.Cleanup(b.Close)

	c, err := api.New(b.URL())
	require.NoError(t, err)
	return b, c
}

func TestBackend_PostsAndUsers(t *testing.T) {
	b, c := newBackendClient(t, DefaultBackendData())
	ctx := context.Background()

	posts, err := c.Get(ctx, "/posts")
	require.NoError(t, err)
	assert.Len(t, posts, 4)

	user, err := c.Get(ctx, "/users/2")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("Ervin Howell"), user.(ir.IRObject).Get("name"))

	_, err = c.Get(ctx, "/users/99")
	assert.True(t, api.IsNotFound(err))

	assert.Equal(t, 1, b.Hits("GET", "/posts"))
	assert.Equal(t, 1, b.Hits("GET", "/users/2"))
	assert.Equal(t, 3, b.TotalHits())
}

func TestBackend_StreamCRUD(t *testing.T) {
	b, c := newBackendClient(t, BackendData{})
	ctx := context.Background()

	created, err := c.Post(ctx, "/streams", ir.Obj(ir.O("title", ir.IRString("first"))))
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1), created.(ir.IRObject).Get("id"))

	_, err = c.Post(ctx, "/streams", ir.Obj(ir.O("title", ir.IRString("second"))))
	require.NoError(t, err)

	patched, err := c.Patch(ctx, "/streams/1", ir.Obj(ir.O("description", ir.IRString("d"))))
	require.NoError(t, err)
	rec := patched.(ir.IRObject)
	assert.Equal(t, ir.IRString("first"), rec.Get("title"))
	assert.Equal(t, ir.IRString("d"), rec.Get("description"))

	replaced, err := c.Put(ctx, "/streams/1", ir.Obj(ir.O("title", ir.IRString("only"))))
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.Obj(ir.O("id", ir.IRInt(1)), ir.O("title", ir.IRString("only"))), replaced))

	list, err := c.Get(ctx, "/streams")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ir.IRInt(1), list.(ir.IRArray)[0].(ir.IRObject).Get("id"))

	_, err = c.Delete(ctx, "/streams/1")
	require.NoError(t, err)
	_, ok := b.Stream(1)
	assert.False(t, ok)

	_, err = c.Delete(ctx, "/streams/1")
	assert.True(t, api.IsNotFound(err))
}

func TestBackend_SeededStreamsContinueIDs(t *testing.T) {
	data := BackendData{Streams: ir.Arr(ir.Obj(ir.O("id", ir.IRInt(7))))}
	_, c := newBackendClient(t, data)

	created, err := c.Post(context.Background(), "/streams", ir.IRObject{})
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(8), created.(ir.IRObject).Get("id"))
}

func TestBackend_FailOnce(t *testing.T) {
	b, c := newBackendClient(t, DefaultBackendData())
	ctx := context.Background()

	b.Fail("GET", "/posts", http.StatusServiceUnavailable)

	_, err := c.Get(ctx, "/posts")
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)

	_, err = c.Get(ctx, "/posts")
	assert.NoError(t, err)
}

func TestBackend_DelayHonorsCancellation(t *testing.T) {
	b, c := newBackendClient(t, DefaultBackendData())
	b.SetDelay(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Get(ctx, "/posts")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}
