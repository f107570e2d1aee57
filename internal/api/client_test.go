package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relay/internal/ir"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
	ctype  string
}

func newServer(t *testing.T, status int, response string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   string(body),
			ctype:  r.Header.Get("Content-Type"),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	return c, &calls
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)

	_, err = New("://nope")
	require.Error(t, err)
}

func TestClient_Get(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `[{"id":1,"title":"a"},{"id":2,"title":"b"}]`)

	got, err := c.Get(context.Background(), "/streams")
	require.NoError(t, err)

	want := ir.Arr(
		ir.Obj(ir.O("id", ir.IRInt(1)), ir.O("title", ir.IRString("a"))),
		ir.Obj(ir.O("id", ir.IRInt(2)), ir.O("title", ir.IRString("b"))),
	)
	assert.True(t, ir.Equal(want, got))

	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodGet, (*calls)[0].method)
	assert.Equal(t, "/streams", (*calls)[0].path)
	assert.Empty(t, (*calls)[0].body)
}

func TestClient_PostSendsJSON(t *testing.T) {
	c, calls := newServer(t, http.StatusCreated, `{"id":3,"title":"new","userId":"u1"}`)

	body := ir.Obj(ir.O("title", ir.IRString("new")), ir.O("userId", ir.IRString("u1")))
	got, err := c.Post(context.Background(), "streams", body)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(3), got.(ir.IRObject)["id"])

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/streams", call.path)
	assert.Equal(t, "application/json", call.ctype)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(call.body), &sent))
	assert.Equal(t, map[string]any{"title": "new", "userId": "u1"}, sent)
}

func TestClient_PatchPutDelete(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `{}`)
	ctx := context.Background()

	_, err := c.Patch(ctx, "/streams/1", ir.Obj(ir.O("title", ir.IRString("x"))))
	require.NoError(t, err)
	_, err = c.Put(ctx, "/streams/1", ir.Obj())
	require.NoError(t, err)
	_, err = c.Delete(ctx, "/streams/1")
	require.NoError(t, err)

	require.Len(t, *calls, 3)
	assert.Equal(t, http.MethodPatch, (*calls)[0].method)
	assert.Equal(t, http.MethodPut, (*calls)[1].method)
	assert.Equal(t, http.MethodDelete, (*calls)[2].method)
	assert.Equal(t, "/streams/1", (*calls)[2].path)
}

func TestClient_EmptyBodyIsNull(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, "")

	got, err := c.Delete(context.Background(), "/streams/9")
	require.NoError(t, err)
	assert.True(t, ir.IsNull(got))
}

func TestClient_StatusError(t *testing.T) {
	c, _ := newServer(t, http.StatusNotFound, `{"error":"no such stream"}`)

	_, err := c.Get(context.Background(), "/streams/404")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "no such stream")
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestClient_RejectsFloats(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `{"rating":4.5}`)

	_, err := c.Get(context.Background(), "/posts/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestClient_BasePathAndQuery(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		io.WriteString(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL + "/v1/")
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/posts?userId=1")
	require.NoError(t, err)
	assert.Equal(t, "/v1/posts", gotPath)
	assert.Equal(t, "userId=1", gotQuery)
}

func TestClient_HonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, err := New(srv.URL, WithTimeout(5*time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Get(ctx, "/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
