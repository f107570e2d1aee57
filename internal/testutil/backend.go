package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/relay/internal/ir"
)

// BackendData seeds a Backend. Records are objects with an "id" field.
type BackendData struct {
	Posts   ir.IRArray
	Users   ir.IRArray
	Streams ir.IRArray
}

// DefaultBackendData returns a small blog with three authors and no
// streams. Posts reference users 1, 2 and 3; user 1 wrote two of them.
func DefaultBackendData() BackendData {
	post := func(id, userID int64, title string) ir.IRValue {
		return ir.Obj(ir.O("id", ir.IRInt(id)), ir.O("userId", ir.IRInt(userID)), ir.O("title", ir.IRString(title)))
	}
	user := func(id int64, name string) ir.IRValue {
		return ir.Obj(ir.O("id", ir.IRInt(id)), ir.O("name", ir.IRString(name)))
	}
	return BackendData{
		Posts: ir.Arr(
			post(1, 1, "sunt aut facere"),
			post(2, 1, "qui est esse"),
			post(3, 2, "ea molestias quasi"),
			post(4, 3, "eum et est occaecati"),
		),
		Users: ir.Arr(
			user(1, "Leanne Graham"),
			user(2, "Ervin Howell"),
			user(3, "Clementine Bauch"),
		),
		Streams: ir.Arr(),
	}
}

// Backend is an in-memory JSON API serving the blog and streams routes:
//
//	GET    /posts
//	GET    /users/{id}
//	GET    /streams
//	GET    /streams/{id}
//	POST   /streams
//	PUT    /streams/{id}
//	PATCH  /streams/{id}
//	DELETE /streams/{id}
//
// Every request is counted by "METHOD /path" so tests can assert how many
// round trips a thunk made.
//
// Thread-safety: Backend is safe for concurrent use.
type Backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	posts    ir.IRArray
	users    map[string]ir.IRObject
	streams  map[string]ir.IRObject
	nextID   int64
	hits     map[string]int
	failures map[string]int
	delay    time.Duration
}

// NewBackend starts a Backend seeded with data. Call Close when done.
func NewBackend(data BackendData) *Backend {
	b := &Backend{
		posts:    data.Posts,
		users:    indexRecords(data.Users),
		streams:  indexRecords(data.Streams),
		nextID:   1,
		hits:     make(map[string]int),
		failures: make(map[string]int),
	}
	if b.posts == nil {
		b.posts = ir.Arr()
	}
	for _, rec := range b.streams {
		if id, ok := rec.Get("id").(ir.IRInt); ok && int64(id) >= b.nextID {
			b.nextID = int64(id) + 1
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /posts", b.listPosts)
	mux.HandleFunc("GET /users/{id}", b.getUser)
	mux.HandleFunc("GET /streams", b.listStreams)
	mux.HandleFunc("GET /streams/{id}", b.getStream)
	mux.HandleFunc("POST /streams", b.createStream)
	mux.HandleFunc("PUT /streams/{id}", b.replaceStream)
	mux.HandleFunc("PATCH /streams/{id}", b.patchStream)
	mux.HandleFunc("DELETE /streams/{id}", b.deleteStream)

	b.srv = httptest.NewServer(b.intercept(mux))
	return b
}

// URL returns the base URL of the running server.
func (b *Backend) URL() string {
	return b.srv.URL
}

// Close shuts the server down.
func (b *Backend) Close() {
	b.srv.Close()
}

// Hits returns how many requests matched method and path.
func (b *Backend) Hits(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[method+" "+path]
}

// TotalHits returns the number of requests served.
func (b *Backend) TotalHits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.hits {
		total += n
	}
	return total
}

// Requests returns a copy of the request counts keyed by "METHOD /path".
func (b *Backend) Requests() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.hits))
	for k, n := range b.hits {
		out[k] = n
	}
	return out
}

// Fail makes the next request to method and path answer with status.
func (b *Backend) Fail(method, path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = status
}

// SetDelay holds every response for d, or until the request is cancelled.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// Stream returns the stored stream with id.
func (b *Backend) Stream(id int64) (ir.IRObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.streams[strconv.FormatInt(id, 10)]
	return rec, ok
}

func (b *Backend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		b.mu.Lock()
		b.hits[key]++
		status, fail := b.failures[key]
		delete(b.failures, key)
		delay := b.delay
		b.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if fail {
			http.Error(w, fmt.Sprintf("injected failure for %s", key), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) listPosts(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	posts := b.posts
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, posts)
}

func (b *Backend) getUser(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	rec, ok := b.users[r.PathValue("id")]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, ir.IRObject{})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) listStreams(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	ids := make([]int64, 0, len(b.streams))
	for k := range b.streams {
		if n, err := strconv.ParseInt(k, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	slices.Sort(ids)
	out := make(ir.IRArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.streams[strconv.FormatInt(id, 10)])
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getStream(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	rec, ok := b.streams[r.PathValue("id")]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, ir.IRObject{})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) createStream(w http.ResponseWriter, r *http.Request) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	rec := body.With("id", ir.IRInt(id))
	b.streams[strconv.FormatInt(id, 10)] = rec
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, rec)
}

func (b *Backend) replaceStream(w http.ResponseWriter, r *http.Request) {
	b.updateStream(w, r, false)
}

func (b *Backend) patchStream(w http.ResponseWriter, r *http.Request) {
	b.updateStream(w, r, true)
}

func (b *Backend) updateStream(w http.ResponseWriter, r *http.Request, merge bool) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}
	key := r.PathValue("id")
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ir.IRObject{})
		return
	}

	b.mu.Lock()
	cur, exists := b.streams[key]
	if !exists {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, ir.IRObject{})
		return
	}
	rec := body
	if merge {
		rec = cur.Merge(body)
	}
	rec = rec.With("id", ir.IRInt(id))
	b.streams[key] = rec
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) deleteStream(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("id")

	b.mu.Lock()
	_, exists := b.streams[key]
	delete(b.streams, key)
	b.mu.Unlock()

	if !exists {
		writeJSON(w, http.StatusNotFound, ir.IRObject{})
		return
	}
	writeJSON(w, http.StatusOK, ir.IRObject{})
}

func readObject(w http.ResponseWriter, r *http.Request) (ir.IRObject, bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	v, err := ir.UnmarshalIRValue(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		http.Error(w, "body must be a JSON object", http.StatusBadRequest)
		return nil, false
	}
	return obj, true
}

func writeJSON(w http.ResponseWriter, status int, v ir.IRValue) {
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func indexRecords(list ir.IRArray) map[string]ir.IRObject {
	out := make(map[string]ir.IRObject, len(list))
	for _, v := range list {
		rec, ok := v.(ir.IRObject)
		if !ok {
			continue
		}
		if key, ok := ir.KeyOf(rec.Get("id")); ok {
			out[key] = rec
		}
	}
	return out
}
