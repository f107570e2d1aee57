package store

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Future.Err while the future is unresolved.
var ErrPending = errors.New("dispatch still pending")

// Future is the completion signal of a dispatch.
//
// A plain action's future is resolved before Dispatch returns. A thunk's
// future resolves when the thunk function returns, carrying its error.
type Future struct {
	flow string
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture(flow string) *Future {
	return &Future{flow: flow, done: make(chan struct{})}
}

func resolvedFuture(flow string, err error) *Future {
	f := newFuture(flow)
	f.resolve(err)
	return f
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the dispatch has completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the outcome without blocking, or ErrPending.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return ErrPending
	}
}

// Wait blocks until the future resolves or ctx is done.
//
// Do not call Wait on the owner goroutine for a thunk future: the thunk
// needs the owner to apply its dispatches. Use Store.Await there.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flow returns the flow token the dispatch ran under.
func (f *Future) Flow() string {
	return f.flow
}

// follow resolves f with the outcome of src.
func (f *Future) follow(src *Future) {
	select {
	case <-src.done:
		f.resolve(src.err)
	default:
		go func() {
			<-src.done
			f.resolve(src.err)
		}()
	}
}
