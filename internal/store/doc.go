// Package store implements relay's unidirectional state container.
//
// A Store holds a single immutable state tree (an ir.IRObject partitioned
// into named slices). The only way to change it is to dispatch an Action
// through the middleware chain to the root reducer.
//
// ARCHITECTURE:
//
// Owner Goroutine:
// A Store is owned by one goroutine, the equivalent of a UI thread. All
// reductions, commit hooks and subscriber notifications run there, so
// reasoning about ordering stays single-threaded:
//   - Dispatch(), Run(), Await(): owner goroutine only
//   - GetState(): any goroutine (atomic snapshot, O(1), no copy)
//   - Send(): any goroutine (posts to the owner's FIFO task queue)
//   - Subscribe(), Close(): any goroutine
//
// Thunks:
// A Thunk is deferred behavior. The thunk middleware starts it on its own
// goroutine and returns a pending Future immediately. Every dispatch the
// thunk issues is posted back to the owner and applied in issue order; the
// thunk blocks until its dispatch is applied, so nested dispatches are
// synchronous from the thunk's point of view. Between suspension points
// nothing interleaves with a reduction.
//
// Dispatch Flow:
//  1. Dispatch() assigns a flow token to root dispatches
//  2. The middleware chain sees the Dispatchable (ThunkMiddleware intercepts thunks)
//  3. A plain Action reaches the base dispatcher
//  4. The root reducer computes the next tree (re-entrant dispatch rejected)
//  5. The state pointer is swapped, commit hooks run, subscribers notified
//  6. Dispatch() returns a resolved Future
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every reduced action is stamped with a monotonic seq from Clock.Next().
// NEVER use wall-clock timestamps for ordering.
//
// Cancellation:
// Each thunk runs under a context derived from its dispatch context and the
// store lifetime. A posted dispatch whose context is already cancelled is
// dropped rather than applied, so a torn-down consumer's in-flight thunk
// cannot commit a trailing action.
package store
