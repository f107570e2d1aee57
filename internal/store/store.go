package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/relay/internal/ir"
)

// DefaultMaxSteps is the default maximum number of dispatches per flow.
const DefaultMaxSteps = 1000

// Commit describes one reduced action, delivered to commit hooks after the
// state pointer has been swapped.
type Commit struct {
	Seq     int64
	Flow    string
	Action  Action
	State   ir.IRObject
	Changed bool
}

// CommitHook observes commits on the owner goroutine. A returned error is
// logged; state is not rolled back.
type CommitHook func(ctx context.Context, c Commit) error

// Store holds a single immutable state tree.
//
// Thread-safety model:
//   - Dispatch, Run, Await: owner goroutine only
//   - GetState, Send, Subscribe, Close: safe from any goroutine
//   - Thunks run on their own goroutines; their dispatch posts to the owner
//
// INVARIANTS:
//   - the tree is replaced, never mutated in place
//   - reducers never observe a dispatch issued while they run
//   - subscribers are notified only when the tree changed
type Store struct {
	root    RootReducer
	state   atomic.Pointer[ir.IRObject]
	queue   *taskQueue
	clock   *Clock
	flowGen FlowGenerator
	logger  *slog.Logger

	middleware []Middleware
	hooks      []CommitHook
	chain      Dispatch
	preloaded  ir.IRObject

	// reducing is owner-only.
	reducing bool

	maxSteps int
	flowMu   sync.Mutex
	flows    map[string]*flowState

	listenersMu sync.Mutex
	listeners   []*listener

	ctx    context.Context
	cancel context.CancelFunc
	lifeMu sync.Mutex
	closed bool
	thunks sync.WaitGroup
}

type flowState struct {
	quota   *QuotaEnforcer
	pending int
}

type listener struct {
	fn func()
}

// Option configures a Store.
type Option func(*Store)

// WithMiddleware appends middleware to the dispatch chain.
func WithMiddleware(mws ...Middleware) Option {
	return func(s *Store) {
		s.middleware = append(s.middleware, mws...)
	}
}

// WithFlowGenerator sets the flow token generator (default UUIDv7).
func WithFlowGenerator(gen FlowGenerator) Option {
	return func(s *Store) {
		s.flowGen = gen
	}
}

// WithMaxSteps sets the maximum number of dispatches per flow.
//
// Default: 1000 steps (DefaultMaxSteps)
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) Option {
	return func(s *Store) {
		s.maxSteps = maxSteps
	}
}

// WithLogger sets the store logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithCommitHook registers a hook that observes every commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) {
		s.hooks = append(s.hooks, hook)
	}
}

// WithClock sets the logical clock. Used to continue seq numbering after
// a journal's last entry.
func WithClock(clock *Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithPreloadedState seeds the tree before the init reduction. Slices
// missing from the preloaded tree take their reducer defaults.
func WithPreloadedState(state ir.IRObject) Option {
	return func(s *Store) {
		s.preloaded = state
	}
}

// New creates a Store and computes its initial state by reducing the init
// action over the preloaded tree (or nothing).
func New(root RootReducer, opts ...Option) (*Store, error) {
	if root == nil {
		return nil, fmt.Errorf("new store: root reducer is required")
	}

	s := &Store{
		root:     root,
		queue:    newTaskQueue(),
		clock:    NewClock(),
		flowGen:  UUIDv7Generator{},
		logger:   slog.Default(),
		maxSteps: DefaultMaxSteps,
		flows:    make(map[string]*flowState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	initial, err := root.Reduce(s.preloaded, Action{Type: ActionInit})
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("initial reduction: %w", err)
	}
	if initial == nil {
		initial = ir.IRObject{}
	}
	s.state.Store(&initial)

	api := MiddlewareAPI{
		Dispatch: s.Dispatch,
		GetState: s.GetState,
		Spawn:    s.spawn,
	}
	s.chain = compose(api, s.reduce, s.middleware)

	return s, nil
}

// GetState returns the current immutable snapshot. O(1), no copy.
func (s *Store) GetState() ir.IRObject {
	return *s.state.Load()
}

// Dispatch sends a value through the middleware chain.
// Owner goroutine only.
//
// A dispatch without a flow token in ctx starts a new flow. A plain
// action's future is resolved when Dispatch returns, with state updated
// and subscribers notified. A thunk's future resolves when the thunk
// returns.
func (s *Store) Dispatch(ctx context.Context, d Dispatchable) *Future {
	flow, ok := FlowFromContext(ctx)
	if !ok {
		flow = s.flowGen.Generate()
		ctx = WithFlow(ctx, flow)
	}

	if s.isClosed() {
		return resolvedFuture(flow, NewClosedError(flow))
	}
	if s.reducing {
		return resolvedFuture(flow, NewReentrantError(flow, typeOf(d)))
	}
	if d == nil {
		return resolvedFuture(flow, &RuntimeError{
			Code:      ErrCodeInvalidAction,
			Message:   "nil dispatchable",
			FlowToken: flow,
		})
	}
	if err := ctx.Err(); err != nil {
		return resolvedFuture(flow, err)
	}

	if err := s.acquireFlow(flow); err != nil {
		s.logger.Error("max steps quota exceeded",
			"flow", flow,
			"type", typeOf(d),
			"limit", s.maxSteps,
			"event", "quota_exceeded",
		)
		return resolvedFuture(flow, err)
	}

	f := s.chain(ctx, d)
	s.onDone(f, func() { s.releaseFlow(flow) })
	return f
}

// Send posts a dispatch to the owner goroutine.
// Thread-safe: may be called from any goroutine.
func (s *Store) Send(ctx context.Context, d Dispatchable) *Future {
	flow, ok := FlowFromContext(ctx)
	if !ok {
		flow = s.flowGen.Generate()
		ctx = WithFlow(ctx, flow)
	}

	out := newFuture(flow)
	if !s.queue.Enqueue(func() { out.follow(s.Dispatch(ctx, d)) }) {
		out.resolve(NewClosedError(flow))
	}
	return out
}

// Run drains posted work on the calling goroutine, which becomes the
// owner. Blocks until ctx is cancelled or the store is closed.
func (s *Store) Run(ctx context.Context) error {
	s.logger.Info("store loop starting")

	for {
		if t, ok := s.queue.TryDequeue(); ok {
			t()
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("store loop stopping: context cancelled")
			return ctx.Err()

		case <-s.queue.Wait():
			// The signal channel closes with the queue.
			if s.queue.Closed() && s.queue.Len() == 0 {
				s.logger.Info("store loop stopping: store closed")
				return nil
			}
		}
	}
}

// Await drains posted work on the owner goroutine until f completes.
// Returns the future's outcome, or ctx.Err().
func (s *Store) Await(ctx context.Context, f *Future) error {
	for {
		select {
		case <-f.Done():
			return f.Err()
		default:
		}

		if t, ok := s.queue.TryDequeue(); ok {
			t()
			continue
		}

		wake := s.queue.Wait()
		if s.queue.Closed() {
			wake = nil
		}
		select {
		case <-f.Done():
			return f.Err()
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Subscribe registers fn to be called after every state change.
// The returned function removes the subscription; it is idempotent.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	l := &listener{fn: fn}

	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()

			// Copy so an in-progress notification round keeps its snapshot.
			kept := make([]*listener, 0, len(s.listeners))
			for _, other := range s.listeners {
				if other != l {
					kept = append(kept, other)
				}
			}
			s.listeners = kept
		})
	}
}

// Close cancels in-flight thunks and rejects further dispatches.
// Blocks until every thunk goroutine has returned.
func (s *Store) Close() error {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return nil
	}
	s.closed = true
	s.lifeMu.Unlock()

	s.cancel()
	s.queue.Close()
	s.thunks.Wait()

	// Every posted dispatch still resolves, with the closed error.
	for _, t := range s.queue.Drain() {
		t()
	}

	s.logger.Debug("store closed", "seq", s.clock.Current())
	return nil
}

// Seq returns the seq of the last commit.
func (s *Store) Seq() int64 {
	return s.clock.Current()
}

// ActiveFlows returns the number of flows with pending dispatches.
func (s *Store) ActiveFlows() int {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	return len(s.flows)
}

// MaxSteps returns the per-flow dispatch limit.
func (s *Store) MaxSteps() int {
	return s.maxSteps
}

// reduce is the innermost stage of the chain: it applies a plain action.
// CRITICAL: Called only on the owner goroutine.
func (s *Store) reduce(ctx context.Context, d Dispatchable) *Future {
	flow, _ := FlowFromContext(ctx)

	action, ok := d.(Action)
	if !ok {
		return resolvedFuture(flow, &RuntimeError{
			Code:      ErrCodeUnhandledDispatchable,
			Message:   "thunk reached the reducers; install ThunkMiddleware",
			FlowToken: flow,
		})
	}
	if action.Type == "" {
		return resolvedFuture(flow, &RuntimeError{
			Code:      ErrCodeInvalidAction,
			Message:   "action type must not be empty",
			FlowToken: flow,
		})
	}
	if s.reducing {
		return resolvedFuture(flow, NewReentrantError(flow, action.Type))
	}

	prev := s.GetState()
	next, err := s.runReducer(prev, action)
	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) && re.FlowToken == "" {
			re.FlowToken = flow
		}
		s.logger.Error("reduction failed",
			"type", action.Type,
			"flow", flow,
			"error", err,
		)
		return resolvedFuture(flow, err)
	}

	changed := !ir.Same(prev, next)
	if changed {
		s.state.Store(&next)
	}
	seq := s.clock.Next()

	s.logger.Debug("action committed",
		"type", action.Type,
		"flow", flow,
		"seq", seq,
		"changed", changed,
	)

	commit := Commit{Seq: seq, Flow: flow, Action: action, State: next, Changed: changed}
	for _, hook := range s.hooks {
		if err := hook(ctx, commit); err != nil {
			s.logger.Error("commit hook failed",
				"type", action.Type,
				"flow", flow,
				"seq", seq,
				"error", err,
			)
		}
	}

	if changed {
		s.notify()
	}
	return resolvedFuture(flow, nil)
}

func (s *Store) runReducer(prev ir.IRObject, action Action) (ir.IRObject, error) {
	s.reducing = true
	defer func() { s.reducing = false }()
	return s.root.Reduce(prev, action)
}

func (s *Store) notify() {
	s.listenersMu.Lock()
	snapshot := s.listeners
	s.listenersMu.Unlock()

	for _, l := range snapshot {
		l.fn()
	}
}

// spawn runs a thunk on its own goroutine.
// CRITICAL: Called only on the owner goroutine (via the chain).
func (s *Store) spawn(ctx context.Context, thunk Thunk) *Future {
	flow, _ := FlowFromContext(ctx)
	if thunk == nil {
		return resolvedFuture(flow, &RuntimeError{
			Code:      ErrCodeInvalidAction,
			Message:   "nil thunk",
			FlowToken: flow,
		})
	}

	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return resolvedFuture(flow, NewClosedError(flow))
	}
	s.thunks.Add(1)
	s.lifeMu.Unlock()

	tctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	f := newFuture(flow)
	go func() {
		defer s.thunks.Done()
		defer cancel()
		defer stop()

		f.resolve(s.invoke(tctx, flow, thunk))
	}()
	return f
}

func (s *Store) invoke(ctx context.Context, flow string, thunk Thunk) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("thunk panicked", "flow", flow, "panic", r)
			err = &RuntimeError{
				Code:      ErrCodeThunkPanic,
				Message:   fmt.Sprintf("thunk panicked: %v", r),
				FlowToken: flow,
			}
		}
	}()
	return thunk(ctx, s.bound, s.GetState)
}

// bound is the dispatch handed to thunks. It posts the dispatch to the
// owner and returns once it has been applied. If ctx ends or the store
// closes first, the returned future is resolved with that error.
func (s *Store) bound(ctx context.Context, d Dispatchable) *Future {
	flow, _ := FlowFromContext(ctx)
	out := newFuture(flow)
	applied := make(chan struct{})

	ok := s.queue.Enqueue(func() {
		defer close(applied)
		// A cancelled thunk's trailing dispatch is dropped.
		if err := ctx.Err(); err != nil {
			out.resolve(err)
			return
		}
		out.follow(s.Dispatch(ctx, d))
	})
	if !ok {
		out.resolve(NewClosedError(flow))
		return out
	}

	select {
	case <-applied:
	case <-ctx.Done():
		out.resolve(ctx.Err())
	case <-s.ctx.Done():
		out.resolve(NewClosedError(flow))
	}
	return out
}

func (s *Store) isClosed() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.closed
}

func (s *Store) acquireFlow(flow string) error {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	fs, ok := s.flows[flow]
	if !ok {
		fs = &flowState{quota: NewQuotaEnforcer(s.maxSteps)}
		s.flows[flow] = fs
	}
	if err := fs.quota.Check(flow); err != nil {
		if fs.pending == 0 {
			delete(s.flows, flow)
		}
		return err
	}
	fs.pending++
	return nil
}

func (s *Store) releaseFlow(flow string) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	fs, ok := s.flows[flow]
	if !ok {
		return
	}
	fs.pending--
	if fs.pending <= 0 {
		delete(s.flows, flow)
	}
}

// onDone runs fn once f has resolved, synchronously when it already has.
func (s *Store) onDone(f *Future, fn func()) {
	select {
	case <-f.Done():
		fn()
	default:
		go func() {
			<-f.Done()
			fn()
		}()
	}
}

func typeOf(d Dispatchable) string {
	switch v := d.(type) {
	case Action:
		return v.Type
	case Thunk:
		return "thunk"
	default:
		return ""
	}
}
