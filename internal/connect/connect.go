// Package connect binds views to a store.
//
// A Connection derives props from the state tree with a selector, hands
// them to a view together with bound action creators, and re-renders the
// view only when the derived props change.
//
// Thread-safety: a Connection is safe for concurrent use. The view is
// always called without internal locks held, so it may call SetOwnProps,
// Actions.Call or Disconnect.
package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// ErrDisconnected is returned by Actions.Call after Disconnect.
var ErrDisconnected = errors.New("connection is disconnected")

// Selector derives view props from the state tree and the view's own
// props. It must be pure; return ir.Null for data that is not loaded yet.
type Selector func(state ir.IRObject, own ir.IRValue) ir.IRValue

// ActionCreator builds the action or thunk for a bound action.
type ActionCreator func(args ...ir.IRValue) store.Dispatchable

// View receives derived props and the bound actions.
type View func(props ir.IRValue, actions *Actions)

// Option configures a Connection.
type Option func(*Connection)

// WithOwnProps sets the initial own props passed to the selector.
func WithOwnProps(own ir.IRValue) Option {
	return func(c *Connection) {
		c.own = own
	}
}

// WithLogger sets the connection logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// Connection is a live binding between a store and a view.
type Connection struct {
	store    *store.Store
	selector Selector
	view     View
	actions  *Actions
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	own         ir.IRValue
	lastState   ir.IRObject
	lastProps   ir.IRValue
	derived     bool
	renders     int
	selects     int
	unsubscribe func()
	closed      bool
}

// Connect subscribes view to s and renders it once with the current props.
// actions may be nil when the view dispatches nothing.
func Connect(s *store.Store, selector Selector, actions map[string]ActionCreator, view View, opts ...Option) (*Connection, error) {
	if s == nil {
		return nil, errors.New("connect: nil store")
	}
	if selector == nil {
		return nil, errors.New("connect: nil selector")
	}
	if view == nil {
		return nil, errors.New("connect: nil view")
	}
	for name, creator := range actions {
		if creator == nil {
			return nil, fmt.Errorf("connect: nil action creator %q", name)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		store:    s,
		selector: selector,
		view:     view,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		own:      ir.Null,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.actions = &Actions{conn: c, creators: maps.Clone(actions)}

	c.unsubscribe = s.Subscribe(c.update)
	c.rerender(false)
	return c, nil
}

// Props returns the last props handed to the view.
func (c *Connection) Props() ir.IRValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProps
}

// Renders returns how many times the view has been called.
func (c *Connection) Renders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renders
}

// Selects returns how many times the selector has run.
func (c *Connection) Selects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selects
}

// Actions returns the bound actions handle.
func (c *Connection) Actions() *Actions {
	return c.actions
}

// SetOwnProps replaces the own props and re-derives immediately.
func (c *Connection) SetOwnProps(own ir.IRValue) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.own = own
	c.mu.Unlock()
	c.rerender(true)
}

// Disconnect unsubscribes the view and cancels every dispatch issued
// through its bound actions. It is idempotent.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	unsubscribe()
	c.cancel()
	c.logger.Debug("view disconnected", "renders", c.Renders())
}

func (c *Connection) update() {
	c.rerender(false)
}

// rerender derives props and calls the view when they changed. The
// selector is skipped when neither the tree nor the own props changed.
func (c *Connection) rerender(ownChanged bool) {
	state := c.store.GetState()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.derived && !ownChanged && ir.Same(state, c.lastState) {
		c.mu.Unlock()
		return
	}
	props := c.selector(state, c.own)
	if props == nil {
		props = ir.Null
	}
	c.selects++
	c.lastState = state
	if c.derived && ir.Equal(props, c.lastProps) {
		c.mu.Unlock()
		return
	}
	c.derived = true
	c.lastProps = props
	c.renders++
	c.mu.Unlock()

	c.view(props, c.actions)
}

// Actions are the action creators bound to a connection.
type Actions struct {
	conn     *Connection
	creators map[string]ActionCreator
}

// Names returns the bound action names in sorted order.
func (a *Actions) Names() []string {
	return slices.Sorted(maps.Keys(a.creators))
}

// Call builds the named action and sends it to the store under the
// connection's context. Thunks sent this way are cancelled on Disconnect.
func (a *Actions) Call(name string, args ...ir.IRValue) (*store.Future, error) {
	creator, ok := a.creators[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q (bound: %v)", name, a.Names())
	}

	a.conn.mu.Lock()
	closed := a.conn.closed
	a.conn.mu.Unlock()
	if closed {
		return nil, ErrDisconnected
	}

	d := creator(args...)
	if d == nil {
		return nil, fmt.Errorf("action creator %q returned nil", name)
	}
	return a.conn.store.Send(a.conn.ctx, d), nil
}
