package auth

import (
	"context"
	"errors"
	"sync"
)

// Change is a sign-in state transition reported by a Provider.
type Change struct {
	UserID   string
	SignedIn bool
}

// Provider is the third-party auth surface the store depends on.
type Provider interface {
	// CurrentUser reports who is signed in right now.
	CurrentUser(ctx context.Context) (Change, error)

	// Listen delivers later changes until ctx is done, then closes the
	// channel. A reader that falls behind may miss intermediate changes,
	// but the last value it receives is the current one.
	Listen(ctx context.Context) (<-chan Change, error)

	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// ErrNoAccount is returned by MemoryProvider.SignIn without an account.
var ErrNoAccount = errors.New("auth: no account configured")

// MemoryProvider is an in-process Provider for demos and tests.
// Thread-safety: MemoryProvider is safe for concurrent use.
type MemoryProvider struct {
	mu        sync.Mutex
	account   string
	current   Change
	listeners map[chan Change]struct{}
}

// NewMemoryProvider creates a signed-out provider that signs in as account.
func NewMemoryProvider(account string) *MemoryProvider {
	return &MemoryProvider{
		account:   account,
		listeners: make(map[chan Change]struct{}),
	}
}

// CurrentUser implements Provider.
func (p *MemoryProvider) CurrentUser(ctx context.Context) (Change, error) {
	if err := ctx.Err(); err != nil {
		return Change{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

// Listen implements Provider.
func (p *MemoryProvider) Listen(ctx context.Context) (<-chan Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// One slot holding the newest change; set replaces an unread value.
	ch := make(chan Change, 1)
	p.mu.Lock()
	p.listeners[ch] = struct{}{}
	p.mu.Unlock()

	context.AfterFunc(ctx, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, ch)
		close(ch)
	})
	return ch, nil
}

// SignIn implements Provider.
func (p *MemoryProvider) SignIn(ctx context.Context) error {
	if p.account == "" {
		return ErrNoAccount
	}
	return p.set(ctx, Change{UserID: p.account, SignedIn: true})
}

// SignOut implements Provider.
func (p *MemoryProvider) SignOut(ctx context.Context) error {
	return p.set(ctx, Change{})
}

func (p *MemoryProvider) set(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == c {
		return nil
	}
	p.current = c
	// A slow listener skips intermediate changes but always sees the last.
	for ch := range p.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- c
	}
	return nil
}
