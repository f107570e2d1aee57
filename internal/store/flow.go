package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// FlowGenerator produces flow tokens. A flow groups a root dispatch with
// every action and thunk it causes, directly or transitively.
type FlowGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 flow tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens sort by
// creation time in the journal and in trace output.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined flow tokens for testing.
//
// Deterministic tokens make golden trace comparison possible.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
// Example:
//
//	gen := NewFixedGenerator("flow-1", "flow-2")
//	gen.Generate() // "flow-1"
//	gen.Generate() // "flow-2"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics if all tokens have been consumed, which catches a test that
// dispatched more root flows than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

type flowKey struct{}

// WithFlow returns a context carrying the given flow token. A dispatch made
// with this context joins the flow instead of starting a new one.
func WithFlow(ctx context.Context, flow string) context.Context {
	return context.WithValue(ctx, flowKey{}, flow)
}

// NewFlow returns a context whose next dispatch starts a new flow with its
// own step quota, even when ctx already carries a flow token. Long-lived
// thunks use it for each independent event they mirror.
func NewFlow(ctx context.Context) context.Context {
	return context.WithValue(ctx, flowKey{}, "")
}

// FlowFromContext returns the flow token carried by ctx, if any.
func FlowFromContext(ctx context.Context) (string, bool) {
	flow, ok := ctx.Value(flowKey{}).(string)
	return flow, ok && flow != ""
}
