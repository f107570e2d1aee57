package testutil

import (
	"fmt"
	"sync"
)

// FixedFlowGenerator generates the same flow token every time.
//
// Every root dispatch then shares one flow, which is what a scenario that
// pins flow_token expects.
//
// Thread-safety: FixedFlowGenerator is stateless and safe for concurrent use.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a new fixed flow token generator.
//
// If token is empty, Generate() returns "test-flow-default".
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow-default"
	}
	return &FixedFlowGenerator{token: token}
}

// Generate returns the fixed flow token.
//
// Implements store.FlowGenerator.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}

// SequenceFlowGenerator numbers flows "<prefix>-1", "<prefix>-2", ...
//
// Unlike store.FixedGenerator it never runs out, so scenarios can dispatch
// any number of root flows and still produce byte-identical traces.
//
// Thread-safety: SequenceFlowGenerator is safe for concurrent use.
type SequenceFlowGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceFlowGenerator creates a generator; an empty prefix means "flow".
func NewSequenceFlowGenerator(prefix string) *SequenceFlowGenerator {
	if prefix == "" {
		prefix = "flow"
	}
	return &SequenceFlowGenerator{prefix: prefix}
}

// Generate returns the next numbered token.
func (g *SequenceFlowGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
