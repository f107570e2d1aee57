package harness

import (
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// TraceEvent is one committed action as seen by the harness commit hook.
type TraceEvent struct {
	Seq     int64      `json:"seq"`
	Flow    string     `json:"flow"`
	Type    string     `json:"type"`
	Payload ir.IRValue `json:"payload"`
	Changed bool       `json:"changed"`
}

func traceEventOf(c store.Commit) TraceEvent {
	return TraceEvent{
		Seq:     c.Seq,
		Flow:    c.Flow,
		Type:    c.Action.Type,
		Payload: c.Action.PayloadOrNull(),
		Changed: c.Changed,
	}
}

// StepResult is the outcome of one flow step.
type StepResult struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Flow  string `json:"flow,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists every commit in seq order.
	Trace []TraceEvent `json:"trace"`

	// Steps records what each flow step returned.
	Steps []StepResult `json:"steps"`

	// Errors holds step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state tree.
	State ir.IRObject `json:"state"`

	// StateHash is the content hash of State.
	StateHash string `json:"state_hash"`

	// Notifications counts subscriber notifications.
	Notifications int `json:"notifications"`

	// Requests counts backend requests by "METHOD /path".
	Requests map[string]int `json:"requests,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Steps:    []StepResult{},
		Errors:   []string{},
		State:    ir.IRObject{},
		Requests: make(map[string]int),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a commit to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
