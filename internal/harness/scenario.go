package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relay/internal/apps"
	"github.com/roach88/relay/internal/ir"
)

// Scenario defines a store conformance scenario: a flow of dispatches run
// against a fresh store and fixture backend, then assertions over the
// resulting trace and state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Apps selects the app slices in the tree. Empty means every app.
	Apps []string `yaml:"apps,omitempty"`

	// FlowToken pins every root dispatch to one flow token. When empty,
	// flows are numbered "<FlowPrefix>-1", "<FlowPrefix>-2", ...
	FlowToken string `yaml:"flow_token,omitempty"`

	// FlowPrefix names numbered flows (default "flow").
	FlowPrefix string `yaml:"flow_prefix,omitempty"`

	// MaxSteps overrides the per-flow dispatch quota.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Account is the user the in-memory auth provider signs in.
	Account string `yaml:"account,omitempty"`

	// Backend seeds the fixture HTTP server. Nil means the default data.
	Backend *BackendSeed `yaml:"backend,omitempty"`

	// Flow contains the steps, run in order on the owner goroutine.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// BackendSeed is the fixture data served to thunks.
type BackendSeed struct {
	Posts   []any `yaml:"posts,omitempty"`
	Users   []any `yaml:"users,omitempty"`
	Streams []any `yaml:"streams,omitempty"`
}

// FlowStep is exactly one of a plain dispatch, a thunk dispatch, or an
// injected backend failure.
type FlowStep struct {
	// Dispatch is the action type of a plain action.
	Dispatch string `yaml:"dispatch,omitempty"`

	// Payload is the plain action payload.
	Payload any `yaml:"payload,omitempty"`

	// Thunk names a registered thunk (see Thunks).
	Thunk string `yaml:"thunk,omitempty"`

	// Args are the thunk arguments.
	Args []any `yaml:"args,omitempty"`

	// Fail arms a one-shot backend failure.
	Fail *FailSpec `yaml:"fail,omitempty"`

	// ExpectError, when set, must be a substring of the step's error.
	// When empty the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// FailSpec makes the next matching backend request fail.
type FailSpec struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	Status int    `yaml:"status"`
}

// Step kinds.
const (
	StepDispatch = "dispatch"
	StepThunk    = "thunk"
	StepFail     = "fail"
)

// Kind returns the step kind, or "" when it is ambiguous or empty.
func (s FlowStep) Kind() string {
	kinds := 0
	kind := ""
	if s.Dispatch != "" {
		kinds++
		kind = StepDispatch
	}
	if s.Thunk != "" {
		kinds++
		kind = StepThunk
	}
	if s.Fail != nil {
		kinds++
		kind = StepFail
	}
	if kinds != 1 {
		return ""
	}
	return kind
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Path is a dotted state path (state_equals, state_length).
	Path string `yaml:"path,omitempty"`

	// Value is the expected value at Path; omitted means null.
	Value any `yaml:"value,omitempty"`

	// Action is an action type (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Payload is matched as a subset (trace_contains).
	Payload any `yaml:"payload,omitempty"`

	// Actions is the expected relative order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number (trace_count, state_length,
	// notifications, requests).
	Count int `yaml:"count,omitempty"`

	// Method and Request select a backend route (requests).
	Method  string `yaml:"method,omitempty"`
	Request string `yaml:"request,omitempty"`
}

// Assertion type constants.
const (
	AssertStateEquals   = "state_equals"
	AssertStateLength   = "state_length"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertNotifications = "notifications"
	AssertRequests      = "requests"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}
	if _, err := apps.Reducers(s.Apps...); err != nil {
		return fmt.Errorf("apps: %w", err)
	}

	if s.Backend != nil {
		for name, list := range map[string][]any{"posts": s.Backend.Posts, "users": s.Backend.Users, "streams": s.Backend.Streams} {
			if _, err := toIRArray(list); err != nil {
				return fmt.Errorf("backend.%s: %w", name, err)
			}
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step FlowStep) error {
	switch step.Kind() {
	case StepDispatch:
		if _, err := ir.FromGo(step.Payload); err != nil {
			return fmt.Errorf("flow[%d]: payload: %w", i, err)
		}
		if step.Args != nil {
			return fmt.Errorf("flow[%d]: args are only valid for thunk steps", i)
		}
	case StepThunk:
		if _, ok := thunkRegistry[step.Thunk]; !ok {
			return fmt.Errorf("flow[%d]: unknown thunk %q (known: %v)", i, step.Thunk, ThunkNames())
		}
		if step.Payload != nil {
			return fmt.Errorf("flow[%d]: payload is only valid for dispatch steps", i)
		}
		if _, err := toIRArray(step.Args); err != nil {
			return fmt.Errorf("flow[%d]: args: %w", i, err)
		}
	case StepFail:
		if step.Fail.Method == "" || step.Fail.Path == "" {
			return fmt.Errorf("flow[%d]: fail requires method and path", i)
		}
		if step.Fail.Status < 400 || step.Fail.Status > 599 {
			return fmt.Errorf("flow[%d]: fail status must be 4xx or 5xx, got %d", i, step.Fail.Status)
		}
		if step.ExpectError != "" {
			return fmt.Errorf("flow[%d]: expect_error is not valid for fail steps", i)
		}
	default:
		return fmt.Errorf("flow[%d]: exactly one of dispatch, thunk or fail is required", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertStateEquals:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for state_equals", index)
		}
		if _, err := ir.FromGo(a.Value); err != nil {
			return fmt.Errorf("assertions[%d]: value: %w", index, err)
		}
	case AssertStateLength:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for state_length", index)
		}
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
		if _, err := ir.FromGo(a.Payload); err != nil {
			return fmt.Errorf("assertions[%d]: payload: %w", index, err)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
	case AssertNotifications:
	case AssertRequests:
		if a.Method == "" || a.Request == "" {
			return fmt.Errorf("assertions[%d]: method and request are required for requests", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func toIRArray(list []any) (ir.IRArray, error) {
	out := make(ir.IRArray, len(list))
	for i, v := range list {
		val, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = val
	}
	return out, nil
}
