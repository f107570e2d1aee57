package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/relay/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Type, render(event.Payload))
		}
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStateEquals:
			err = assertStateEquals(result.State, assertion)
		case AssertStateLength:
			err = assertStateLength(result.State, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertNotifications:
			err = assertNotifications(result, assertion)
		case AssertRequests:
			err = assertRequests(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertStateEquals checks the value at a dotted path in the final state.
func assertStateEquals(state ir.IRObject, assertion Assertion) error {
	want, err := ir.FromGo(assertion.Value)
	if err != nil {
		return fmt.Errorf("state_equals %s: %w", assertion.Path, err)
	}

	got, _ := ir.Lookup(state, assertion.Path)
	if !ir.Equal(want, got) {
		return &AssertionError{
			Type:     AssertStateEquals,
			Expected: fmt.Sprintf("%s = %s", assertion.Path, render(want)),
			Actual:   fmt.Sprintf("%s = %s", assertion.Path, render(got)),
		}
	}
	return nil
}

// assertStateLength checks the element count of an array or object.
func assertStateLength(state ir.IRObject, assertion Assertion) error {
	got, found := ir.Lookup(state, assertion.Path)

	n := -1
	switch v := got.(type) {
	case ir.IRArray:
		n = len(v)
	case ir.IRObject:
		n = len(v)
	}

	if n != assertion.Count {
		actual := fmt.Sprintf("%d entries", n)
		switch {
		case !found:
			actual = "path not found"
		case n < 0:
			actual = fmt.Sprintf("%s is not a collection", render(got))
		}
		return &AssertionError{
			Type:     AssertStateLength,
			Expected: fmt.Sprintf("%d entries at %s", assertion.Count, assertion.Path),
			Actual:   actual,
		}
	}
	return nil
}

// assertTraceContains checks if the trace contains a commit of the action
// whose payload matches (subset semantics).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	want, err := ir.FromGo(assertion.Payload)
	if err != nil {
		return fmt.Errorf("trace_contains %s: %w", assertion.Action, err)
	}

	for _, event := range trace {
		if event.Type == assertion.Action && (assertion.Payload == nil || matchSubset(event.Payload, want)) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with payload %s", assertion.Action, render(want)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected action
	positions := make(map[string]int)

	for i, event := range trace {
		for _, expectedAction := range assertion.Actions {
			if event.Type == expectedAction && positions[expectedAction] == 0 {
				positions[expectedAction] = i + 1 // 1-indexed for readability
			}
		}
	}

	// Step 2: Verify all actions found
	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the action was committed exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertNotifications(result *Result, assertion Assertion) error {
	if result.Notifications != assertion.Count {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("%d subscriber notifications", assertion.Count),
			Actual:   fmt.Sprintf("%d notifications", result.Notifications),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertRequests(result *Result, assertion Assertion) error {
	key := strings.ToUpper(assertion.Method) + " " + assertion.Request
	if got := result.Requests[key]; got != assertion.Count {
		return &AssertionError{
			Type:     AssertRequests,
			Expected: fmt.Sprintf("%d requests to %s", assertion.Count, key),
			Actual:   fmt.Sprintf("%d requests", got),
		}
	}
	return nil
}

// matchSubset reports whether actual contains expected. Objects match when
// every expected key matches recursively; extra keys in actual are
// ignored. Everything else compares structurally.
func matchSubset(actual, expected ir.IRValue) bool {
	want, ok := expected.(ir.IRObject)
	if !ok {
		return ir.Equal(actual, expected)
	}
	got, ok := actual.(ir.IRObject)
	if !ok {
		return false
	}
	for key, wantVal := range want {
		gotVal, exists := got[key]
		if !exists || !matchSubset(gotVal, wantVal) {
			return false
		}
	}
	return true
}

func render(v ir.IRValue) string {
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
