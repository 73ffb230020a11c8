package harness

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/edgeid/internal/identity"
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
			fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Name, event.Data)
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an event with the given
// name whose data contains the expected data (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Name == assertion.Event && matchData(event.Data, assertion.Data) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %q with data %v", assertion.Event, assertion.Data),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the events appear in the specified order.
// Events don't need to be consecutive; each expected event is matched
// after the previous match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Events {
		found := false
		for pos < len(trace) {
			name := trace[pos].Name
			pos++
			if name == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   fmt.Sprintf("%q not found after previous events", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the event appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Name == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("event %q dispatched %d times", assertion.Event, assertion.Count),
			Actual:   fmt.Sprintf("dispatched %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the namespace contents in both the engine state
// and the persisted record, and optionally the boot latch.
func assertFinalState(result *Result, assertion Assertion) error {
	if assertion.Booted != nil && *assertion.Booted != result.Booted {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("booted=%t", *assertion.Booted),
			Actual:   fmt.Sprintf("booted=%t", result.Booted),
		}
	}
	if assertion.Namespace == "" {
		return nil
	}

	want := assertion.IDs
	if want == nil {
		want = []string{}
	}

	var inState []string
	if result.State != nil {
		inState = itemIDs(result.State.Map().ItemsForNamespace(assertion.Namespace))
	}
	if !slices.Equal(inState, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", assertion.Namespace, want),
			Actual:   fmt.Sprintf("engine state %s = %v", assertion.Namespace, inState),
		}
	}

	persisted := []string{}
	if result.Persisted != nil {
		persisted = itemIDs(identity.PropertiesFromXDM(result.Persisted).Map().ItemsForNamespace(assertion.Namespace))
	}
	if !slices.Equal(persisted, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", assertion.Namespace, want),
			Actual:   fmt.Sprintf("persisted %s = %v", assertion.Namespace, persisted),
		}
	}
	return nil
}

func itemIDs(items []identity.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

// matchData checks if actual contains all expected keys (subset match).
// Nested objects are matched as subsets too; other values must be equal.
func matchData(actual, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares a dispatched value with a YAML-decoded expectation.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		return ok && matchData(act, exp)
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	case int:
		switch act := actual.(type) {
		case int:
			return act == exp
		case int64:
			return act == int64(exp)
		}
		return false
	}

	return reflect.DeepEqual(actual, expected)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
