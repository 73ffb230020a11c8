package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgeid/internal/identity"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Name: "Get Identities"},
		{Seq: 2, Name: "Consent", Data: map[string]any{
			"consents": map[string]any{"adID": map[string]any{"idType": "GAID", "val": "y"}},
		}},
		{Seq: 3, Name: "Response", Data: map[string]any{"count": int64(2), "list": []any{"a", "b"}}},
		{Seq: 4, Name: "Consent"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Event: "Get Identities"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{
		Event: "Consent",
		Data:  map[string]any{"consents": map[string]any{"adID": map[string]any{"val": "y"}}},
	}))
	assert.NoError(t, assertTraceContains(trace, Assertion{
		Event: "Response",
		Data:  map[string]any{"count": 2, "list": []any{"a", "b"}},
	}))

	err := assertTraceContains(trace, Assertion{
		Event: "Consent",
		Data:  map[string]any{"consents": map[string]any{"adID": map[string]any{"val": "n"}}},
	})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)

	assert.Error(t, assertTraceContains(trace, Assertion{
		Event: "Response",
		Data:  map[string]any{"list": []any{"a"}},
	}), "lists must match in length")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Events: []string{"Get Identities", "Response"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Events: []string{"Consent", "Response", "Consent"}}))
	assert.Error(t, assertTraceOrder(trace, Assertion{Events: []string{"Response", "Get Identities"}}))
	assert.Error(t, assertTraceOrder(trace, Assertion{Events: []string{"Missing"}}))
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "Consent", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "Missing", Count: 0}))

	err := assertTraceCount(trace, Assertion{Event: "Consent", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatched 2 times")
}

func TestAssertFinalState(t *testing.T) {
	props := identity.NewProperties()
	props.SetECID(identity.ParseECID("primary"))
	m := identity.NewMap()
	m.AddItem("Email", identity.NewItem("a@example.com", identity.StateAuthenticated, false))
	props.UpdateCustomerIdentifiers(m)

	result := NewResult()
	result.State = props
	result.Persisted = props.ToXDM(true)
	result.Booted = true

	booted := true
	assert.NoError(t, assertFinalState(result, Assertion{Namespace: "Email", IDs: []string{"a@example.com"}, Booted: &booted}))
	assert.NoError(t, assertFinalState(result, Assertion{Namespace: "GAID"}), "nil ids means absent")
	assert.Error(t, assertFinalState(result, Assertion{Namespace: "Email", IDs: []string{"b@example.com"}}))

	notBooted := false
	assert.Error(t, assertFinalState(result, Assertion{Booted: &notBooted}))

	// Engine state and datastore disagree.
	result.Persisted = identity.NewProperties().ToXDM(true)
	err := assertFinalState(result, Assertion{Namespace: "Email", IDs: []string{"a@example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persisted")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Event: "Consent", Count: 2},
		{Type: AssertTraceContains, Event: "Missing"},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}
