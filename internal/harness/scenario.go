package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines an identity scenario: an initial device state, a
// sequence of events, and assertions on what the engine dispatched,
// published and persisted.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup describes the device before the engine starts.
	Setup Setup `yaml:"setup,omitempty"`

	// Steps are delivered to the engine one at a time; the engine drains
	// after each step.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup is the device state before the engine starts.
type Setup struct {
	// Persisted is written as the stored identity record.
	Persisted map[string]any `yaml:"persisted,omitempty"`

	// LegacyECID is written to the legacy identity datastore.
	LegacyECID string `yaml:"legacy_ecid,omitempty"`

	// Registered lists extensions registered with the hub, with details.
	Registered map[string]map[string]any `yaml:"registered,omitempty"`

	// SharedStates are published before the first step.
	SharedStates map[string]map[string]any `yaml:"shared_states,omitempty"`

	// ECIDs are returned by the ECID generator in order; later ECIDs are
	// zero-padded counters.
	ECIDs []string `yaml:"ecids,omitempty"`

	// AdvertisingNamespace selects GAID (default) or IDFA.
	AdvertisingNamespace string `yaml:"advertising_namespace,omitempty"`

	// Now is the frozen wall clock in Unix seconds (default 1700000000).
	Now int64 `yaml:"now,omitempty"`
}

// Step is one event delivered to the engine.
type Step struct {
	// Event is the step kind (see StepUpdateIdentity and friends).
	Event string `yaml:"event"`

	// Name overrides the dispatched event's name.
	Name string `yaml:"name,omitempty"`

	// Data is the event data.
	Data map[string]any `yaml:"data,omitempty"`

	// Owner names the module for shared_state and register steps.
	Owner string `yaml:"owner,omitempty"`

	// State is the shared state or registration details of Owner.
	State map[string]any `yaml:"state,omitempty"`
}

// Step kinds.
const (
	StepUpdateIdentity  = "update_identity"
	StepRemoveIdentity  = "remove_identity"
	StepRequestIdentity = "request_identity"
	StepReset           = "reset"
	StepAdID            = "ad_id"
	StepSharedState     = "shared_state"
	StepRegister        = "register"
)

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event named Event was dispatched with Data
	// - "trace_order": Events were dispatched in order
	// - "trace_count": Event was dispatched exactly Count times
	// - "final_state": Namespace holds exactly IDs
	Type string `yaml:"type"`

	// Event is the dispatched event name (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Data is matched as a subset of the event data (trace_contains).
	Data map[string]any `yaml:"data,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Namespace and IDs describe the expected identity map entry
	// (final_state). An empty IDs list means the namespace is absent.
	Namespace string   `yaml:"namespace,omitempty"`
	IDs       []string `yaml:"ids,omitempty"`

	// Booted optionally checks the engine's boot latch (final_state).
	Booted *bool `yaml:"booted,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
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
	// Strict decoding catches typos like "assertion:" vs "assertions:".
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

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	switch s.Setup.AdvertisingNamespace {
	case "", "GAID", "IDFA":
	default:
		return fmt.Errorf("setup: advertising_namespace must be GAID or IDFA, got %q", s.Setup.AdvertisingNamespace)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Event {
	case StepUpdateIdentity, StepRemoveIdentity, StepAdID:
		if st.Data == nil {
			return fmt.Errorf("steps[%d]: data is required for %s", index, st.Event)
		}
	case StepRequestIdentity, StepReset:
	case StepSharedState, StepRegister:
		if st.Owner == "" {
			return fmt.Errorf("steps[%d]: owner is required for %s", index, st.Event)
		}
	case "":
		return fmt.Errorf("steps[%d]: event is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown event %q", index, st.Event)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Namespace == "" && a.Booted == nil {
			return fmt.Errorf("assertions[%d]: namespace or booted is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
