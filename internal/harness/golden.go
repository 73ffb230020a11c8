package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/edgeid/internal/xdm"
)

// Snapshot is the golden form of a scenario execution.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Published    []map[string]any
	Persisted    map[string]any
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical
// JSON serialization.
func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		m := map[string]any{
			"seq":    event.Seq,
			"id":     event.ID,
			"name":   event.Name,
			"type":   event.Type,
			"source": event.Source,
		}
		if event.ResponseID != "" {
			m["response_id"] = event.ResponseID
		}
		if event.Data != nil {
			m["data"] = event.Data
		}
		trace[i] = m
	}

	published := make([]any, len(s.Published))
	for i, p := range s.Published {
		published[i] = p
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"published":     published,
	}
	if s.Persisted != nil {
		out["persisted"] = s.Persisted
	}
	return out
}

// MarshalSnapshot returns the canonical JSON of a scenario result.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Published:    result.Published,
		Persisted:    result.Persisted,
	}
	return xdm.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
