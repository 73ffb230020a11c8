package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	content := `
name: test_scenario
description: "Test scenario for validation"
setup:
  ecids: ["1"]
  registered:
    com.adobe.module.identity: { version: "2.0.0" }
steps:
  - event: update_identity
    data:
      identityMap:
        Email:
          - id: user@example.com
  - event: shared_state
    owner: com.adobe.module.identity
    state: { mid: "9" }
assertions:
  - type: final_state
    namespace: Email
    ids: [user@example.com]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, []string{"1"}, scenario.Setup.ECIDs)
	assert.Equal(t, map[string]any{"version": "2.0.0"}, scenario.Setup.Registered["com.adobe.module.identity"])
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, StepUpdateIdentity, scenario.Steps[0].Event)
	assert.Equal(t, "com.adobe.module.identity", scenario.Steps[1].Owner)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, []string{"user@example.com"}, scenario.Assertions[0].IDs)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	base := "name: n\ndescription: d\n"
	steps := "steps:\n  - event: reset\n"
	asserts := "assertions:\n  - type: trace_count\n    event: x\n    count: 0\n"

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown field", base + steps + asserts + "assertion: []\n", "failed to parse YAML"},
		{"missing name", "description: d\n" + steps + asserts, "name is required"},
		{"missing description", "name: n\n" + steps + asserts, "description is required"},
		{"no steps", base + asserts, "steps list is required"},
		{"no assertions", base + steps, "assertions list is required"},
		{"unknown step", base + "steps:\n  - event: launch\n" + asserts, `unknown event "launch"`},
		{"update without data", base + "steps:\n  - event: update_identity\n" + asserts, "data is required"},
		{"shared state without owner", base + "steps:\n  - event: shared_state\n" + asserts, "owner is required"},
		{"unknown assertion", base + steps + "assertions:\n  - type: eventually\n", `unknown assertion type "eventually"`},
		{"trace_order without events", base + steps + "assertions:\n  - type: trace_order\n", "events list is required"},
		{"final_state without target", base + steps + "assertions:\n  - type: final_state\n", "namespace or booted is required"},
		{"bad ad namespace", base + "setup:\n  advertising_namespace: AAID\n" + steps + asserts, "advertising_namespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
