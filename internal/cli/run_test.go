package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgeid/internal/testutil"
)

func testRunOptions(rootOpts *RootOptions, ecids ...string) *RunOptions {
	return &RunOptions{
		RootOptions:   rootOpts,
		IDGenerator:   testutil.NewSequentialIDGenerator("ev"),
		ECIDGenerator: testutil.NewFixedECIDGenerator(ecids...),
	}
}

const updateEmail = `{"name":"Update Identities","type":"com.adobe.eventType.edgeIdentity","source":"com.adobe.eventSource.updateIdentity","data":{"identityMap":{"Email":[{"id":"user@example.com","authenticatedState":"authenticated"}]}}}`

const requestIdentities = `{"name":"Get Identities","type":"com.adobe.eventType.edgeIdentity","source":"com.adobe.eventSource.requestIdentity"}`

func TestRun_StdinEvents(t *testing.T) {
	opts := testRunOptions(&RootOptions{Format: "json", Backend: "memory"}, ecid1)

	stdin := "# identities\n" + updateEmail + "\n\n" + requestIdentities + "\n"
	out, err := execute(t, newRunCommand(opts), stdin)
	require.NoError(t, err)

	data := decodeData(t, out)
	assert.EqualValues(t, 2, data["handled"])
	assert.EqualValues(t, 0, data["pending"])
	assert.NotEmpty(t, data["digest"])

	ids := namespaceIDs(t, data["snapshot"])
	assert.Equal(t, []string{ecid1}, ids["ECID"])
	assert.Equal(t, []string{"user@example.com"}, ids["Email"])

	names := make([]string, 0)
	for _, raw := range data["dispatched"].([]any) {
		names = append(names, raw.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "Update Identities")
	assert.Contains(t, names, "Edge Identity Response Content One Time")
}

func TestRun_TextOutput(t *testing.T) {
	opts := testRunOptions(&RootOptions{Format: "text", Backend: "memory"}, ecid1)

	out, err := execute(t, newRunCommand(opts), requestIdentities+"\n")
	require.NoError(t, err)
	assert.Contains(t, out, "snapshot: ")
	assert.Contains(t, out, ecid1)
	assert.Contains(t, out, "handled:  1 input line(s), 0 held")
}

func TestRun_FileInputPersists(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "edgeid.db")
	input := filepath.Join(tmpDir, "events.ndjson")
	require.NoError(t, os.WriteFile(input, []byte(updateEmail+"\n"), 0644))

	opts := testRunOptions(&RootOptions{Format: "json", Datastore: dbPath}, ecid1)
	_, err := execute(t, newRunCommand(opts), "", input)
	require.NoError(t, err)

	showOut, err := execute(t, NewShowCommand(&RootOptions{Format: "json", Datastore: dbPath}), "")
	require.NoError(t, err)
	data := decodeData(t, showOut)
	assert.Equal(t, ecid1, data["ecid"])
	assert.Equal(t, []string{"user@example.com"}, namespaceIDs(t, data["snapshot"])["Email"])
}

func TestRun_SharedStateAndRegister(t *testing.T) {
	opts := testRunOptions(&RootOptions{Format: "json", Backend: "memory"}, ecid1)

	stdin := `{"kind":"shared_state","owner":"com.adobe.module.configuration","state":{"experienceCloud.org":"ORG@AdobeOrg"}}
{"kind":"register","owner":"com.example.other","state":{"version":"1.0"}}
{"name":"Get Identities","type":"com.adobe.eventType.edgeIdentity","source":"com.adobe.eventSource.requestIdentity","data":{"urlvariables":true}}
`
	out, err := execute(t, newRunCommand(opts), stdin)
	require.NoError(t, err)

	data := decodeData(t, out)
	assert.EqualValues(t, 3, data["handled"])

	var urlVars string
	for _, raw := range data["dispatched"].([]any) {
		ev := raw.(map[string]any)
		if ev["name"] == "Edge Identity Response URL Variables" {
			urlVars, _ = ev["data"].(map[string]any)["urlvariables"].(string)
		}
	}
	assert.Contains(t, urlVars, "adobe_mc=")
	assert.Contains(t, urlVars, "MCMID%3D"+ecid1)
	assert.Contains(t, urlVars, "MCORGID%3DORG%40AdobeOrg")
}

func TestRun_InputErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"invalid json", "{not json\n", "input line 1"},
		{"missing type", `{"name":"x","source":"s"}` + "\n", "type and source"},
		{"unknown kind", `{"kind":"bogus"}` + "\n", `unknown kind "bogus"`},
		{"shared state without owner", `{"kind":"shared_state","state":{}}` + "\n", "requires owner"},
		{"error line number", "# comment\n" + requestIdentities + "\n{\n", "input line 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testRunOptions(&RootOptions{Format: "text", Backend: "memory"})
			_, err := execute(t, newRunCommand(opts), tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestRun_MissingInputFile(t *testing.T) {
	opts := testRunOptions(&RootOptions{Format: "text", Backend: "memory"})
	_, err := execute(t, newRunCommand(opts), "", filepath.Join(t.TempDir(), "missing.ndjson"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open input")
}

func TestRun_BadConfig(t *testing.T) {
	opts := testRunOptions(&RootOptions{Format: "text", Config: filepath.Join(t.TempDir(), "missing.yaml")})
	_, err := execute(t, newRunCommand(opts), "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_TooManyArgs(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts at most 1 arg")
}
