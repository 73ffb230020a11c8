package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

const (
	ecid1 = "11111111111111111111111111111111111111"
	ecid2 = "22222222222222222222222222222222222222"
)

// execute runs cmd with args and stdin, returning stdout.
func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	if args == nil {
		// nil makes cobra fall back to os.Args.
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData decodes a JSON CLIResponse and returns its data object.
func decodeData(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

// namespaceIDs returns the ids of ns in an XDM snapshot.
func namespaceIDs(t *testing.T, snapshot any) map[string][]string {
	t.Helper()
	root, ok := snapshot.(map[string]any)
	require.True(t, ok, "snapshot is not an object")
	im, ok := root["identityMap"].(map[string]any)
	require.True(t, ok, "snapshot has no identityMap")

	out := make(map[string][]string)
	for ns, list := range im {
		for _, raw := range list.([]any) {
			out[ns] = append(out[ns], raw.(map[string]any)["id"].(string))
		}
	}
	return out
}
