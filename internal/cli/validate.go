package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/edgeid/internal/config"
)

// ValidationResult holds the resolved configuration of a valid file.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Config *config.Config `json:"config,omitempty"`
}

// String renders the result for text format.
func (r ValidationResult) String() string {
	c := r.Config
	var b strings.Builder
	fmt.Fprintln(&b, "✓ config valid")
	fmt.Fprintf(&b, "  datastore:             %s %s\n", c.Datastore.Backend, c.Datastore.Path)
	fmt.Fprintf(&b, "  log_level:             %s\n", c.LogLevel)
	fmt.Fprintf(&b, "  advertising_namespace: %s\n", c.AdvertisingNamespace)
	if c.MetricsAddr != "" {
		fmt.Fprintf(&b, "  metrics_addr:          %s\n", c.MetricsAddr)
	}
	if c.OrgID != "" {
		fmt.Fprintf(&b, "  org_id:                %s\n", c.OrgID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a YAML configuration file against the configuration schema
and print it with defaults filled in.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(path)
	if err != nil {
		if outErr := formatter.Error(ErrCodeConfig, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "config invalid", err)
	}

	formatter.VerboseLog("validated %s", path)
	return formatter.Success(ValidationResult{Valid: true, Config: cfg})
}
