package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/edgeid/internal/identity"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions

	// ECIDGenerator overrides ECID generation (for testing).
	ECIDGenerator identity.Generator
}

// ResetOutput reports the regenerated identity.
type ResetOutput struct {
	Previous string `json:"previous,omitempty"`
	ECID     string `json:"ecid"`
}

// String renders the output for text format.
func (o ResetOutput) String() string {
	if o.Previous == "" {
		return fmt.Sprintf("ecid: %s", o.ECID)
	}
	return fmt.Sprintf("ecid: %s (was %s)", o.ECID, o.Previous)
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return newResetCommand(&ResetOptions{RootOptions: rootOpts})
}

func newResetCommand(opts *ResetOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every identifier and generate a new ECID",
		Long: `Reset the identities persisted in the configured datastore: every
customer identifier, the advertising ID and the secondary ECID are dropped
and a new primary ECID is generated and stored.

Example:
  edgeid reset --db ./edgeid.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	cfg, st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	storage := identity.NewStorage(st)

	previous, err := storage.LoadProperties(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read datastore", err)
	}

	stateOpts := cfg.StateOptions()
	if opts.ECIDGenerator != nil {
		stateOpts = append(stateOpts, identity.WithGenerator(opts.ECIDGenerator))
	}
	state := identity.NewState(storage, stateOpts...)
	state.ResetIdentifiers(ctx)

	// ResetIdentifiers logs storage failures; confirm the write landed.
	stored, err := storage.LoadProperties(ctx)
	if err != nil || stored == nil || !stored.ECID().Equal(state.Properties().ECID()) {
		return WrapExitError(ExitCommandError, "failed to persist reset identities", err)
	}

	out := ResetOutput{ECID: stored.ECID().String()}
	if previous != nil {
		out.Previous = previous.ECID().String()
	}
	return newFormatter(opts.RootOptions, cmd).Success(out)
}
