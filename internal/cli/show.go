package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/edgeid/internal/identity"
	"github.com/roach88/edgeid/internal/store"
	"github.com/roach88/edgeid/internal/xdm"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Raw bool // also list the raw datastore entries
}

// ShowOutput is the persisted identity state.
type ShowOutput struct {
	ECID          string         `json:"ecid"`
	ECIDSecondary string         `json:"ecid_secondary,omitempty"`
	Snapshot      map[string]any `json:"snapshot"`
	Digest        string         `json:"digest"`
	Entries       []store.Entry  `json:"entries,omitempty"`
}

// String renders the output for text format.
func (o ShowOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ecid:           %s\n", o.ECID)
	if o.ECIDSecondary != "" {
		fmt.Fprintf(&b, "ecid secondary: %s\n", o.ECIDSecondary)
	}
	snapshot, _ := xdm.MarshalCanonical(o.Snapshot)
	fmt.Fprintf(&b, "snapshot:       %s\n", snapshot)
	fmt.Fprintf(&b, "digest:         %s\n", o.Digest)
	for _, e := range o.Entries {
		fmt.Fprintf(&b, "  [%d] %s/%s = %s\n", e.Seq, e.Datastore, e.Key, e.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the persisted identity map",
		Long: `Print the identity map persisted in the configured datastore, the
snapshot other modules would see, and its digest.

Example:
  edgeid show --db ./edgeid.db
  edgeid show --db ./edgeid.db --raw --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "also list raw datastore entries")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	_, st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	props, err := identity.NewStorage(st).LoadProperties(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read datastore", err)
	}
	if props == nil {
		if err := formatter.Error(ErrCodeEmpty, "no identities stored", nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "no identities stored")
	}

	snapshot := props.ToXDM(false)
	digest, err := xdm.Digest(xdm.DomainSnapshot, snapshot)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to digest snapshot", err)
	}

	out := ShowOutput{
		ECID:          props.ECID().String(),
		ECIDSecondary: props.ECIDSecondary().String(),
		Snapshot:      snapshot,
		Digest:        digest,
	}

	if opts.Raw {
		for _, ds := range []string{identity.DatastoreName, identity.LegacyDatastore} {
			entries, err := st.List(ctx, ds)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list datastore", err)
			}
			out.Entries = append(out.Entries, entries...)
		}
	}

	formatter.VerboseLog("loaded %d namespace(s)", len(props.Map().Namespaces()))
	return formatter.Success(out)
}
