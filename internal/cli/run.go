package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/edgeid/internal/engine"
	"github.com/roach88/edgeid/internal/hub"
	"github.com/roach88/edgeid/internal/identity"
	"github.com/roach88/edgeid/internal/xdm"
)

// Input line kinds.
const (
	inputEvent       = "event"
	inputSharedState = "shared_state"
	inputRegister    = "register"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// IDGenerator overrides event IDs (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator

	// ECIDGenerator overrides ECID generation (for testing).
	ECIDGenerator identity.Generator

	// MetricsAddr overrides the configured metrics listen address.
	MetricsAddr string
}

// RunOutput is the result of a run.
type RunOutput struct {
	Snapshot   map[string]any `json:"snapshot"`
	Digest     string         `json:"digest"`
	Handled    int            `json:"handled"`
	Pending    int            `json:"pending"`
	Dispatched []engine.Event `json:"dispatched"`
}

// String renders the output for text format.
func (o RunOutput) String() string {
	var b strings.Builder
	snapshot, _ := xdm.MarshalCanonical(o.Snapshot)
	fmt.Fprintf(&b, "snapshot: %s\n", snapshot)
	fmt.Fprintf(&b, "digest:   %s\n", o.Digest)
	fmt.Fprintf(&b, "handled:  %d input line(s), %d held\n", o.Handled, o.Pending)
	for _, ev := range o.Dispatched {
		fmt.Fprintf(&b, "  %s  %s (%s)\n", ev.ID, ev.Name, ev.Source)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [events-file]",
		Short: "Feed identity events through the engine",
		Long: `Start the identity engine on the configured datastore and feed it
newline-delimited JSON from a file or stdin ("-" or no argument).

Each line is one of:
  {"kind":"event","name":"...","type":"...","source":"...","data":{...}}
  {"kind":"shared_state","owner":"...","state":{...}}
  {"kind":"register","owner":"...","state":{...}}

"kind" defaults to "event". When input ends the engine finishes the
queued events and the final snapshot is printed. With metrics_addr (or
--metrics-addr) set, Prometheus metrics are served on /metrics while the
engine runs.

Example:
  edgeid run --db ./edgeid.db events.ndjson
  cat events.ndjson | edgeid run --backend memory --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			return runEngine(opts, input, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runEngine(opts *RunOptions, input string, cmd *cobra.Command) error {
	cfg, st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}

	in, err := openInput(input, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open input", err)
	}
	defer in.Close()

	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = engine.UUIDv7Generator{}
	}
	stateOpts := cfg.StateOptions()
	if opts.ECIDGenerator != nil {
		stateOpts = append(stateOpts, identity.WithGenerator(opts.ECIDGenerator))
	}

	hb := hub.New(hub.WithIDGenerator(idGen))
	state := identity.NewState(identity.NewStorage(st), stateOpts...)
	eng := engine.New(hb.HostFor(engine.ExtensionName), state, engine.WithIDGenerator(idGen))
	hb.Subscribe(eng)

	if cfg.OrgID != "" {
		hb.SetSharedState(engine.ConfigurationStateOwner, map[string]any{engine.ConfigurationOrgID: cfg.OrgID})
	}
	hb.RegisterExtension(engine.ExtensionName, map[string]any{"version": Version})

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// done ends the metrics server once the engine has returned.
	done, finish := context.WithCancel(ctx)
	defer finish()

	g, gctx := errgroup.WithContext(ctx)
	handled := 0

	g.Go(func() error {
		defer finish()
		slog.Info("engine starting", "backend", cfg.Datastore.Backend, "path", cfg.Datastore.Path)
		if err := eng.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("engine: %w", err)
		}
		slog.Info("engine stopped", "pending", eng.Pending())
		return nil
	})

	g.Go(func() error {
		defer eng.Stop()
		// A blocked stdin read must not keep the command alive once the
		// engine has stopped.
		res := make(chan feedResult, 1)
		go func() {
			n, err := feed(gctx, in, hb)
			res <- feedResult{n: n, err: err}
		}()
		select {
		case r := <-res:
			handled = r.n
			return r.err
		case <-done.Done():
			return nil
		}
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(done, cfg.MetricsAddr)
		})
	}

	if err := g.Wait(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return WrapExitError(ExitFailure, "run failed", err)
	}

	snapshot := state.Snapshot()
	digest, err := xdm.Digest(xdm.DomainSnapshot, snapshot)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to digest snapshot", err)
	}

	return newFormatter(opts.RootOptions, cmd).Success(RunOutput{
		Snapshot:   snapshot,
		Digest:     digest,
		Handled:    handled,
		Pending:    eng.Pending(),
		Dispatched: hb.Dispatched(),
	})
}

type feedResult struct {
	n   int
	err error
}

func openInput(input string, cmd *cobra.Command) (io.ReadCloser, error) {
	if input == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(input)
}

// feed reads input lines and delivers them through the hub. It returns
// the number of lines delivered.
func feed(ctx context.Context, r io.Reader, hb *hub.Hub) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return n, nil
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := deliver(hb, []byte(text)); err != nil {
			return n, WrapExitError(ExitCommandError, fmt.Sprintf("input line %d", line), err)
		}
		n++
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return n, fmt.Errorf("read input: %w", err)
	}
	return n, nil
}

// deliver decodes one input line and hands it to the hub.
func deliver(hb *hub.Hub, raw []byte) error {
	msg, err := xdm.Decode(raw)
	if err != nil {
		return err
	}

	kind, _ := xdm.String(msg, "kind")
	if kind == "" {
		kind = inputEvent
	}

	switch kind {
	case inputEvent:
		typ, _ := xdm.String(msg, "type")
		source, _ := xdm.String(msg, "source")
		name, _ := xdm.String(msg, "name")
		data, _ := xdm.Object(msg, "data")
		id, _ := xdm.String(msg, "id")
		if typ == "" || source == "" {
			return fmt.Errorf("event requires type and source")
		}
		ev := engine.NewEvent(name, typ, source, data)
		ev.ID = id
		return hb.Dispatch(ev)
	case inputSharedState, inputRegister:
		owner, _ := xdm.String(msg, "owner")
		if owner == "" {
			return fmt.Errorf("%s requires owner", kind)
		}
		state, _ := xdm.Object(msg, "state")
		if kind == inputRegister {
			hb.RegisterExtension(owner, state)
		} else {
			hb.SetSharedState(owner, state)
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
}

// serveMetrics serves Prometheus metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
