package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/edgeid/internal/engine"
	"github.com/roach88/edgeid/internal/hub"
	"github.com/roach88/edgeid/internal/identity"
	"github.com/roach88/edgeid/internal/store"
	"github.com/roach88/edgeid/internal/testutil"
	"github.com/roach88/edgeid/internal/xdm"
)

// DefaultNow is the frozen wall clock used when a scenario sets none.
const DefaultNow = 1700000000

// Harness is the scenario execution environment.
type Harness struct {
	kv      *store.SQLiteStore
	hub     *hub.Hub
	state   *identity.State
	engine  *engine.Engine
	storage *identity.Storage
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and write the stored setup
// 2. Wire hub, state and engine with deterministic helpers
// 3. Register extensions and publish setup shared states
// 4. Deliver each step, draining the engine after each
// 5. Collect trace, snapshots and the persisted record
// 6. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	kv, err := store.OpenSQLite(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer kv.Close()

	ctx := context.Background()
	h, err := newHarness(ctx, kv, scenario.Setup)
	if err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Event, err)
		}
	}

	result, err := h.collect(ctx)
	if err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func newHarness(ctx context.Context, kv *store.SQLiteStore, setup Setup) (*Harness, error) {
	storage := identity.NewStorage(kv)

	if setup.Persisted != nil {
		record, err := xdm.MarshalCanonical(setup.Persisted)
		if err != nil {
			return nil, fmt.Errorf("encode persisted record: %w", err)
		}
		if err := kv.Set(ctx, identity.DatastoreName, identity.PropertiesKey, string(record)); err != nil {
			return nil, fmt.Errorf("write persisted record: %w", err)
		}
	}
	if setup.LegacyECID != "" {
		if err := kv.Set(ctx, identity.LegacyDatastore, identity.LegacyECIDKey, setup.LegacyECID); err != nil {
			return nil, fmt.Errorf("write legacy ECID: %w", err)
		}
	}

	now := setup.Now
	if now == 0 {
		now = DefaultNow
	}
	clock := testutil.NewDeterministicClock(time.Unix(now, 0), 0)

	hb := hub.New(hub.WithIDGenerator(testutil.NewSequentialIDGenerator("hub")))
	state := identity.NewState(storage,
		identity.WithGenerator(testutil.NewFixedECIDGenerator(setup.ECIDs...)),
		identity.WithAdvertisingNamespace(setup.AdvertisingNamespace),
	)
	eng := engine.New(hb.HostFor(engine.ExtensionName), state,
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("ev")),
		engine.WithNow(clock.Now),
	)
	hb.Subscribe(eng)

	h := &Harness{
		kv:      kv,
		hub:     hb,
		state:   state,
		engine:  eng,
		storage: storage,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, name := range sortedKeys(setup.Registered) {
		hb.RegisterExtension(name, setup.Registered[name])
	}
	for _, owner := range sortedKeys(setup.SharedStates) {
		hb.SetSharedState(owner, setup.SharedStates[owner])
	}
	hb.RegisterExtension(engine.ExtensionName, map[string]any{"version": "test"})

	if _, err := eng.Drain(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// executeStep delivers one step through the hub and drains the engine.
func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch step.Event {
	case StepSharedState:
		h.hub.SetSharedState(step.Owner, step.State)
	case StepRegister:
		h.hub.RegisterExtension(step.Owner, step.State)
	default:
		ev, err := stepEvent(step)
		if err != nil {
			return err
		}
		if err := h.hub.Dispatch(ev); err != nil {
			return err
		}
	}

	n, err := h.engine.Drain(ctx)
	if err != nil {
		return err
	}
	h.logger.Info("step delivered", "event", step.Event, "handled", n, "pending", h.engine.Pending())
	return nil
}

func stepEvent(step Step) (engine.Event, error) {
	var name, typ, source string
	switch step.Event {
	case StepUpdateIdentity:
		name, typ, source = "Update Identities", engine.TypeEdgeIdentity, engine.SourceUpdateIdentity
	case StepRemoveIdentity:
		name, typ, source = "Remove Identities", engine.TypeEdgeIdentity, engine.SourceRemoveIdentity
	case StepRequestIdentity:
		name, typ, source = "Get Identities", engine.TypeEdgeIdentity, engine.SourceRequestIdentity
	case StepReset:
		name, typ, source = "Reset Identities", engine.TypeGenericIdentity, engine.SourceRequestReset
	case StepAdID:
		name, typ, source = "Set Advertising Identifier", engine.TypeGenericIdentity, engine.SourceRequestContent
	default:
		return engine.Event{}, fmt.Errorf("unknown event %q", step.Event)
	}
	if step.Name != "" {
		name = step.Name
	}
	return engine.NewEvent(name, typ, source, step.Data), nil
}

// collect gathers the trace, published snapshots and persisted record.
func (h *Harness) collect(ctx context.Context) (*Result, error) {
	result := NewResult()

	for i, ev := range h.hub.Dispatched() {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:        int64(i + 1),
			ID:         ev.ID,
			Name:       ev.Name,
			Type:       ev.Type,
			Source:     ev.Source,
			ResponseID: ev.ResponseID,
			Data:       ev.Data,
		})
	}

	for _, v := range h.hub.XDMSharedStateHistory(engine.ExtensionName) {
		result.Published = append(result.Published, v.Data)
	}

	persisted, err := h.storage.LoadProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted record: %w", err)
	}
	if persisted != nil {
		result.Persisted = persisted.ToXDM(true)
	}

	result.Booted = h.state.Booted()
	result.State = h.state.Properties()
	return result, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
