package hub

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgeid/internal/engine"
	"github.com/roach88/edgeid/internal/identity"
	"github.com/roach88/edgeid/internal/store"
	"github.com/roach88/edgeid/internal/testutil"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// recorder is a Listener that keeps what it receives.
type recorder struct {
	events  []engine.Event
	stopped bool
}

func (r *recorder) Enqueue(ev engine.Event) bool {
	if r.stopped {
		return false
	}
	r.events = append(r.events, ev)
	return true
}

func TestSetSharedStateAnnouncesOwner(t *testing.T) {
	h := New(WithIDGenerator(testutil.NewSequentialIDGenerator("hub")))
	rec := &recorder{}
	h.Subscribe(rec)

	h.SetSharedState("com.example.module", map[string]any{"k": "v"})

	st, ok := h.SharedState("com.example.module")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": "v"}, st)

	require.Len(t, rec.events, 1)
	owner, ok := rec.events[0].StateOwner()
	require.True(t, ok)
	assert.Equal(t, "com.example.module", owner)
	assert.Equal(t, "hub-1", rec.events[0].ID)
}

func TestSharedStateLastWriteWins(t *testing.T) {
	h := New()
	h.SetSharedState("owner", map[string]any{"v": "1"})
	h.SetSharedState("owner", map[string]any{"v": "2"})

	st, _ := h.SharedState("owner")
	assert.Equal(t, "2", st["v"])

	h.SetSharedState("owner", nil)
	_, ok := h.SharedState("owner")
	assert.False(t, ok)
}

func TestSharedStateReturnsCopies(t *testing.T) {
	h := New()
	data := map[string]any{"nested": map[string]any{"k": "v"}}
	h.SetSharedState("owner", data)
	data["nested"].(map[string]any)["k"] = "changed"

	st, _ := h.SharedState("owner")
	st["nested"].(map[string]any)["k"] = "mutated"

	again, _ := h.SharedState("owner")
	assert.Equal(t, "v", again["nested"].(map[string]any)["k"])
}

func TestRegisterExtension(t *testing.T) {
	h := New()
	h.RegisterExtension(identity.LegacyStateOwner, map[string]any{"version": "2.0.0"})
	h.RegisterExtension(engine.ExtensionName, nil)

	st, ok := h.SharedState(identity.HubStateOwner)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		identity.HubExtensions: map[string]any{
			identity.LegacyStateOwner: map[string]any{"version": "2.0.0"},
			engine.ExtensionName:      map[string]any{},
		},
	}, st)
}

func TestDispatchRecordsAndFansOut(t *testing.T) {
	h := New(WithIDGenerator(testutil.NewSequentialIDGenerator("hub")))
	a, b := &recorder{}, &recorder{stopped: true}
	h.Subscribe(a)
	h.Subscribe(b)

	ev := engine.NewEvent("Test", engine.TypeEdgeIdentity, engine.SourceRequestIdentity, nil)
	require.NoError(t, h.Dispatch(ev))

	require.Len(t, a.events, 1)
	assert.Equal(t, "hub-1", a.events[0].ID)
	assert.Empty(t, b.events)

	dispatched := h.Dispatched()
	require.Len(t, dispatched, 1)
	assert.Equal(t, "Test", dispatched[0].Name)
}

func TestDispatchRequiresTypeAndSource(t *testing.T) {
	h := New()
	err := h.Dispatch(engine.Event{Name: "broken"})
	require.Error(t, err)
	assert.Empty(t, h.Dispatched())
}

func TestHostForRecordsXDMStates(t *testing.T) {
	h := New()
	host := h.HostFor(engine.ExtensionName)

	require.NoError(t, host.CreateXDMSharedState(map[string]any{"v": int64(1)}, engine.Event{ID: "a"}))
	require.NoError(t, host.CreateXDMSharedState(map[string]any{"v": int64(2)}, engine.Event{ID: "b"}))

	latest, ok := h.XDMSharedState(engine.ExtensionName)
	require.True(t, ok)
	assert.Equal(t, int64(2), latest["v"])

	history := h.XDMSharedStateHistory(engine.ExtensionName)
	require.Len(t, history, 2)
	assert.Equal(t, "a", history[0].EventID)
	assert.Equal(t, "b", history[1].EventID)

	_, ok = h.XDMSharedState("nobody")
	assert.False(t, ok)
}

// The legacy module registers, the engine holds events until the legacy
// module publishes its ECID, then migrates it.
func TestHubDrivesEngineMigration(t *testing.T) {
	kv, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer kv.Close()

	h := New(WithIDGenerator(testutil.NewSequentialIDGenerator("hub")))
	state := identity.NewState(identity.NewStorage(kv),
		identity.WithGenerator(testutil.NewFixedECIDGenerator("generated")))
	eng := engine.New(h.HostFor(engine.ExtensionName), state,
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("ev")))
	h.Subscribe(eng)

	h.RegisterExtension(identity.LegacyStateOwner, map[string]any{"version": "2.0.0"})
	h.RegisterExtension(engine.ExtensionName, map[string]any{"version": "1.0.0"})

	ctx := context.Background()
	_, err = eng.Drain(ctx)
	require.NoError(t, err)
	assert.False(t, state.Booted())

	h.SetSharedState(identity.LegacyStateOwner, map[string]any{identity.LegacyStateECID: "legacy-ecid"})
	_, err = eng.Drain(ctx)
	require.NoError(t, err)

	require.True(t, state.Booted())
	snapshot, ok := h.XDMSharedState(engine.ExtensionName)
	require.True(t, ok)
	assert.Equal(t, "legacy-ecid", identity.PropertiesFromXDM(snapshot).ECID().String())
}
