package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/edgeid/internal/engine"
	"github.com/roach88/edgeid/internal/identity"
	"github.com/roach88/edgeid/internal/xdm"
)

// Listener receives dispatched events. engine.Engine implements it.
type Listener interface {
	Enqueue(ev engine.Event) bool
}

// SharedStateVersion is one published shared state.
type SharedStateVersion struct {
	Owner string
	// EventID is the event the state was published for; empty for states
	// set directly through SetSharedState.
	EventID string
	Data    map[string]any
}

// Hub is an in-process event hub.
//
// Thread-safety: all methods are safe for concurrent use. Listener
// Enqueue calls happen outside the hub lock.
type Hub struct {
	mu         sync.Mutex
	states     map[string]map[string]any
	xdmStates  map[string][]SharedStateVersion
	extensions map[string]map[string]any
	dispatched []engine.Event
	listeners  []Listener
	ids        engine.IDGenerator
}

// Option configures a Hub.
type Option func(*Hub)

// WithIDGenerator sets the generator for IDs of hub-created events.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(h *Hub) { h.ids = g }
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		states:     make(map[string]map[string]any),
		xdmStates:  make(map[string][]SharedStateVersion),
		extensions: make(map[string]map[string]any),
		ids:        engine.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe adds l to the listeners of dispatched events.
func (h *Hub) Subscribe(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// RegisterExtension records name with its details in the hub's
// registered-extensions shared state and announces the change.
func (h *Hub) RegisterExtension(name string, details map[string]any) {
	h.mu.Lock()
	if details == nil {
		details = map[string]any{}
	}
	h.extensions[name] = xdm.Clone(details)

	extensions := make(map[string]any, len(h.extensions))
	for ext, info := range h.extensions {
		extensions[ext] = xdm.Clone(info)
	}
	h.states[identity.HubStateOwner] = map[string]any{identity.HubExtensions: extensions}
	h.mu.Unlock()

	slog.Debug("extension registered", "extension", name)
	h.announce(identity.HubStateOwner)
}

// SetSharedState publishes data as owner's shared state and dispatches a
// hub shared state event naming owner. A nil data clears the state.
func (h *Hub) SetSharedState(owner string, data map[string]any) {
	h.mu.Lock()
	if data == nil {
		delete(h.states, owner)
	} else {
		h.states[owner] = xdm.Clone(data)
	}
	h.mu.Unlock()

	slog.Debug("shared state set", "owner", owner)
	h.announce(owner)
}

// SharedState returns a copy of owner's last shared state.
func (h *Hub) SharedState(owner string) (map[string]any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.states[owner]
	if !ok {
		return nil, false
	}
	return xdm.Clone(st), true
}

// XDMSharedState returns a copy of owner's latest XDM shared state.
func (h *Hub) XDMSharedState(owner string) (map[string]any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	versions := h.xdmStates[owner]
	if len(versions) == 0 {
		return nil, false
	}
	return xdm.Clone(versions[len(versions)-1].Data), true
}

// XDMSharedStateHistory returns every XDM shared state owner published,
// oldest first.
func (h *Hub) XDMSharedStateHistory(owner string) []SharedStateVersion {
	h.mu.Lock()
	defer h.mu.Unlock()
	versions := h.xdmStates[owner]
	out := make([]SharedStateVersion, len(versions))
	for i, v := range versions {
		out[i] = SharedStateVersion{Owner: v.Owner, EventID: v.EventID, Data: xdm.Clone(v.Data)}
	}
	return out
}

// Dispatch records ev and delivers it to every listener.
func (h *Hub) Dispatch(ev engine.Event) error {
	if ev.Type == "" || ev.Source == "" {
		return fmt.Errorf("dispatch %q: event type and source are required", ev.Name)
	}
	if ev.ID == "" {
		ev.ID = h.ids.Generate()
	}
	ev.Data = xdm.Clone(ev.Data)

	h.mu.Lock()
	h.dispatched = append(h.dispatched, ev)
	listeners := append([]Listener(nil), h.listeners...)
	h.mu.Unlock()

	slog.Debug("event dispatched", "event_id", ev.ID, "name", ev.Name, "type", ev.Type, "source", ev.Source)
	for _, l := range listeners {
		if !l.Enqueue(ev) {
			slog.Debug("listener stopped, event dropped", "event_id", ev.ID)
		}
	}
	return nil
}

// Dispatched returns the dispatched events in order.
func (h *Hub) Dispatched() []engine.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]engine.Event, len(h.dispatched))
	for i, ev := range h.dispatched {
		ev.Data = xdm.Clone(ev.Data)
		out[i] = ev
	}
	return out
}

// HostFor returns the engine.Host view of the hub for extension owner.
func (h *Hub) HostFor(owner string) engine.Host {
	return &host{hub: h, owner: owner}
}

func (h *Hub) announce(owner string) {
	ev := engine.NewEvent("Shared state change", engine.TypeHub, engine.SourceSharedState,
		map[string]any{engine.KeyStateOwner: owner})
	if err := h.Dispatch(ev); err != nil {
		slog.Warn("failed to announce shared state", "owner", owner, "error", err)
	}
}

// host adapts Hub to engine.Host for one extension.
type host struct {
	hub   *Hub
	owner string
}

func (h *host) SharedState(owner string, _ engine.Event) (map[string]any, bool) {
	return h.hub.SharedState(owner)
}

func (h *host) CreateXDMSharedState(data map[string]any, ev engine.Event) error {
	h.hub.mu.Lock()
	h.hub.xdmStates[h.owner] = append(h.hub.xdmStates[h.owner], SharedStateVersion{
		Owner:   h.owner,
		EventID: ev.ID,
		Data:    xdm.Clone(data),
	})
	h.hub.mu.Unlock()
	slog.Debug("xdm shared state published", "owner", h.owner, "event_id", ev.ID)
	return nil
}

func (h *host) Dispatch(ev engine.Event) error {
	return h.hub.Dispatch(ev)
}
