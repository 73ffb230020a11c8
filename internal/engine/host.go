package engine

// Host is the capability surface the engine needs from the event hub.
// The engine never reaches into the hub directly.
type Host interface {
	// SharedState returns the last state published by owner, as seen by ev.
	// ok is false when owner has published nothing.
	SharedState(owner string, ev Event) (state map[string]any, ok bool)

	// CreateXDMSharedState publishes data as the engine's XDM shared state,
	// versioned at ev.
	CreateXDMSharedState(data map[string]any, ev Event) error

	// Dispatch sends ev to the hub's listeners.
	Dispatch(ev Event) error
}
