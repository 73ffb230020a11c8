package identity

import (
	"context"
	"log/slog"
)

// SharedStateLookup reads the last published shared state of another
// module. ok is false when the owner has not published any state.
type SharedStateLookup interface {
	SharedState(owner string) (state map[string]any, ok bool)
}

// SharedStateLookupFunc adapts a function to SharedStateLookup.
type SharedStateLookupFunc func(owner string) (map[string]any, bool)

// SharedState implements SharedStateLookup.
func (f SharedStateLookupFunc) SharedState(owner string) (map[string]any, bool) {
	return f(owner)
}

// Consent is the ad ID consent signal produced by an advertising
// identifier transition.
type Consent string

const (
	ConsentNone Consent = ""
	ConsentYes  Consent = "y"
	ConsentNo   Consent = "n"
)

// AdIDChange is the outcome of UpdateAdvertisingIdentifier.
// Changed means the identity map changed and a snapshot must be published.
type AdIDChange struct {
	Changed bool
	Consent Consent
}

// Option configures a State.
type Option func(*State)

// WithGenerator sets the ECID generator.
func WithGenerator(g Generator) Option {
	return func(s *State) { s.gen = g }
}

// WithAdvertisingNamespace sets the namespace the advertising identifier is
// stored under (GAID by default).
func WithAdvertisingNamespace(ns string) Option {
	return func(s *State) {
		if ns != "" {
			s.adNamespace = ns
		}
	}
}

// State is the identity reconciliation state machine.
type State struct {
	props       *Properties
	booted      bool
	storage     *Storage
	gen         Generator
	adNamespace string
}

// NewState creates a state that has not booted yet.
func NewState(storage *Storage, opts ...Option) *State {
	s := &State{
		props:       NewProperties(),
		storage:     storage,
		gen:         RandomGenerator{},
		adNamespace: NamespaceGAID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Booted reports whether boot has completed. Once true it never resets.
func (s *State) Booted() bool { return s.booted }

// Properties returns a copy of the current properties.
func (s *State) Properties() *Properties { return s.props.Clone() }

// Snapshot returns the XDM snapshot published to other modules.
func (s *State) Snapshot() map[string]any { return s.props.ToXDM(false) }

// AdvertisingNamespace returns the namespace used for the advertising ID.
func (s *State) AdvertisingNamespace() string { return s.adNamespace }

// BootupIfReady establishes the primary ECID exactly once.
//
// Persisted properties are loaded first. If they carry no primary ECID it is
// migrated from the legacy store, then from the legacy module's shared state.
// When neither has data yet but the legacy module is registered with the hub,
// boot is deferred (false) until a later call. Otherwise a new ECID is
// generated. Returns true when boot completed on this call and a snapshot
// must be published.
func (s *State) BootupIfReady(ctx context.Context, lookup SharedStateLookup) bool {
	if s.booted {
		return false
	}

	props, err := s.storage.LoadProperties(ctx)
	if err != nil {
		slog.Warn("failed to load identity properties, starting empty", "error", err)
	}
	if props == nil {
		props = NewProperties()
	}

	if props.ECID().IsZero() {
		legacy, err := s.storage.LoadLegacyECID(ctx)
		if err != nil {
			slog.Warn("failed to load legacy ECID", "error", err)
		}
		legacyState, hasLegacyState := lookup.SharedState(LegacyStateOwner)

		switch {
		case !legacy.IsZero():
			props.SetECID(legacy)
			slog.Debug("boot migrated ECID from legacy store", "ecid", legacy.String())
		case hasLegacyState:
			props.SetECID(s.ecidFromLegacyState(legacyState))
		case isLegacyRegistered(lookup):
			slog.Debug("boot deferred, legacy identity module registered without state")
			return false
		default:
			props.SetECID(s.gen.NewECID())
			slog.Debug("boot generated new ECID", "ecid", props.ECID().String())
		}

		s.props = props
		s.persist(ctx)
	} else {
		s.props = props
	}

	s.booted = true
	slog.Debug("identity state booted", "ecid", s.props.ECID().String())
	return true
}

// ecidFromLegacyState adopts the ECID published by the legacy module, or
// generates one when the legacy module published no ECID (opted out).
func (s *State) ecidFromLegacyState(state map[string]any) ECID {
	if id := LegacyECIDFromState(state); !id.IsZero() {
		slog.Debug("boot migrated ECID from legacy shared state", "ecid", id.String())
		return id
	}
	id := s.gen.NewECID()
	slog.Debug("legacy shared state has no ECID, generated new ECID", "ecid", id.String())
	return id
}

// ResetIdentifiers drops every identifier and generates a new primary ECID.
// It does not send a consent signal.
func (s *State) ResetIdentifiers(ctx context.Context) {
	props := NewProperties()
	props.SetECID(s.gen.NewECID())
	props.SetECIDSecondary(ECID{})
	s.props = props
	s.persist(ctx)
	slog.Debug("identifiers reset", "ecid", s.props.ECID().String())
}

// UpdateCustomerIdentifiers merges m into the identity map and persists.
func (s *State) UpdateCustomerIdentifiers(ctx context.Context, m *Map) {
	s.props.UpdateCustomerIdentifiers(m)
	s.persist(ctx)
}

// RemoveCustomerIdentifiers removes m from the identity map and persists.
func (s *State) RemoveCustomerIdentifiers(ctx context.Context, m *Map) {
	s.props.RemoveCustomerIdentifiers(m)
	s.persist(ctx)
}

// UpdateLegacyECID syncs the secondary ECID with the legacy module's ECID.
// It returns true when the secondary changed and a snapshot must be
// published.
func (s *State) UpdateLegacyECID(ctx context.Context, candidate ECID) bool {
	primary := s.props.ECID()
	secondary := s.props.ECIDSecondary()

	if !candidate.IsZero() && (candidate.Equal(primary) || candidate.Equal(secondary)) {
		return false
	}
	if candidate.IsZero() && secondary.IsZero() {
		return false
	}

	s.props.SetECIDSecondary(candidate)
	s.persist(ctx)
	slog.Debug("legacy ECID updated", "ecid_secondary", candidate.String())
	return true
}

// UpdateAdvertisingIdentifier applies a new raw advertising identifier.
//
//	empty     -> empty      no change
//	empty     -> value      item added, consent yes
//	value     -> other      item replaced
//	value     -> same       no change
//	value     -> empty      item removed, consent no
//
// Empty covers "", the all-zero UUID and an absent value.
func (s *State) UpdateAdvertisingIdentifier(ctx context.Context, raw string) AdIDChange {
	next := NormalizeAdvertisingID(raw)
	current := NormalizeAdvertisingID(s.props.AdvertisingID(s.adNamespace))

	if next == current {
		return AdIDChange{}
	}

	s.props.setAdvertisingID(s.adNamespace, next)
	s.persist(ctx)

	change := AdIDChange{Changed: true}
	switch {
	case current == "":
		change.Consent = ConsentYes
	case next == "":
		change.Consent = ConsentNo
	}
	slog.Debug("advertising identifier updated", "namespace", s.adNamespace, "consent", string(change.Consent))
	return change
}

// NormalizeAdvertisingID folds every "no ad ID" value to "".
func NormalizeAdvertisingID(raw string) string {
	if raw == ZeroAdvertisingID {
		return ""
	}
	return raw
}

// LegacyECIDFromState extracts the ECID from the legacy module's shared
// state. A missing or non-string value yields the zero ECID.
func LegacyECIDFromState(state map[string]any) ECID {
	s, ok := state[LegacyStateECID].(string)
	if !ok {
		return ECID{}
	}
	return ParseECID(s)
}

func (s *State) persist(ctx context.Context) {
	if err := s.storage.SaveProperties(ctx, s.props); err != nil {
		slog.Error("failed to persist identity properties", "error", err)
	}
}

// isLegacyRegistered reports whether the hub's registered-extensions state
// lists the legacy identity module with non-empty details.
func isLegacyRegistered(lookup SharedStateLookup) bool {
	hub, ok := lookup.SharedState(HubStateOwner)
	if !ok {
		return false
	}
	extensions, ok := hub[HubExtensions].(map[string]any)
	if !ok {
		return false
	}
	info, ok := extensions[LegacyStateOwner].(map[string]any)
	return ok && len(info) > 0
}
