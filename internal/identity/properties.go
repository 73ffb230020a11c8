package identity

import (
	"log/slog"
	"strings"
)

// Properties is the persisted identity aggregate.
//
// The ECID namespace of the map is the single source of truth for the
// primary (index 0) and secondary (index 1) ECIDs; ECID and ECIDSecondary
// read it on every call.
type Properties struct {
	m *Map
}

// NewProperties creates empty properties.
func NewProperties() *Properties {
	return &Properties{m: NewMap()}
}

// ECID returns the primary ECID, or the zero ECID when none is set.
func (p *Properties) ECID() ECID {
	items := p.m.ItemsForNamespace(NamespaceECID)
	if len(items) == 0 {
		return ECID{}
	}
	return ParseECID(items[0].ID)
}

// ECIDSecondary returns the secondary (legacy) ECID, or the zero ECID.
func (p *Properties) ECIDSecondary() ECID {
	items := p.m.ItemsForNamespace(NamespaceECID)
	if len(items) < 2 {
		return ECID{}
	}
	return ParseECID(items[1].ID)
}

// SetECID replaces the primary ECID.
//
// A zero id clears the whole ECID namespace, secondary included, since a
// secondary cannot exist without a primary. Setting a primary equal to the
// current secondary leaves only the primary.
func (p *Properties) SetECID(id ECID) {
	if current := p.ECID(); !current.IsZero() {
		p.m.RemoveItem(NamespaceECID, NewItem(current.String(), StateAmbiguous, true))
	}

	if id.IsZero() {
		p.m.ClearNamespace(NamespaceECID)
		return
	}

	p.m.insertFirst(NamespaceECID, NewItem(id.String(), StateAmbiguous, true))
}

// SetECIDSecondary replaces the secondary ECID. It is refused while no
// primary is set, and when id equals the primary.
func (p *Properties) SetECIDSecondary(id ECID) {
	if current := p.ECIDSecondary(); !current.IsZero() {
		p.m.RemoveItem(NamespaceECID, NewItem(current.String(), StateAmbiguous, false))
	}

	if id.IsZero() {
		return
	}

	primary := p.ECID()
	if primary.IsZero() {
		slog.Debug("secondary ECID not set, no primary ECID present", "ecid_secondary", id.String())
		return
	}
	if strings.EqualFold(primary.String(), id.String()) {
		slog.Debug("secondary ECID not set, equal to primary ECID", "ecid_secondary", id.String())
		return
	}

	p.m.AddItem(NamespaceECID, NewItem(id.String(), StateAmbiguous, false))
}

// UpdateCustomerIdentifiers merges m into the identity map after dropping
// reserved namespaces from a copy of m.
func (p *Properties) UpdateCustomerIdentifiers(m *Map) {
	if m == nil {
		return
	}
	p.m.Merge(withoutReserved(m))
}

// RemoveCustomerIdentifiers removes the items of m from the identity map
// after dropping reserved namespaces from a copy of m.
func (p *Properties) RemoveCustomerIdentifiers(m *Map) {
	if m == nil {
		return
	}
	p.m.Remove(withoutReserved(m))
}

// AdvertisingID returns the first item in the advertising namespace ns,
// or "" when none is set.
func (p *Properties) AdvertisingID(ns string) string {
	items := p.m.ItemsForNamespace(ns)
	if len(items) == 0 {
		return ""
	}
	return items[0].ID
}

// setAdvertisingID replaces the advertising namespace with id; an empty id
// clears it.
func (p *Properties) setAdvertisingID(ns, id string) {
	p.m.ClearNamespace(ns)
	if id == "" {
		return
	}
	p.m.AddItem(ns, NewItem(id, StateAmbiguous, false))
}

// Map returns a copy of the identity map.
func (p *Properties) Map() *Map {
	return p.m.Clone()
}

// Clone returns a deep copy of p.
func (p *Properties) Clone() *Properties {
	return &Properties{m: p.m.Clone()}
}

// ToXDM returns {"identityMap": ...}. When the map is empty the key is
// omitted unless allowEmpty is set.
func (p *Properties) ToXDM(allowEmpty bool) map[string]any {
	out := map[string]any{}
	if !p.m.IsEmpty() || allowEmpty {
		out[KeyIdentityMap] = p.m.ToXDM()
	}
	return out
}

// PropertiesFromXDM rebuilds properties from wire data. Missing or
// malformed data yields empty properties. The ECID list is taken as already
// ordered (primary first); entries past the second are dropped.
func PropertiesFromXDM(data map[string]any) *Properties {
	m, ok := MapFromXDM(data)
	if !ok {
		return NewProperties()
	}
	if n := len(m.ItemsForNamespace(NamespaceECID)); n > 2 {
		slog.Debug("trimming ECID namespace to primary and secondary", "count", n)
		m.truncate(NamespaceECID, 2)
	}
	return &Properties{m: m}
}

// withoutReserved returns a copy of m without reserved namespaces.
// Namespaces are compared case-insensitively.
func withoutReserved(m *Map) *Map {
	out := m.Clone()
	for _, ns := range out.Namespaces() {
		if isReserved(ns) {
			slog.Debug("ignoring reserved namespace in customer identifiers", "namespace", ns)
			out.ClearNamespace(ns)
		}
	}
	return out
}

func isReserved(ns string) bool {
	for _, r := range reservedNamespaces {
		if strings.EqualFold(ns, r) {
			return true
		}
	}
	return false
}
