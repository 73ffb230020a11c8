package identity

import (
	"log/slog"
	"strings"
)

// AuthenticatedState is the authentication state of an identity item.
type AuthenticatedState string

const (
	StateAmbiguous     AuthenticatedState = "ambiguous"
	StateAuthenticated AuthenticatedState = "authenticated"
	StateLoggedOut     AuthenticatedState = "loggedOut"
)

// ParseAuthenticatedState parses a wire value. Unknown strings and values
// of any other type yield StateAmbiguous.
func ParseAuthenticatedState(v any) AuthenticatedState {
	s, _ := v.(string)
	switch AuthenticatedState(s) {
	case StateAuthenticated:
		return StateAuthenticated
	case StateLoggedOut:
		return StateLoggedOut
	default:
		return StateAmbiguous
	}
}

// Item is one identifier within a namespace.
// Two items are the same item when their IDs match case-insensitively;
// State and Primary do not take part in equality.
type Item struct {
	ID      string
	State   AuthenticatedState
	Primary bool
}

// NewItem creates an item. An empty state defaults to StateAmbiguous.
func NewItem(id string, state AuthenticatedState, primary bool) Item {
	if state == "" {
		state = StateAmbiguous
	}
	return Item{ID: id, State: state, Primary: primary}
}

// Equal reports whether i and other identify the same item.
func (i Item) Equal(other Item) bool {
	return strings.EqualFold(i.ID, other.ID)
}

// ToXDM returns the wire form of the item.
func (i Item) ToXDM() map[string]any {
	state := i.State
	if state == "" {
		state = StateAmbiguous
	}
	return map[string]any{
		KeyID:                 i.ID,
		KeyAuthenticatedState: string(state),
		KeyPrimary:            i.Primary,
	}
}

// ItemFromXDM parses one wire item. It fails when v is not an object or
// has no non-empty string id; state and primary fall back to defaults.
func ItemFromXDM(v any) (Item, bool) {
	data, ok := v.(map[string]any)
	if !ok {
		return Item{}, false
	}
	id, ok := data[KeyID].(string)
	if !ok || id == "" {
		slog.Debug("identity item has no id, skipping", "item", data)
		return Item{}, false
	}
	primary, _ := data[KeyPrimary].(bool)
	return Item{
		ID:      id,
		State:   ParseAuthenticatedState(data[KeyAuthenticatedState]),
		Primary: primary,
	}, true
}
