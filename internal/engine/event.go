package engine

import (
	"strings"

	"github.com/roach88/edgeid/internal/xdm"
)

// ExtensionName is the shared state owner name of the identity engine.
const ExtensionName = "com.adobe.edge.identity"

// Event types.
const (
	TypeGenericIdentity = "com.adobe.eventType.generic.identity"
	TypeEdgeIdentity    = "com.adobe.eventType.edgeIdentity"
	TypeHub             = "com.adobe.eventType.hub"
	TypeEdgeConsent     = "com.adobe.eventType.edgeConsent"
)

// Event sources.
const (
	SourceRequestContent   = "com.adobe.eventSource.requestContent"
	SourceRequestIdentity  = "com.adobe.eventSource.requestIdentity"
	SourceResponseIdentity = "com.adobe.eventSource.responseIdentity"
	SourceUpdateIdentity   = "com.adobe.eventSource.updateIdentity"
	SourceRemoveIdentity   = "com.adobe.eventSource.removeIdentity"
	SourceRequestReset     = "com.adobe.eventSource.requestReset"
	SourceResetComplete    = "com.adobe.eventSource.resetComplete"
	SourceSharedState      = "com.adobe.eventSource.sharedState"
	SourceUpdateConsent    = "com.adobe.eventSource.updateConsent"
)

// Names of the events the engine dispatches.
const (
	NameIdentityResponse     = "Edge Identity Response Content One Time"
	NameResetComplete        = "Edge Identity Reset Identities Complete"
	NameURLVariablesResponse = "Edge Identity Response URL Variables"
	NameConsentUpdate        = "Consent Update Request for Ad ID"
)

// Event data keys.
const (
	KeyAdvertisingIdentifier = "advertisingIdentifier"
	KeyStateOwner            = "stateowner"
	KeyURLVariables          = "urlvariables"
	KeyConsents              = "consents"
	KeyAdID                  = "adID"
	KeyIDType                = "idType"
	KeyVal                   = "val"
)

// Configuration shared state.
const (
	ConfigurationStateOwner = "com.adobe.module.configuration"
	ConfigurationOrgID      = "experienceCloud.org"
)

// Event is a host event. Data is owned by the event; handlers never
// mutate it.
type Event struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Data   map[string]any `json:"data,omitempty"`
	// ResponseID links a response to the ID of the request it answers.
	ResponseID string `json:"response_id,omitempty"`
	// Seq is stamped by the engine clock on enqueue.
	Seq int64 `json:"seq,omitempty"`
}

// NewEvent creates an event with a copy of data.
func NewEvent(name, typ, source string, data map[string]any) Event {
	return Event{Name: name, Type: typ, Source: source, Data: xdm.Clone(data)}
}

// InResponseTo returns e linked to req.
func (e Event) InResponseTo(req Event) Event {
	e.ResponseID = req.ID
	return e
}

// Is reports whether e has the given type and source, ignoring case.
func (e Event) Is(typ, source string) bool {
	return strings.EqualFold(e.Type, typ) && strings.EqualFold(e.Source, source)
}

// StateOwner returns the owner named by a hub shared state event.
func (e Event) StateOwner() (string, bool) {
	if !e.Is(TypeHub, SourceSharedState) {
		return "", false
	}
	return xdm.String(e.Data, KeyStateOwner)
}

// IsAdIDEvent reports whether e carries the advertising identifier key,
// whatever its value.
func (e Event) IsAdIDEvent() bool {
	_, ok := e.Data[KeyAdvertisingIdentifier]
	return ok
}

// IsURLVariablesRequest reports whether a request identity event asks for
// URL variables. A non-boolean flag counts as false.
func (e Event) IsURLVariablesRequest() bool {
	flag, _ := xdm.Bool(e.Data, KeyURLVariables)
	return flag
}

// logAttrs returns slog key/value pairs identifying e.
func (e Event) logAttrs() []any {
	return []any{"event_id", e.ID, "type", e.Type, "source", e.Source, "seq", e.Seq}
}
