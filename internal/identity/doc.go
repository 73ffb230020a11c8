// Package identity implements the identity data model and the reconciliation
// state machine that owns it.
//
// The data model is a multi-namespace identity map ([Map]) of [Item] values,
// wrapped by [Properties], which keeps the device identifier ([ECID]) in the
// "ECID" namespace: index 0 is the primary ECID, index 1 the secondary ECID
// synced from the legacy identity module. Properties round-trip through the
// XDM wire shape:
//
//	{"identityMap": {"<namespace>": [{"id": ..., "authenticatedState": ..., "primary": ...}]}}
//
// [State] establishes the primary ECID exactly once (boot), migrates it from
// the legacy store when one exists, and applies customer identifier, reset,
// legacy ECID and advertising identifier updates. State is not safe for
// concurrent use; the engine drives it from a single goroutine.
package identity
