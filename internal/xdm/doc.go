// Package xdm holds the loosely typed map values exchanged with the host
// (event payloads, shared states, persisted records) and the canonical JSON
// encoding used to persist and digest them.
//
// Values are the shapes encoding/json produces when decoding into any:
// map[string]any, []any, string, bool, nil, and integers (int, int64 or
// json.Number). Floats are rejected by the canonical encoder.
//
// xdm imports nothing internal.
package xdm
