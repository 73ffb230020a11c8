// Package hub is an in-process event hub hosting the identity engine.
//
// It keeps the shared states other modules publish (last write wins), the
// XDM shared states of each extension, and the registered-extensions state
// under the event hub's own owner name. Dispatched events are recorded in
// order and fanned out to every listener.
package hub
