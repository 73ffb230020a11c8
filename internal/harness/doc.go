// Package harness runs identity scenarios against the real engine.
//
// Each scenario runs in a fresh in-memory SQLite datastore with an
// in-process hub, a deterministic ECID generator, sequential event IDs and
// a frozen wall clock, so the same scenario always produces the same trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  ecids: ["111...1", "222...2"]
//	  legacy_ecid: "999...9"
//	  registered:
//	    com.adobe.module.identity: { version: "2.0.0" }
//	  shared_states:
//	    com.adobe.module.configuration: { experienceCloud.org: "ORG@AdobeOrg" }
//	steps:
//	  - event: update_identity
//	    data: { identityMap: { Email: [ { id: "user@example.com" } ] } }
//	  - event: shared_state
//	    owner: com.adobe.module.identity
//	    state: { mid: "999...9" }
//	assertions:
//	  - type: trace_contains
//	    event: Edge Identity Response Content One Time
//	  - type: final_state
//	    namespace: Email
//	    ids: ["user@example.com"]
//
// # Step Events
//
//   - update_identity, remove_identity: data carries an identityMap
//   - request_identity: data may carry urlvariables: true
//   - reset: no data
//   - ad_id: data carries advertisingIdentifier
//   - shared_state: publishes state as owner's shared state
//   - register: registers owner with the hub, state as its details
//
// # Assertion Types
//
//   - trace_contains: an event named event was dispatched, with data as a
//     subset of its data
//   - trace_order: the named events were dispatched in this order
//   - trace_count: the named event was dispatched exactly count times
//   - final_state: the namespace holds exactly ids, in order, both in the
//     engine and in the datastore; booted optionally checks the boot latch
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON of the trace, the published
// snapshots and the persisted record against testdata/golden/<name>.golden.
package harness
