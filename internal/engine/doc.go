// Package engine routes host events to the identity reconciliation state.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// The engine processes all events in a single goroutine. The identity
// State is mutated only there, so it needs no locking.
//
// Event Processing Flow:
//  1. Events are enqueued to a FIFO queue from any goroutine (usually the
//     hub's dispatch fan-out).
//  2. Engine.Run() peeks at the head event and asks ReadyForEvent, which
//     attempts boot until it succeeds.
//  3. If the engine is not ready the head event stays queued; the next
//     enqueue wakes the loop and boot is retried. There is no polling.
//  4. Once ready, the event is dequeued and HandleEvent routes it.
//  5. Handlers persist through the State and publish an XDM shared state
//     snapshot or dispatch response events via the Host.
//
// Handler failures are logged and processing continues with the next event.
package engine
