package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/edgeid/internal/identity"
	"github.com/roach88/edgeid/internal/xdm"
)

// Handler routes.
const (
	routeUpdate       = "update"
	routeRemove       = "remove"
	routeRequest      = "request"
	routeURLVariables = "url_variables"
	routeReset        = "reset"
	routeAdID         = "ad_id"
	routeLegacyECID   = "legacy_ecid"
)

// Engine is the single-writer identity event loop.
//
// Thread-safety model:
//   - Enqueue(), Stop(): safe from any goroutine
//   - Run(), Drain(), HandleEvent(), ReadyForEvent(): one goroutine at a time
type Engine struct {
	host  Host
	state *identity.State
	queue *eventQueue
	clock *Clock
	ids   IDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the generator for event IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithNow sets the wall clock used for URL variable timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.clock.wall = now }
}

// New creates an engine driving state and talking to host.
func New(host Host, state *identity.State, opts ...Option) *Engine {
	e := &Engine{
		host:  host,
		state: state,
		queue: newEventQueue(),
		clock: NewClock(nil),
		ids:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits an event for processing. Events without an ID get one.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	if ev.ID == "" {
		ev.ID = e.ids.Generate()
	}
	ev.Seq = e.clock.Next()
	if !e.queue.Enqueue(ev) {
		return false
	}
	queueDepth.Set(float64(e.queue.Len()))
	return true
}

// Pending returns the number of queued events.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop() is called and every
// processable event has been handled.
//
// A head event that arrives before boot can complete stays queued; the
// loop sleeps until the next Enqueue and then retries boot.
//
// On handler failure the error is logged and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		if e.step(ctx) {
			continue
		}

		if e.queue.Closed() {
			slog.Info("engine stopping: queue closed", "pending", e.queue.Len())
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
		}
	}
}

// Drain synchronously handles queued events until the queue is empty or the
// head event is not ready. It returns the number of events handled.
// Must not be called while Run is active.
func (e *Engine) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if !e.step(ctx) {
			return n, nil
		}
		n++
	}
}

// Stop closes the queue. Run returns once the remaining processable events
// are handled.
func (e *Engine) Stop() {
	e.queue.Close()
}

// step handles the head event if the engine is ready for it.
func (e *Engine) step(ctx context.Context) bool {
	ev, ok := e.queue.Peek()
	if !ok {
		return false
	}
	if !e.ReadyForEvent(ctx, ev) {
		return false
	}

	ev, _ = e.queue.TryDequeue()
	queueDepth.Set(float64(e.queue.Len()))

	if err := e.HandleEvent(ctx, ev); err != nil {
		logEventError(ev, err)
	}
	return true
}

// ReadyForEvent reports whether ev may be handled, attempting boot while the
// state has not booted. A successful boot publishes the first snapshot.
func (e *Engine) ReadyForEvent(ctx context.Context, ev Event) bool {
	if e.state.Booted() {
		return true
	}

	lookup := identity.SharedStateLookupFunc(func(owner string) (map[string]any, bool) {
		return e.host.SharedState(owner, ev)
	})
	if !e.state.BootupIfReady(ctx, lookup) {
		bootAttempts.WithLabelValues("deferred").Inc()
		slog.Debug("engine not ready, event held", ev.logAttrs()...)
		return false
	}

	bootAttempts.WithLabelValues("booted").Inc()
	if err := e.publish(ev); err != nil {
		logEventError(ev, err)
	}
	return true
}

// HandleEvent routes one event to its handler. Events the engine does not
// handle are ignored.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) error {
	route := routeOf(ev)
	if route == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "engine.HandleEvent",
		trace.WithAttributes(
			attribute.String("event.id", ev.ID),
			attribute.String("event.type", ev.Type),
			attribute.String("event.source", ev.Source),
			attribute.String("event.route", route),
		),
	)
	defer span.End()

	slog.Debug("handling event", append(ev.logAttrs(), "route", route)...)

	var err error
	switch route {
	case routeUpdate:
		err = e.handleUpdateIdentities(ctx, ev)
	case routeRemove:
		err = e.handleRemoveIdentities(ctx, ev)
	case routeRequest:
		err = e.handleIdentityRequest(ev)
	case routeURLVariables:
		err = e.handleURLVariablesRequest(ev)
	case routeReset:
		err = e.handleRequestReset(ctx, ev)
	case routeAdID:
		err = e.handleAdID(ctx, ev)
	case routeLegacyECID:
		err = e.handleLegacyECIDUpdate(ctx, ev)
	}

	eventsTotal.WithLabelValues(route, resultLabel(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &HandlerError{Route: route, EventID: ev.ID, Err: err}
	}
	return nil
}

func routeOf(ev Event) string {
	switch {
	case ev.Is(TypeEdgeIdentity, SourceRequestIdentity):
		if ev.IsURLVariablesRequest() {
			return routeURLVariables
		}
		return routeRequest
	case ev.Is(TypeGenericIdentity, SourceRequestContent):
		if ev.IsAdIDEvent() {
			return routeAdID
		}
	case ev.Is(TypeEdgeIdentity, SourceUpdateIdentity):
		return routeUpdate
	case ev.Is(TypeEdgeIdentity, SourceRemoveIdentity):
		return routeRemove
	case ev.Is(TypeGenericIdentity, SourceRequestReset):
		return routeReset
	default:
		if owner, ok := ev.StateOwner(); ok && owner == identity.LegacyStateOwner {
			return routeLegacyECID
		}
	}
	return ""
}

func (e *Engine) handleUpdateIdentities(ctx context.Context, ev Event) error {
	m, ok := identity.MapFromXDM(ev.Data)
	if !ok {
		slog.Debug("update identities ignored, no identity map in event data", ev.logAttrs()...)
		return nil
	}
	e.state.UpdateCustomerIdentifiers(ctx, m)
	return e.publish(ev)
}

func (e *Engine) handleRemoveIdentities(ctx context.Context, ev Event) error {
	m, ok := identity.MapFromXDM(ev.Data)
	if !ok {
		slog.Debug("remove identities ignored, no identity map in event data", ev.logAttrs()...)
		return nil
	}
	e.state.RemoveCustomerIdentifiers(ctx, m)
	return e.publish(ev)
}

func (e *Engine) handleIdentityRequest(ev Event) error {
	resp := NewEvent(NameIdentityResponse, TypeEdgeIdentity, SourceResponseIdentity, e.state.Snapshot())
	return e.dispatch(resp.InResponseTo(ev))
}

func (e *Engine) handleURLVariablesRequest(ev Event) error {
	var value any

	config, _ := e.host.SharedState(ConfigurationStateOwner, ev)
	orgID, _ := xdm.String(config, ConfigurationOrgID)
	ecid := e.state.Properties().ECID()

	switch {
	case orgID == "":
		slog.Warn("cannot build URL variables, Experience Cloud org ID not found in configuration", ev.logAttrs()...)
	case ecid.IsZero():
		slog.Warn("cannot build URL variables, ECID not found", ev.logAttrs()...)
	default:
		value = URLVariables(e.clock.Now().Unix(), ecid.String(), orgID)
	}

	resp := NewEvent(NameURLVariablesResponse, TypeEdgeIdentity, SourceResponseIdentity,
		map[string]any{KeyURLVariables: value})
	return e.dispatch(resp.InResponseTo(ev))
}

func (e *Engine) handleRequestReset(ctx context.Context, ev Event) error {
	e.state.ResetIdentifiers(ctx)
	if err := e.publish(ev); err != nil {
		return err
	}
	resp := NewEvent(NameResetComplete, TypeEdgeIdentity, SourceResetComplete, nil)
	return e.dispatch(resp.InResponseTo(ev))
}

func (e *Engine) handleAdID(ctx context.Context, ev Event) error {
	// A present but non-string value counts as no ad ID.
	raw, _ := xdm.String(ev.Data, KeyAdvertisingIdentifier)
	change := e.state.UpdateAdvertisingIdentifier(ctx, raw)

	if change.Changed {
		if err := e.publish(ev); err != nil {
			return err
		}
	}
	if change.Consent == identity.ConsentNone {
		return nil
	}

	consent := NewEvent(NameConsentUpdate, TypeEdgeConsent, SourceUpdateConsent, map[string]any{
		KeyConsents: map[string]any{
			KeyAdID: map[string]any{
				KeyIDType: e.state.AdvertisingNamespace(),
				KeyVal:    string(change.Consent),
			},
		},
	})
	consentSignals.WithLabelValues(string(change.Consent)).Inc()
	return e.dispatch(consent)
}

func (e *Engine) handleLegacyECIDUpdate(ctx context.Context, ev Event) error {
	legacyState, ok := e.host.SharedState(identity.LegacyStateOwner, ev)
	if !ok {
		return nil
	}
	if !e.state.UpdateLegacyECID(ctx, identity.LegacyECIDFromState(legacyState)) {
		return nil
	}
	return e.publish(ev)
}

// publish shares the current snapshot as the engine's XDM shared state.
func (e *Engine) publish(ev Event) error {
	err := e.host.CreateXDMSharedState(e.state.Snapshot(), ev)
	publishesTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return fmt.Errorf("publish xdm shared state: %w", err)
	}
	return nil
}

func (e *Engine) dispatch(ev Event) error {
	if ev.ID == "" {
		ev.ID = e.ids.Generate()
	}
	if err := e.host.Dispatch(ev); err != nil {
		return fmt.Errorf("dispatch %q: %w", ev.Name, err)
	}
	return nil
}
