package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgeid/internal/identity"
)

func TestEngine_BootGeneratesECIDAndPublishes(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(updateEvent(identityMapData("Email", "user@example.com")))
	assert.Equal(t, 1, f.drain(t))

	require.Equal(t, 2, f.host.publishedCount(), "boot snapshot then update snapshot")
	props := f.host.lastPublished(t)
	assert.Equal(t, ecid1, props.ECID().String())
	assert.Equal(t, []string{"user@example.com"}, itemIDs(props.Map().ItemsForNamespace("Email")))

	persisted := f.persisted(t)
	assert.Equal(t, ecid1, persisted.ECID().String())
	assert.Equal(t, []string{"user@example.com"}, itemIDs(persisted.Map().ItemsForNamespace("Email")))
}

func TestEngine_BootUsesPersistedProperties(t *testing.T) {
	f := newFixture(t)
	props := identity.NewProperties()
	props.SetECID(identity.ParseECID("persisted"))
	require.NoError(t, identity.NewStorage(f.kv).SaveProperties(context.Background(), props))

	f.engine.Enqueue(requestEvent(nil))
	f.drain(t)

	assert.Equal(t, "persisted", f.host.lastPublished(t).ECID().String())
}

func TestEngine_BootMigratesLegacyStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kv.Set(context.Background(), identity.LegacyDatastore, identity.LegacyECIDKey, "legacy-stored"))

	f.engine.Enqueue(requestEvent(nil))
	f.drain(t)

	assert.Equal(t, "legacy-stored", f.host.lastPublished(t).ECID().String())
	assert.Equal(t, "legacy-stored", f.persisted(t).ECID().String())
}

func TestEngine_BootDeferredUntilLegacyStatePublished(t *testing.T) {
	f := newFixture(t)
	f.host.setState(identity.HubStateOwner, map[string]any{
		identity.HubExtensions: map[string]any{
			identity.LegacyStateOwner: map[string]any{"version": "2.0.0"},
		},
	})

	f.engine.Enqueue(requestEvent(nil))
	assert.Equal(t, 0, f.drain(t), "head event held while legacy module has no state")
	assert.Equal(t, 1, f.engine.Pending())
	assert.Equal(t, 0, f.host.publishedCount())
	assert.False(t, f.state.Booted())

	f.host.setState(identity.LegacyStateOwner, map[string]any{identity.LegacyStateECID: "from-legacy"})
	f.engine.Enqueue(sharedStateEvent(identity.LegacyStateOwner))
	assert.Equal(t, 2, f.drain(t))

	assert.True(t, f.state.Booted())
	require.Equal(t, 1, f.host.publishedCount(), "legacy ECID equal to primary publishes nothing more")
	assert.Equal(t, "from-legacy", f.host.lastPublished(t).ECID().String())

	responses := f.host.dispatchedWith(TypeEdgeIdentity, SourceResponseIdentity)
	require.Len(t, responses, 1)
	assert.Equal(t, "ev-1", responses[0].ResponseID)
}

func TestEngine_BootLegacyStateWithoutECIDGenerates(t *testing.T) {
	f := newFixture(t)
	f.host.setState(identity.LegacyStateOwner, map[string]any{"optedout": true})

	f.engine.Enqueue(requestEvent(nil))
	f.drain(t)

	assert.Equal(t, ecid1, f.host.lastPublished(t).ECID().String())
}

func TestEngine_UpdateAndRemoveIdentities(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(updateEvent(identityMapData("Email", "a@example.com", "b@example.com")))
	f.engine.Enqueue(removeEvent(identityMapData("Email", "A@EXAMPLE.COM")))
	f.drain(t)

	require.Equal(t, 3, f.host.publishedCount())
	props := f.host.lastPublished(t)
	assert.Equal(t, []string{"b@example.com"}, itemIDs(props.Map().ItemsForNamespace("Email")))
	assert.Equal(t, ecid1, props.ECID().String())
}

func TestEngine_UpdateCannotTouchReservedNamespaces(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(updateEvent(identityMapData("ECID", "forged")))
	f.engine.Enqueue(removeEvent(identityMapData("ECID", ecid1)))
	f.drain(t)

	props := f.host.lastPublished(t)
	assert.Equal(t, []string{ecid1}, itemIDs(props.Map().ItemsForNamespace(identity.NamespaceECID)))
}

func TestEngine_UpdateWithoutIdentityMapIgnored(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(updateEvent(map[string]any{"other": "value"}))
	f.drain(t)

	assert.Equal(t, 1, f.host.publishedCount(), "only the boot snapshot")
}

func TestEngine_RequestIdentityRespondsWithSnapshot(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(updateEvent(identityMapData("Email", "user@example.com")))
	f.engine.Enqueue(requestEvent(nil))
	f.drain(t)

	responses := f.host.dispatchedWith(TypeEdgeIdentity, SourceResponseIdentity)
	require.Len(t, responses, 1)
	resp := responses[0]
	assert.Equal(t, NameIdentityResponse, resp.Name)
	assert.Equal(t, "ev-2", resp.ResponseID)
	assert.NotEmpty(t, resp.ID)

	props := identity.PropertiesFromXDM(resp.Data)
	assert.Equal(t, ecid1, props.ECID().String())
	assert.Equal(t, []string{"user@example.com"}, itemIDs(props.Map().ItemsForNamespace("Email")))
}

func TestEngine_URLVariables(t *testing.T) {
	f := newFixture(t, fixedNow(1700000000))
	f.host.setState(ConfigurationStateOwner, map[string]any{ConfigurationOrgID: "ORG@AdobeOrg"})

	f.engine.Enqueue(requestEvent(map[string]any{KeyURLVariables: true}))
	f.drain(t)

	responses := f.host.dispatchedWith(TypeEdgeIdentity, SourceResponseIdentity)
	require.Len(t, responses, 1)
	assert.Equal(t, NameURLVariablesResponse, responses[0].Name)
	assert.Equal(t,
		"adobe_mc=TS%3D1700000000%7CMCMID%3D"+ecid1+"%7CMCORGID%3DORG%40AdobeOrg",
		responses[0].Data[KeyURLVariables])
}

func TestEngine_URLVariablesWithoutOrgID(t *testing.T) {
	f := newFixture(t, fixedNow(1))

	f.engine.Enqueue(requestEvent(map[string]any{KeyURLVariables: true}))
	f.drain(t)

	responses := f.host.dispatchedWith(TypeEdgeIdentity, SourceResponseIdentity)
	require.Len(t, responses, 1)
	value, present := responses[0].Data[KeyURLVariables]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestEngine_URLVariablesFlagNotBoolean(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(requestEvent(map[string]any{KeyURLVariables: "true"}))
	f.drain(t)

	responses := f.host.dispatchedWith(TypeEdgeIdentity, SourceResponseIdentity)
	require.Len(t, responses, 1)
	assert.Equal(t, NameIdentityResponse, responses[0].Name)
}

func TestEngine_ResetIdentities(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(updateEvent(identityMapData("Email", "user@example.com")))
	f.engine.Enqueue(adIDEvent("ad-1"))
	f.engine.Enqueue(resetEvent())
	f.drain(t)

	props := f.host.lastPublished(t)
	assert.Equal(t, ecid2, props.ECID().String())
	assert.Equal(t, []string{identity.NamespaceECID}, props.Map().Namespaces())
	assert.Equal(t, ecid2, f.persisted(t).ECID().String())

	complete := f.host.dispatchedWith(TypeEdgeIdentity, SourceResetComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, NameResetComplete, complete[0].Name)
	assert.Equal(t, "ev-3", complete[0].ResponseID)

	consents := f.host.dispatchedWith(TypeEdgeConsent, SourceUpdateConsent)
	assert.Len(t, consents, 1, "only the ad ID addition signals consent, reset does not")
}

func TestEngine_AdIDTransitions(t *testing.T) {
	f := newFixture(t)
	f.engine.Enqueue(requestEvent(nil))
	f.drain(t)
	base := f.host.publishedCount()

	steps := []struct {
		value     any
		published bool
		consent   string
		stored    string
	}{
		{value: "", published: false},
		{value: identity.ZeroAdvertisingID, published: false},
		{value: "ad-1", published: true, consent: "y", stored: "ad-1"},
		{value: "ad-1", published: false, stored: "ad-1"},
		{value: "ad-2", published: true, stored: "ad-2"},
		{value: identity.ZeroAdvertisingID, published: true, consent: "n"},
		{value: "", published: false},
		{value: 42, published: false},
	}

	for i, step := range steps {
		before := f.host.publishedCount()
		consentsBefore := len(f.host.dispatchedWith(TypeEdgeConsent, SourceUpdateConsent))

		f.engine.Enqueue(adIDEvent(step.value))
		f.drain(t)

		assert.Equal(t, step.published, f.host.publishedCount() > before, "step %d publish", i)
		consents := f.host.dispatchedWith(TypeEdgeConsent, SourceUpdateConsent)
		if step.consent == "" {
			assert.Len(t, consents, consentsBefore, "step %d consent", i)
		} else {
			require.Len(t, consents, consentsBefore+1, "step %d consent", i)
			assert.Equal(t, map[string]any{
				KeyConsents: map[string]any{
					KeyAdID: map[string]any{KeyIDType: identity.NamespaceGAID, KeyVal: step.consent},
				},
			}, consents[len(consents)-1].Data)
		}
		assert.Equal(t, step.stored, f.state.Properties().AdvertisingID(identity.NamespaceGAID), "step %d stored", i)
	}
	assert.Equal(t, base+3, f.host.publishedCount())
}

func TestEngine_AdIDWithoutKeyIsNotAnAdIDEvent(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(NewEvent("Content", TypeGenericIdentity, SourceRequestContent, map[string]any{"other": 1}))
	f.drain(t)

	assert.Empty(t, f.host.dispatchedWith(TypeEdgeConsent, SourceUpdateConsent))
	assert.Equal(t, 1, f.host.publishedCount())
}

func TestEngine_LegacyECIDUpdates(t *testing.T) {
	f := newFixture(t)
	f.engine.Enqueue(requestEvent(nil))
	f.drain(t)

	f.host.setState(identity.LegacyStateOwner, map[string]any{identity.LegacyStateECID: "legacy-1"})
	f.engine.Enqueue(sharedStateEvent(identity.LegacyStateOwner))
	f.drain(t)

	props := f.host.lastPublished(t)
	assert.Equal(t, ecid1, props.ECID().String())
	assert.Equal(t, "legacy-1", props.ECIDSecondary().String())
	published := f.host.publishedCount()

	// Same legacy ECID again: nothing to publish.
	f.engine.Enqueue(sharedStateEvent(identity.LegacyStateOwner))
	f.drain(t)
	assert.Equal(t, published, f.host.publishedCount())

	f.host.setState(identity.LegacyStateOwner, map[string]any{})
	f.engine.Enqueue(sharedStateEvent(identity.LegacyStateOwner))
	f.drain(t)
	assert.True(t, f.host.lastPublished(t).ECIDSecondary().IsZero())
}

func TestEngine_OtherSharedStateOwnersIgnored(t *testing.T) {
	f := newFixture(t)

	f.engine.Enqueue(sharedStateEvent("com.adobe.module.configuration"))
	assert.Equal(t, 1, f.drain(t))
	assert.Equal(t, 1, f.host.publishedCount(), "boot snapshot only")
	assert.Empty(t, f.host.dispatched)
}

func TestEngine_PublishFailureIsHandlerError(t *testing.T) {
	f := newFixture(t)
	f.engine.Enqueue(requestEvent(nil))
	f.drain(t)

	f.host.failPublish = true
	err := f.engine.HandleEvent(context.Background(), updateEvent(identityMapData("Email", "x@example.com")))
	require.Error(t, err)
	assert.True(t, IsHandlerError(err))
	assert.True(t, errors.Is(err, errHostDown))

	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, routeUpdate, he.Route)

	// State is kept and persisted even though publishing failed.
	assert.Equal(t, []string{"x@example.com"}, itemIDs(f.persisted(t).Map().ItemsForNamespace("Email")))
}

func TestEngine_EnqueueStampsIDAndSeq(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.engine.Enqueue(requestEvent(nil)))
	require.True(t, f.engine.Enqueue(Event{ID: "explicit", Type: TypeEdgeIdentity, Source: SourceRequestIdentity}))

	first, ok := f.engine.queue.TryDequeue()
	require.True(t, ok)
	second, ok := f.engine.queue.TryDequeue()
	require.True(t, ok)

	assert.Equal(t, "ev-1", first.ID)
	assert.Equal(t, "explicit", second.ID)
	assert.Less(t, first.Seq, second.Seq)
}

func TestEngine_RunProcessesUntilStopped(t *testing.T) {
	f := newFixture(t)

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()

	f.engine.Enqueue(updateEvent(identityMapData("Email", "user@example.com")))
	f.engine.Enqueue(requestEvent(nil))
	f.engine.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.False(t, f.engine.Enqueue(requestEvent(nil)), "enqueue after stop")
	assert.Len(t, f.host.dispatchedWith(TypeEdgeIdentity, SourceResponseIdentity), 1)
}

func TestEngine_RunReturnsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEngine_DrainHonorsContext(t *testing.T) {
	f := newFixture(t)
	f.engine.Enqueue(requestEvent(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := f.engine.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, f.engine.Pending())
}
