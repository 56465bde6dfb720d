package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

func TestOrphanCollector_Collect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	keepID := f.create(t, spec("svc-keep", 9000, "10.0.0.1:80"))
	goneID := f.create(t, spec("svc-gone", 9001, "10.0.0.2:80", "10.0.0.3:80"))

	goneRel, err := f.store.Relations().SelectByProxySelectorID(ctx, goneID)
	require.NoError(t, err)
	goneHandler, err := f.store.Handlers().SelectByID(ctx, goneRel.DiscoveryHandlerID)
	require.NoError(t, err)

	_, err = f.service.Delete(ctx, []string{goneID})
	require.NoError(t, err)

	oc := NewOrphanCollector(f.store, f.log, f.metrics, time.Hour, 0)
	n, err := oc.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Orphaned chain is gone
	_, err = f.store.Relations().SelectByProxySelectorID(ctx, goneID)
	assert.True(t, store.IsNotFound(err))
	_, err = f.store.Handlers().SelectByID(ctx, goneHandler.ID)
	assert.True(t, store.IsNotFound(err))
	_, err = f.store.Discoveries().SelectByID(ctx, goneHandler.DiscoveryID)
	assert.True(t, store.IsNotFound(err))
	ups, err := f.store.Upstreams().SelectByHandlerID(ctx, goneHandler.ID)
	require.NoError(t, err)
	assert.Empty(t, ups)

	// Live chain is untouched
	keepRel, err := f.store.Relations().SelectByProxySelectorID(ctx, keepID)
	require.NoError(t, err)
	ups, err = f.store.Upstreams().SelectByHandlerID(ctx, keepRel.DiscoveryHandlerID)
	require.NoError(t, err)
	assert.Len(t, ups, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrphansCollected))
	_, total := oc.Stats()
	assert.Equal(t, 1, total)

	// Nothing left to do
	n, err = oc.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOrphanCollector_WaitsForGrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.create(t, spec("svc-gone", 9001, "10.0.0.2:80"))
	_, err := f.service.Delete(ctx, []string{id})
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	oc := NewOrphanCollector(f.store, f.log, f.metrics, time.Hour, 30*time.Minute)
	oc.now = func() time.Time { return now }

	n, err := oc.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "first sighting only starts the grace period")
	assert.Equal(t, 1, oc.Pending())

	now = now.Add(10 * time.Minute)
	n, err = oc.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(25 * time.Minute)
	n, err = oc.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, oc.Pending())
}

func TestOrphanCollector_KeepsSharedDiscovery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id := f.create(t, spec("svc-gone", 9001))
	rel, err := f.store.Relations().SelectByProxySelectorID(ctx, id)
	require.NoError(t, err)
	h, err := f.store.Handlers().SelectByID(ctx, rel.DiscoveryHandlerID)
	require.NoError(t, err)

	// A second handler on the same discovery, owned by something else
	require.NoError(t, f.store.Handlers().Insert(ctx, &domain.DiscoveryHandler{
		ID:          "other-handler",
		DiscoveryID: h.DiscoveryID,
	}))

	_, err = f.service.Delete(ctx, []string{id})
	require.NoError(t, err)

	oc := NewOrphanCollector(f.store, f.log, f.metrics, time.Hour, 0)
	n, err := oc.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.store.Handlers().SelectByID(ctx, h.ID)
	assert.True(t, store.IsNotFound(err))
	_, err = f.store.Discoveries().SelectByID(ctx, h.DiscoveryID)
	assert.NoError(t, err, "discovery still referenced by other-handler")
}

func TestOrphanCollector_ForgetsReownedRelations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rel := &domain.DiscoveryRelation{ID: "rel-1", ProxySelectorID: "ps-late", DiscoveryHandlerID: "h-1"}
	require.NoError(t, f.store.Relations().Insert(ctx, rel))

	oc := NewOrphanCollector(f.store, f.log, f.metrics, time.Hour, time.Hour)
	_, err := oc.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, oc.Pending())

	require.NoError(t, f.store.ProxySelectors().Insert(ctx, &domain.ProxySelector{ID: "ps-late", Name: "late"}))
	_, err = oc.Collect(ctx)
	require.NoError(t, err)
	assert.Zero(t, oc.Pending())
}

func TestOrphanCollector_StartStop(t *testing.T) {
	f := newFixture(t)
	oc := NewOrphanCollector(f.store, f.log, f.metrics, 10*time.Millisecond, 0)

	require.NoError(t, oc.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	oc.Stop()
	oc.Stop()

	lastRun, _ := oc.Stats()
	assert.False(t, lastRun.IsZero())
}

func TestOrphanCollector_RejectsZeroInterval(t *testing.T) {
	f := newFixture(t)
	oc := NewOrphanCollector(f.store, f.log, f.metrics, 0, 0)
	assert.Error(t, oc.Start(context.Background()))
}
