package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedV1 = `version: 1
selectors:
  - name: svc-a
    type: tcp
    forwardPort: 9000
    discovery:
      type: zookeeper
      serverList: zk:2181
    listenerNode: /svc-a
    upstreams:
      - url: 10.0.0.1:80
`

const seedV2 = `version: 1
selectors:
  - name: svc-a
    type: tcp
    forwardPort: 9100
    discovery:
      type: zookeeper
      serverList: zk:2181
    listenerNode: /svc-a
    upstreams:
      - url: 10.0.0.7:80
      - url: 10.0.0.8:80
  - name: svc-b
    forwardPort: 9200
    discovery:
      type: etcd
    listenerNode: /svc-b
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSeedReloader_Reload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, seedV1)

	sr := NewSeedReloader(path, f.service, f.store, f.log, f.metrics, 0, false, nil)
	require.NoError(t, sr.Reload(ctx))

	ps, err := f.store.ProxySelectors().SelectByName(ctx, "svc-a")
	require.NoError(t, err)
	assert.Equal(t, 9000, ps.ForwardPort)
	firstID := ps.ID

	writeFile(t, path, seedV2)
	require.NoError(t, sr.Reload(ctx))

	ps, err = f.store.ProxySelectors().SelectByName(ctx, "svc-a")
	require.NoError(t, err)
	assert.Equal(t, firstID, ps.ID, "matched by name, updated in place")
	assert.Equal(t, 9100, ps.ForwardPort)

	rel, err := f.store.Relations().SelectByProxySelectorID(ctx, ps.ID)
	require.NoError(t, err)
	ups, err := f.store.Upstreams().SelectByHandlerID(ctx, rel.DiscoveryHandlerID)
	require.NoError(t, err)
	assert.Len(t, ups, 2)

	_, err = f.store.ProxySelectors().SelectByName(ctx, "svc-b")
	assert.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SeedApplied.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SeedApplied.WithLabelValues("updated")))

	status := sr.Status()
	assert.Equal(t, 2, status.Selectors)
	assert.Empty(t, status.LastError)
	assert.False(t, status.LastReload.IsZero())
}

func TestSeedReloader_ReportsFailedEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, `selectors:
  - name: svc-bad
    forwardPort: 0
    discovery:
      type: zookeeper
  - name: svc-good
    forwardPort: 9000
    discovery:
      type: zookeeper
    listenerNode: /svc-good
`)

	sr := NewSeedReloader(path, f.service, f.store, f.log, f.metrics, 0, false, nil)
	err := sr.Reload(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `selector "svc-bad"`)
	var entryErrs *EntryErrors
	require.ErrorAs(t, err, &entryErrs)
	assert.Equal(t, 1, entryErrs.Failed)

	_, err = f.store.ProxySelectors().SelectByName(ctx, "svc-good")
	assert.NoError(t, err, "one bad entry does not block the rest")
	assert.NotEmpty(t, sr.Status().LastError)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SeedApplied.WithLabelValues("failed")))
}

func TestSeedReloader_StartToleratesBrokenEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// svc-a exists but lost its relation, so updating it is inconsistent.
	id := f.create(t, spec("svc-a", 9000, "10.0.0.1:80"))
	rel, err := f.store.Relations().SelectByProxySelectorID(ctx, id)
	require.NoError(t, err)
	require.NoError(t, f.store.Relations().DeleteByID(ctx, rel.ID))

	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, seedV2)

	sr := NewSeedReloader(path, f.service, f.store, f.log, f.metrics, time.Hour, false, nil)
	require.NoError(t, sr.Start(ctx))
	t.Cleanup(sr.Stop)

	_, err = f.store.ProxySelectors().SelectByName(ctx, "svc-b")
	assert.NoError(t, err)

	status := sr.Status()
	assert.Contains(t, status.LastError, `selector "svc-a"`)
	assert.Equal(t, 2, status.Selectors)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SeedApplied.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SeedApplied.WithLabelValues("created")))
}

func TestSeedReloader_StartFailsOnInvalidFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, "version: 2\n")

	sr := NewSeedReloader(path, f.service, f.store, f.log, f.metrics, time.Hour, false, nil)
	assert.Error(t, sr.Start(context.Background()))
}

func TestSeedReloader_StartFailsOnMissingFile(t *testing.T) {
	f := newFixture(t)
	sr := NewSeedReloader(filepath.Join(t.TempDir(), "missing.yaml"), f.service, f.store, f.log, f.metrics, time.Hour, false, nil)
	assert.Error(t, sr.Start(context.Background()))
}

func TestSeedReloader_ManualTrigger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, seedV1)

	trigger := make(chan struct{}, 1)
	sr := NewSeedReloader(path, f.service, f.store, f.log, f.metrics, time.Hour, false, trigger)
	require.NoError(t, sr.Start(ctx))
	defer sr.Stop()

	writeFile(t, path, seedV2)
	trigger <- struct{}{}

	require.Eventually(t, func() bool {
		_, err := f.store.ProxySelectors().SelectByName(ctx, "svc-b")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSeedReloader_WatchesFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeFile(t, path, seedV1)

	sr := NewSeedReloader(path, f.service, f.store, f.log, f.metrics, 0, true, nil)
	sr.debounce = 10 * time.Millisecond
	require.NoError(t, sr.Start(ctx))
	defer sr.Stop()

	writeFile(t, path, seedV2)

	require.Eventually(t, func() bool {
		ps, err := f.store.ProxySelectors().SelectByName(ctx, "svc-a")
		return err == nil && ps.ForwardPort == 9100
	}, 3*time.Second, 20*time.Millisecond)
}
