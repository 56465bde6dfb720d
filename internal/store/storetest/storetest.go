// Package storetest holds the behaviour every store backend must share.
// Backends call Run from their own tests with a factory for a fresh store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

// Factory returns an empty store. Cleanup is the caller's business.
type Factory func(t *testing.T) store.Store

// At returns a deterministic millisecond-precision timestamp.
func At(sec int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)
}

// Run executes the shared suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ProxySelectorCRUD", func(t *testing.T) { testProxySelectorCRUD(t, newStore(t)) })
	t.Run("ProxySelectorQuery", func(t *testing.T) { testProxySelectorQuery(t, newStore(t)) })
	t.Run("ProxySelectorDuplicateName", func(t *testing.T) { testProxySelectorDuplicateName(t, newStore(t)) })
	t.Run("ProxySelectorDelete", func(t *testing.T) { testProxySelectorDelete(t, newStore(t)) })
	t.Run("Discovery", func(t *testing.T) { testDiscovery(t, newStore(t)) })
	t.Run("Handler", func(t *testing.T) { testHandler(t, newStore(t)) })
	t.Run("Relation", func(t *testing.T) { testRelation(t, newStore(t)) })
	t.Run("Upstreams", func(t *testing.T) { testUpstreams(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("TxSerializesSameKey", func(t *testing.T) { testTxSerializesSameKey(t, newStore(t)) })
}

func selector(id, name string, updated int) *domain.ProxySelector {
	return &domain.ProxySelector{
		ID:          id,
		Name:        name,
		Type:        "tcp",
		ForwardPort: 9000,
		Props:       `{"k":"v"}`,
		DateCreated: At(0),
		DateUpdated: At(updated),
	}
}

func testProxySelectorCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.ProxySelectors()

	ps := selector("ps-1", "svc-a", 1)
	require.NoError(t, repo.Insert(ctx, ps))

	err := repo.Insert(ctx, selector("ps-1", "other", 1))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := repo.SelectByID(ctx, "ps-1")
	require.NoError(t, err)
	if diff := cmp.Diff(ps, got); diff != "" {
		t.Errorf("SelectByID() mismatch (-want +got):\n%s", diff)
	}

	byName, err := repo.SelectByName(ctx, "svc-a")
	require.NoError(t, err)
	assert.Equal(t, "ps-1", byName.ID)

	_, err = repo.SelectByName(ctx, "missing")
	assert.True(t, store.IsNotFound(err), "SelectByName(missing) = %v, want not found", err)

	_, err = repo.SelectByID(ctx, "missing")
	assert.True(t, store.IsNotFound(err), "SelectByID(missing) = %v, want not found", err)

	changed := *ps
	changed.Name = "svc-b"
	changed.ForwardPort = 9100
	changed.Props = ""
	changed.DateUpdated = At(5)
	require.NoError(t, repo.Update(ctx, &changed))

	got, err = repo.SelectByID(ctx, "ps-1")
	require.NoError(t, err)
	assert.Equal(t, "svc-b", got.Name)
	assert.Equal(t, 9100, got.ForwardPort)
	assert.Equal(t, "", got.Props)
	assert.True(t, got.DateCreated.Equal(At(0)), "Update() must not touch DateCreated")
	assert.True(t, got.DateUpdated.Equal(At(5)))

	err = repo.Update(ctx, selector("missing", "x", 1))
	assert.True(t, store.IsNotFound(err), "Update(missing) = %v, want not found", err)
}

// Names are not unique; SelectByName returns the most recently updated
// match, ties broken by id.
func testProxySelectorDuplicateName(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.ProxySelectors()

	for i, updated := range []int{3, 7, 1, 5, 7, 2, 6, 4} {
		require.NoError(t, repo.Insert(ctx, selector(fmt.Sprintf("ps-%d", i), "dup", updated)))
	}

	for range 50 {
		got, err := repo.SelectByName(ctx, "dup")
		require.NoError(t, err)
		require.Equal(t, "ps-1", got.ID)
	}
}

func testProxySelectorQuery(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.ProxySelectors()

	require.NoError(t, repo.Insert(ctx, selector("b", "svc-alpha", 3)))
	require.NoError(t, repo.Insert(ctx, selector("a", "svc-beta", 3)))
	require.NoError(t, repo.Insert(ctx, selector("c", "svc-alphabet", 7)))
	require.NoError(t, repo.Insert(ctx, selector("d", "db", 9)))

	tests := []struct {
		name      string
		filter    store.SelectorFilter
		wantIDs   []string
		wantTotal int
	}{
		{"all", store.SelectorFilter{}, []string{"d", "c", "a", "b"}, 4},
		{"name contains", store.SelectorFilter{NameContains: "alpha"}, []string{"c", "b"}, 2},
		{"first page", store.SelectorFilter{Limit: 2}, []string{"d", "c"}, 4},
		{"second page", store.SelectorFilter{Offset: 2, Limit: 2}, []string{"a", "b"}, 4},
		{"past the end", store.SelectorFilter{Offset: 10, Limit: 2}, []string{}, 4},
		{"no match", store.SelectorFilter{NameContains: "zzz"}, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := repo.SelectByQuery(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			ids := make([]string, 0, len(list))
			for _, ps := range list {
				ids = append(ids, ps.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func testProxySelectorDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.ProxySelectors()

	require.NoError(t, repo.Insert(ctx, selector("ps-1", "one", 1)))
	require.NoError(t, repo.Insert(ctx, selector("ps-2", "two", 1)))

	n, err := repo.DeleteByIDs(ctx, []string{"ps-1", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.SelectByID(ctx, "ps-1")
	assert.True(t, store.IsNotFound(err))
	_, err = repo.SelectByID(ctx, "ps-2")
	assert.NoError(t, err)

	n, err = repo.DeleteByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testDiscovery(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Discoveries()

	d := &domain.Discovery{
		ID: "d-1", Name: "svc-a", Type: "zookeeper", ServerList: "zk:2181",
		Level: domain.DiscoveryLevelSelector, Props: "{}",
		DateCreated: At(0), DateUpdated: At(0),
	}
	require.NoError(t, repo.Insert(ctx, d))
	assert.ErrorIs(t, repo.Insert(ctx, d), store.ErrDuplicate)

	d.ServerList = "zk2:2181"
	d.DateUpdated = At(4)
	require.NoError(t, repo.Update(ctx, d))

	got, err := repo.SelectByID(ctx, "d-1")
	require.NoError(t, err)
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("SelectByID() mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, repo.DeleteByID(ctx, "d-1"))
	_, err = repo.SelectByID(ctx, "d-1")
	assert.True(t, store.IsNotFound(err))
	assert.True(t, store.IsNotFound(repo.Update(ctx, d)))
}

func testHandler(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Handlers()

	for i, discoveryID := range []string{"d-1", "d-1", "d-2"} {
		h := &domain.DiscoveryHandler{
			ID: fmt.Sprintf("h-%d", i), DiscoveryID: discoveryID,
			ListenerNode: "/shenyu/svc-a", Handler: `{"url":"url"}`,
			DateCreated: At(0), DateUpdated: At(0),
		}
		require.NoError(t, repo.Insert(ctx, h))
	}

	n, err := repo.CountByDiscoveryID(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	h, err := repo.SelectByID(ctx, "h-0")
	require.NoError(t, err)
	h.ListenerNode = "/shenyu/svc-b"
	h.Props = `{"a":1}`
	require.NoError(t, repo.Update(ctx, h))

	got, err := repo.SelectByID(ctx, "h-0")
	require.NoError(t, err)
	if diff := cmp.Diff(h, got); diff != "" {
		t.Errorf("SelectByID() mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, repo.DeleteByID(ctx, "h-0"))
	n, err = repo.CountByDiscoveryID(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testRelation(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Relations()

	rel := &domain.DiscoveryRelation{
		ID: "r-1", PluginName: "svc-a", DiscoveryHandlerID: "h-1",
		ProxySelectorID: "ps-1", DateCreated: At(0), DateUpdated: At(0),
	}
	require.NoError(t, repo.Insert(ctx, rel))

	dup := *rel
	dup.ID = "r-2"
	assert.ErrorIs(t, repo.Insert(ctx, &dup), store.ErrDuplicate, "one relation per proxy selector")

	got, err := repo.SelectByProxySelectorID(ctx, "ps-1")
	require.NoError(t, err)
	if diff := cmp.Diff(rel, got); diff != "" {
		t.Errorf("SelectByProxySelectorID() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, got.SelectorID)

	_, err = repo.SelectByProxySelectorID(ctx, "missing")
	assert.True(t, store.IsNotFound(err))

	other := &domain.DiscoveryRelation{
		ID: "r-0", PluginName: "svc-b", DiscoveryHandlerID: "h-2",
		ProxySelectorID: "ps-2", DateCreated: At(0), DateUpdated: At(0),
	}
	require.NoError(t, repo.Insert(ctx, other))

	all, err := repo.SelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "r-0", all[0].ID)
	assert.Equal(t, "r-1", all[1].ID)

	require.NoError(t, repo.DeleteByID(ctx, "r-1"))
	_, err = repo.SelectByProxySelectorID(ctx, "ps-1")
	assert.True(t, store.IsNotFound(err))
}

func testUpstreams(t *testing.T, s store.Store) {
	ctx := context.Background()
	repo := s.Upstreams()

	ups := []*domain.DiscoveryUpstream{
		{ID: "u-2", DiscoveryHandlerID: "h-1", Protocol: "tcp", URL: "10.0.0.2:80", Status: 0, Weight: 20, DateCreated: At(1), DateUpdated: At(1)},
		{ID: "u-1", DiscoveryHandlerID: "h-1", Protocol: "tcp", URL: "10.0.0.1:80", Status: 1, Weight: 10, DateCreated: At(1), DateUpdated: At(1)},
		{ID: "u-3", DiscoveryHandlerID: "h-2", Protocol: "http", URL: "10.0.0.3:80", DateCreated: At(0), DateUpdated: At(0)},
	}
	require.NoError(t, repo.InsertBatch(ctx, ups))
	require.NoError(t, repo.InsertBatch(ctx, nil))

	got, err := repo.SelectByHandlerID(ctx, "h-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u-1", got[0].ID)
	assert.Equal(t, "u-2", got[1].ID)
	if diff := cmp.Diff(ups[1], got[0]); diff != "" {
		t.Errorf("SelectByHandlerID() mismatch (-want +got):\n%s", diff)
	}

	none, err := repo.SelectByHandlerID(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := repo.DeleteByHandlerID(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err = repo.SelectByHandlerID(ctx, "h-2")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.InTx(ctx, "", func(ctx context.Context, tx store.Repositories) error {
		if err := tx.ProxySelectors().Insert(ctx, selector("ps-1", "svc-a", 1)); err != nil {
			return err
		}
		return tx.Upstreams().InsertBatch(ctx, []*domain.DiscoveryUpstream{
			{ID: "u-1", DiscoveryHandlerID: "h-1", URL: "10.0.0.1:80", DateCreated: At(1), DateUpdated: At(1)},
		})
	})
	require.NoError(t, err)

	_, err = s.ProxySelectors().SelectByID(ctx, "ps-1")
	assert.NoError(t, err)
	ups, err := s.Upstreams().SelectByHandlerID(ctx, "h-1")
	require.NoError(t, err)
	assert.Len(t, ups, 1)
}

var errBoom = errors.New("boom")

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.ProxySelectors().Insert(ctx, selector("ps-1", "svc-a", 1)))

	err := s.InTx(ctx, "ps-1", func(ctx context.Context, tx store.Repositories) error {
		changed := selector("ps-1", "renamed", 2)
		if err := tx.ProxySelectors().Update(ctx, changed); err != nil {
			return err
		}
		if err := tx.Discoveries().Insert(ctx, &domain.Discovery{ID: "d-1", DateCreated: At(0), DateUpdated: At(0)}); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	got, err := s.ProxySelectors().SelectByID(ctx, "ps-1")
	require.NoError(t, err)
	assert.Equal(t, "svc-a", got.Name, "rolled back update must not be visible")

	_, err = s.Discoveries().SelectByID(ctx, "d-1")
	assert.True(t, store.IsNotFound(err), "rolled back insert must not be visible")
}

// testTxSerializesSameKey runs read-modify-write transactions concurrently on
// one selector. Every increment must survive.
func testTxSerializesSameKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.ProxySelectors().Insert(ctx, selector("ps-1", "svc-a", 1)))

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InTx(ctx, "ps-1", func(ctx context.Context, tx store.Repositories) error {
				ps, err := tx.ProxySelectors().SelectByID(ctx, "ps-1")
				if err != nil {
					return err
				}
				ps.ForwardPort++
				return tx.ProxySelectors().Update(ctx, ps)
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.ProxySelectors().SelectByID(ctx, "ps-1")
	require.NoError(t, err)
	assert.Equal(t, 9000+workers, got.ForwardPort)
}
