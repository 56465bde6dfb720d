package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

// ─────────────────────────────────────────────────────────────────
// Proxy selectors
// ─────────────────────────────────────────────────────────────────

type selectorRepo struct{ c conn }

func (r selectorRepo) Insert(ctx context.Context, ps *domain.ProxySelector) error {
	key := ProxySelectorKey(ps.ID)
	found, err := exists(ctx, r.c, key)
	if err != nil {
		return fmt.Errorf("failed to check proxy selector: %w", err)
	}
	if found {
		return fmt.Errorf("proxy selector %s: %w", ps.ID, store.ErrDuplicate)
	}
	return r.save(ctx, ps)
}

func (r selectorRepo) Update(ctx context.Context, ps *domain.ProxySelector) error {
	cur, err := getJSON[domain.ProxySelector](ctx, r.c, ProxySelectorKey(ps.ID), "proxy selector", ps.ID)
	if err != nil {
		return err
	}
	cur.Name = ps.Name
	cur.Type = ps.Type
	cur.ForwardPort = ps.ForwardPort
	cur.Props = ps.Props
	cur.DateUpdated = ps.DateUpdated
	return r.save(ctx, cur)
}

func (r selectorRepo) save(ctx context.Context, ps *domain.ProxySelector) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("failed to marshal proxy selector: %w", err)
	}
	return r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, ProxySelectorKey(ps.ID), data, 0)
		pipe.SAdd(ctx, AllProxySelectorsKey(), ps.ID)
	})
}

func (r selectorRepo) SelectByID(ctx context.Context, id string) (*domain.ProxySelector, error) {
	return getJSON[domain.ProxySelector](ctx, r.c, ProxySelectorKey(id), "proxy selector", id)
}

func (r selectorRepo) SelectByName(ctx context.Context, name string) (*domain.ProxySelector, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	store.SortSelectors(all)
	for _, ps := range all {
		if ps.Name == name {
			return ps, nil
		}
	}
	return nil, fmt.Errorf("proxy selector named %q: %w", name, store.ErrNotFound)
}

func (r selectorRepo) SelectByQuery(ctx context.Context, f store.SelectorFilter) ([]*domain.ProxySelector, int, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, 0, err
	}
	matched := store.FilterByName(all, f.NameContains)
	store.SortSelectors(matched)
	return store.Page(matched, f.Offset, f.Limit), len(matched), nil
}

func (r selectorRepo) all(ctx context.Context) ([]*domain.ProxySelector, error) {
	ids, err := members(ctx, r.c, AllProxySelectorsKey())
	if err != nil {
		return nil, err
	}
	return getManyJSON[domain.ProxySelector](ctx, r.c, keysFor(ids, ProxySelectorKey), "proxy selectors")
}

func (r selectorRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	var found []string
	for _, id := range ids {
		ok, err := exists(ctx, r.c, ProxySelectorKey(id))
		if err != nil {
			return 0, fmt.Errorf("failed to check proxy selector: %w", err)
		}
		if ok {
			found = append(found, id)
		}
	}
	if len(found) == 0 {
		return 0, nil
	}

	err := r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, keysFor(found, ProxySelectorKey)...)
		pipe.SRem(ctx, AllProxySelectorsKey(), toAny(found)...)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete proxy selectors: %w", err)
	}
	return len(found), nil
}

// ─────────────────────────────────────────────────────────────────
// Discoveries
// ─────────────────────────────────────────────────────────────────

type discoveryRepo struct{ c conn }

func (r discoveryRepo) Insert(ctx context.Context, d *domain.Discovery) error {
	found, err := exists(ctx, r.c, DiscoveryKey(d.ID))
	if err != nil {
		return fmt.Errorf("failed to check discovery: %w", err)
	}
	if found {
		return fmt.Errorf("discovery %s: %w", d.ID, store.ErrDuplicate)
	}
	return r.save(ctx, d)
}

func (r discoveryRepo) Update(ctx context.Context, d *domain.Discovery) error {
	found, err := exists(ctx, r.c, DiscoveryKey(d.ID))
	if err != nil {
		return fmt.Errorf("failed to check discovery: %w", err)
	}
	if !found {
		return fmt.Errorf("discovery %s: %w", d.ID, store.ErrNotFound)
	}
	return r.save(ctx, d)
}

func (r discoveryRepo) save(ctx context.Context, d *domain.Discovery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery: %w", err)
	}
	return r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, DiscoveryKey(d.ID), data, 0)
		pipe.SAdd(ctx, AllDiscoveriesKey(), d.ID)
	})
}

func (r discoveryRepo) SelectByID(ctx context.Context, id string) (*domain.Discovery, error) {
	return getJSON[domain.Discovery](ctx, r.c, DiscoveryKey(id), "discovery", id)
}

func (r discoveryRepo) DeleteByID(ctx context.Context, id string) error {
	return r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, DiscoveryKey(id))
		pipe.SRem(ctx, AllDiscoveriesKey(), id)
	})
}

// ─────────────────────────────────────────────────────────────────
// Discovery handlers
// ─────────────────────────────────────────────────────────────────

type handlerRepo struct{ c conn }

func (r handlerRepo) Insert(ctx context.Context, h *domain.DiscoveryHandler) error {
	found, err := exists(ctx, r.c, HandlerKey(h.ID))
	if err != nil {
		return fmt.Errorf("failed to check discovery handler: %w", err)
	}
	if found {
		return fmt.Errorf("discovery handler %s: %w", h.ID, store.ErrDuplicate)
	}
	return r.save(ctx, h, "")
}

func (r handlerRepo) Update(ctx context.Context, h *domain.DiscoveryHandler) error {
	cur, err := getJSON[domain.DiscoveryHandler](ctx, r.c, HandlerKey(h.ID), "discovery handler", h.ID)
	if err != nil {
		return err
	}
	return r.save(ctx, h, cur.DiscoveryID)
}

// save writes h and moves it between discovery indexes when its discovery
// changed from previous.
func (r handlerRepo) save(ctx context.Context, h *domain.DiscoveryHandler, previous string) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery handler: %w", err)
	}
	return r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, HandlerKey(h.ID), data, 0)
		pipe.SAdd(ctx, AllHandlersKey(), h.ID)
		if previous != "" && previous != h.DiscoveryID {
			pipe.SRem(ctx, HandlersByDiscoveryKey(previous), h.ID)
		}
		pipe.SAdd(ctx, HandlersByDiscoveryKey(h.DiscoveryID), h.ID)
	})
}

func (r handlerRepo) SelectByID(ctx context.Context, id string) (*domain.DiscoveryHandler, error) {
	return getJSON[domain.DiscoveryHandler](ctx, r.c, HandlerKey(id), "discovery handler", id)
}

func (r handlerRepo) CountByDiscoveryID(ctx context.Context, discoveryID string) (int, error) {
	key := HandlersByDiscoveryKey(discoveryID)
	if err := r.c.watch(ctx, key); err != nil {
		return 0, fmt.Errorf("failed to watch handler index: %w", err)
	}
	n, err := r.c.reader().SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count discovery handlers: %w", err)
	}
	return int(n), nil
}

func (r handlerRepo) DeleteByID(ctx context.Context, id string) error {
	h, err := r.SelectByID(ctx, id)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, HandlerKey(id))
		pipe.SRem(ctx, AllHandlersKey(), id)
		pipe.SRem(ctx, HandlersByDiscoveryKey(h.DiscoveryID), id)
	})
}

// ─────────────────────────────────────────────────────────────────
// Discovery relations
// ─────────────────────────────────────────────────────────────────

type relationRepo struct{ c conn }

func (r relationRepo) Insert(ctx context.Context, rel *domain.DiscoveryRelation) error {
	found, err := exists(ctx, r.c, RelationKey(rel.ID))
	if err != nil {
		return fmt.Errorf("failed to check discovery relation: %w", err)
	}
	if found {
		return fmt.Errorf("discovery relation %s: %w", rel.ID, store.ErrDuplicate)
	}

	byProxy := RelationByProxySelectorKey(rel.ProxySelectorID)
	taken, err := exists(ctx, r.c, byProxy)
	if err != nil {
		return fmt.Errorf("failed to check discovery relation: %w", err)
	}
	if taken {
		return fmt.Errorf("discovery relation for proxy selector %s: %w", rel.ProxySelectorID, store.ErrDuplicate)
	}

	data, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery relation: %w", err)
	}
	return r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, RelationKey(rel.ID), data, 0)
		pipe.SAdd(ctx, AllRelationsKey(), rel.ID)
		pipe.Set(ctx, byProxy, rel.ID, 0)
	})
}

func (r relationRepo) SelectByProxySelectorID(ctx context.Context, proxySelectorID string) (*domain.DiscoveryRelation, error) {
	byProxy := RelationByProxySelectorKey(proxySelectorID)
	if err := r.c.watch(ctx, byProxy); err != nil {
		return nil, fmt.Errorf("failed to watch relation index: %w", err)
	}

	id, err := r.c.reader().Get(ctx, byProxy).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("discovery relation for proxy selector %s: %w", proxySelectorID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relation index: %w", err)
	}

	return getJSON[domain.DiscoveryRelation](ctx, r.c, RelationKey(id), "discovery relation", id)
}

func (r relationRepo) SelectAll(ctx context.Context) ([]*domain.DiscoveryRelation, error) {
	ids, err := members(ctx, r.c, AllRelationsKey())
	if err != nil {
		return nil, err
	}
	out, err := getManyJSON[domain.DiscoveryRelation](ctx, r.c, keysFor(ids, RelationKey), "discovery relations")
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r relationRepo) DeleteByID(ctx context.Context, id string) error {
	rel, err := getJSON[domain.DiscoveryRelation](ctx, r.c, RelationKey(id), "discovery relation", id)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, RelationKey(id), RelationByProxySelectorKey(rel.ProxySelectorID))
		pipe.SRem(ctx, AllRelationsKey(), id)
	})
}

// ─────────────────────────────────────────────────────────────────
// Discovery upstreams
// ─────────────────────────────────────────────────────────────────

type upstreamRepo struct{ c conn }

func (r upstreamRepo) InsertBatch(ctx context.Context, ups []*domain.DiscoveryUpstream) error {
	if len(ups) == 0 {
		return nil
	}

	payloads := make([][]byte, len(ups))
	seen := make(map[string]struct{}, len(ups))
	for i, up := range ups {
		found, err := exists(ctx, r.c, UpstreamKey(up.ID))
		if err != nil {
			return fmt.Errorf("failed to check discovery upstream: %w", err)
		}
		if _, batched := seen[up.ID]; found || batched {
			return fmt.Errorf("discovery upstream %s: %w", up.ID, store.ErrDuplicate)
		}
		seen[up.ID] = struct{}{}
		if payloads[i], err = json.Marshal(up); err != nil {
			return fmt.Errorf("failed to marshal discovery upstream %s: %w", up.ID, err)
		}
	}

	return r.c.write(ctx, func(pipe redis.Pipeliner) {
		for i, up := range ups {
			pipe.Set(ctx, UpstreamKey(up.ID), payloads[i], 0)
			pipe.SAdd(ctx, AllUpstreamsKey(), up.ID)
			pipe.SAdd(ctx, UpstreamsByHandlerKey(up.DiscoveryHandlerID), up.ID)
		}
	})
}

func (r upstreamRepo) SelectByHandlerID(ctx context.Context, handlerID string) ([]*domain.DiscoveryUpstream, error) {
	ids, err := members(ctx, r.c, UpstreamsByHandlerKey(handlerID))
	if err != nil {
		return nil, err
	}
	out, err := getManyJSON[domain.DiscoveryUpstream](ctx, r.c, keysFor(ids, UpstreamKey), "discovery upstreams")
	if err != nil {
		return nil, err
	}
	store.SortUpstreams(out)
	return out, nil
}

func (r upstreamRepo) DeleteByHandlerID(ctx context.Context, handlerID string) (int, error) {
	byHandler := UpstreamsByHandlerKey(handlerID)
	ids, err := members(ctx, r.c, byHandler)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = r.c.write(ctx, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, keysFor(ids, UpstreamKey)...)
		pipe.SRem(ctx, AllUpstreamsKey(), toAny(ids)...)
		pipe.Del(ctx, byHandler)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete discovery upstreams: %w", err)
	}
	return len(ids), nil
}
