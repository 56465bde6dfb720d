// Package memory is an in-process store backend. It keeps every entity in
// maps guarded by a RWMutex and implements transactions by cloning the whole
// state and swapping it in on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

var _ store.Store = (*Store)(nil)

type state struct {
	selectors   map[string]*domain.ProxySelector     // ID -> ProxySelector
	discoveries map[string]*domain.Discovery         // ID -> Discovery
	handlers    map[string]*domain.DiscoveryHandler  // ID -> DiscoveryHandler
	relations   map[string]*domain.DiscoveryRelation // ID -> DiscoveryRelation
	upstreams   map[string]*domain.DiscoveryUpstream // ID -> DiscoveryUpstream
}

func newState() *state {
	return &state{
		selectors:   make(map[string]*domain.ProxySelector),
		discoveries: make(map[string]*domain.Discovery),
		handlers:    make(map[string]*domain.DiscoveryHandler),
		relations:   make(map[string]*domain.DiscoveryRelation),
		upstreams:   make(map[string]*domain.DiscoveryUpstream),
	}
}

func (s *state) clone() *state {
	return &state{
		selectors:   cloneMap(s.selectors),
		discoveries: cloneMap(s.discoveries),
		handlers:    cloneMap(s.handlers),
		relations:   cloneMap(s.relations),
		upstreams:   cloneMap(s.upstreams),
	}
}

func cloneMap[T any](m map[string]*T) map[string]*T {
	out := make(map[string]*T, len(m))
	for k, v := range m {
		out[k] = cp(v)
	}
	return out
}

func cp[T any](v *T) *T {
	c := *v
	return &c
}

// Store is the in-memory backend.
type Store struct {
	txMu sync.Mutex   // serializes writers, transactional or not
	mu   sync.RWMutex // guards st
	st   *state
}

// New creates an empty memory store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Name() string                 { return "memory" }
func (s *Store) Ping(_ context.Context) error { return nil }
func (s *Store) Close() error                 { return nil }

// InTx runs fn against a private clone of the state. The clone replaces the
// live state only if fn succeeds. Writers are serialized store-wide, which
// covers the per-selector requirement of lockKey.
func (s *Store) InTx(ctx context.Context, _ string, fn store.TxFunc) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &repos{access: direct{st: work}}); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) ProxySelectors() store.ProxySelectorRepository { return s.live().ProxySelectors() }
func (s *Store) Discoveries() store.DiscoveryRepository        { return s.live().Discoveries() }
func (s *Store) Handlers() store.DiscoveryHandlerRepository    { return s.live().Handlers() }
func (s *Store) Relations() store.DiscoveryRelationRepository  { return s.live().Relations() }
func (s *Store) Upstreams() store.DiscoveryUpstreamRepository  { return s.live().Upstreams() }

func (s *Store) live() *repos { return &repos{access: locked{s: s}} }

// access abstracts how repositories reach the state: under the store locks
// for live access, or directly on a transaction's private clone.
type access interface {
	read(fn func(st *state) error) error
	write(fn func(st *state) error) error
}

type locked struct{ s *Store }

func (l locked) read(fn func(st *state) error) error {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return fn(l.s.st)
}

func (l locked) write(fn func(st *state) error) error {
	l.s.txMu.Lock()
	defer l.s.txMu.Unlock()
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return fn(l.s.st)
}

type direct struct{ st *state }

func (d direct) read(fn func(st *state) error) error  { return fn(d.st) }
func (d direct) write(fn func(st *state) error) error { return fn(d.st) }

type repos struct{ access access }

func (r *repos) ProxySelectors() store.ProxySelectorRepository { return selectorRepo{r.access} }
func (r *repos) Discoveries() store.DiscoveryRepository        { return discoveryRepo{r.access} }
func (r *repos) Handlers() store.DiscoveryHandlerRepository    { return handlerRepo{r.access} }
func (r *repos) Relations() store.DiscoveryRelationRepository  { return relationRepo{r.access} }
func (r *repos) Upstreams() store.DiscoveryUpstreamRepository  { return upstreamRepo{r.access} }

// ─────────────────────────────────────────────────────────────────
// Proxy selectors
// ─────────────────────────────────────────────────────────────────

type selectorRepo struct{ a access }

func (r selectorRepo) Insert(_ context.Context, ps *domain.ProxySelector) error {
	return r.a.write(func(st *state) error {
		if _, ok := st.selectors[ps.ID]; ok {
			return fmt.Errorf("proxy selector %s: %w", ps.ID, store.ErrDuplicate)
		}
		st.selectors[ps.ID] = cp(ps)
		return nil
	})
}

func (r selectorRepo) Update(_ context.Context, ps *domain.ProxySelector) error {
	return r.a.write(func(st *state) error {
		cur, ok := st.selectors[ps.ID]
		if !ok {
			return fmt.Errorf("proxy selector %s: %w", ps.ID, store.ErrNotFound)
		}
		cur.Name = ps.Name
		cur.Type = ps.Type
		cur.ForwardPort = ps.ForwardPort
		cur.Props = ps.Props
		cur.DateUpdated = ps.DateUpdated
		return nil
	})
}

func (r selectorRepo) SelectByID(_ context.Context, id string) (*domain.ProxySelector, error) {
	var out *domain.ProxySelector
	err := r.a.read(func(st *state) error {
		ps, ok := st.selectors[id]
		if !ok {
			return fmt.Errorf("proxy selector %s: %w", id, store.ErrNotFound)
		}
		out = cp(ps)
		return nil
	})
	return out, err
}

func (r selectorRepo) SelectByName(_ context.Context, name string) (*domain.ProxySelector, error) {
	var out *domain.ProxySelector
	err := r.a.read(func(st *state) error {
		var matched []*domain.ProxySelector
		for _, ps := range st.selectors {
			if ps.Name == name {
				matched = append(matched, ps)
			}
		}
		if len(matched) == 0 {
			return fmt.Errorf("proxy selector named %q: %w", name, store.ErrNotFound)
		}
		// most recently updated wins, like the other backends
		store.SortSelectors(matched)
		out = cp(matched[0])
		return nil
	})
	return out, err
}

func (r selectorRepo) SelectByQuery(_ context.Context, f store.SelectorFilter) ([]*domain.ProxySelector, int, error) {
	var matched []*domain.ProxySelector
	_ = r.a.read(func(st *state) error {
		for _, ps := range st.selectors {
			matched = append(matched, cp(ps))
		}
		return nil
	})

	matched = store.FilterByName(matched, f.NameContains)
	store.SortSelectors(matched)
	return store.Page(matched, f.Offset, f.Limit), len(matched), nil
}

func (r selectorRepo) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	deleted := 0
	err := r.a.write(func(st *state) error {
		for _, id := range ids {
			if _, ok := st.selectors[id]; ok {
				delete(st.selectors, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

// ─────────────────────────────────────────────────────────────────
// Discoveries
// ─────────────────────────────────────────────────────────────────

type discoveryRepo struct{ a access }

func (r discoveryRepo) Insert(_ context.Context, d *domain.Discovery) error {
	return r.a.write(func(st *state) error {
		if _, ok := st.discoveries[d.ID]; ok {
			return fmt.Errorf("discovery %s: %w", d.ID, store.ErrDuplicate)
		}
		st.discoveries[d.ID] = cp(d)
		return nil
	})
}

func (r discoveryRepo) Update(_ context.Context, d *domain.Discovery) error {
	return r.a.write(func(st *state) error {
		if _, ok := st.discoveries[d.ID]; !ok {
			return fmt.Errorf("discovery %s: %w", d.ID, store.ErrNotFound)
		}
		st.discoveries[d.ID] = cp(d)
		return nil
	})
}

func (r discoveryRepo) SelectByID(_ context.Context, id string) (*domain.Discovery, error) {
	var out *domain.Discovery
	err := r.a.read(func(st *state) error {
		d, ok := st.discoveries[id]
		if !ok {
			return fmt.Errorf("discovery %s: %w", id, store.ErrNotFound)
		}
		out = cp(d)
		return nil
	})
	return out, err
}

func (r discoveryRepo) DeleteByID(_ context.Context, id string) error {
	return r.a.write(func(st *state) error {
		delete(st.discoveries, id)
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────
// Discovery handlers
// ─────────────────────────────────────────────────────────────────

type handlerRepo struct{ a access }

func (r handlerRepo) Insert(_ context.Context, h *domain.DiscoveryHandler) error {
	return r.a.write(func(st *state) error {
		if _, ok := st.handlers[h.ID]; ok {
			return fmt.Errorf("discovery handler %s: %w", h.ID, store.ErrDuplicate)
		}
		st.handlers[h.ID] = cp(h)
		return nil
	})
}

func (r handlerRepo) Update(_ context.Context, h *domain.DiscoveryHandler) error {
	return r.a.write(func(st *state) error {
		if _, ok := st.handlers[h.ID]; !ok {
			return fmt.Errorf("discovery handler %s: %w", h.ID, store.ErrNotFound)
		}
		st.handlers[h.ID] = cp(h)
		return nil
	})
}

func (r handlerRepo) SelectByID(_ context.Context, id string) (*domain.DiscoveryHandler, error) {
	var out *domain.DiscoveryHandler
	err := r.a.read(func(st *state) error {
		h, ok := st.handlers[id]
		if !ok {
			return fmt.Errorf("discovery handler %s: %w", id, store.ErrNotFound)
		}
		out = cp(h)
		return nil
	})
	return out, err
}

func (r handlerRepo) CountByDiscoveryID(_ context.Context, discoveryID string) (int, error) {
	n := 0
	err := r.a.read(func(st *state) error {
		for _, h := range st.handlers {
			if h.DiscoveryID == discoveryID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r handlerRepo) DeleteByID(_ context.Context, id string) error {
	return r.a.write(func(st *state) error {
		delete(st.handlers, id)
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────
// Discovery relations
// ─────────────────────────────────────────────────────────────────

type relationRepo struct{ a access }

func (r relationRepo) Insert(_ context.Context, rel *domain.DiscoveryRelation) error {
	return r.a.write(func(st *state) error {
		if _, ok := st.relations[rel.ID]; ok {
			return fmt.Errorf("discovery relation %s: %w", rel.ID, store.ErrDuplicate)
		}
		for _, existing := range st.relations {
			if existing.ProxySelectorID == rel.ProxySelectorID {
				return fmt.Errorf("discovery relation for proxy selector %s: %w", rel.ProxySelectorID, store.ErrDuplicate)
			}
		}
		st.relations[rel.ID] = cp(rel)
		return nil
	})
}

func (r relationRepo) SelectByProxySelectorID(_ context.Context, proxySelectorID string) (*domain.DiscoveryRelation, error) {
	var out *domain.DiscoveryRelation
	err := r.a.read(func(st *state) error {
		for _, rel := range st.relations {
			if rel.ProxySelectorID == proxySelectorID {
				out = cp(rel)
				return nil
			}
		}
		return fmt.Errorf("discovery relation for proxy selector %s: %w", proxySelectorID, store.ErrNotFound)
	})
	return out, err
}

func (r relationRepo) SelectAll(_ context.Context) ([]*domain.DiscoveryRelation, error) {
	var out []*domain.DiscoveryRelation
	err := r.a.read(func(st *state) error {
		out = make([]*domain.DiscoveryRelation, 0, len(st.relations))
		for _, rel := range st.relations {
			out = append(out, cp(rel))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r relationRepo) DeleteByID(_ context.Context, id string) error {
	return r.a.write(func(st *state) error {
		delete(st.relations, id)
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────
// Discovery upstreams
// ─────────────────────────────────────────────────────────────────

type upstreamRepo struct{ a access }

func (r upstreamRepo) InsertBatch(_ context.Context, ups []*domain.DiscoveryUpstream) error {
	return r.a.write(func(st *state) error {
		seen := make(map[string]struct{}, len(ups))
		for _, up := range ups {
			_, stored := st.upstreams[up.ID]
			_, batched := seen[up.ID]
			if stored || batched {
				return fmt.Errorf("discovery upstream %s: %w", up.ID, store.ErrDuplicate)
			}
			seen[up.ID] = struct{}{}
		}
		for _, up := range ups {
			st.upstreams[up.ID] = cp(up)
		}
		return nil
	})
}

func (r upstreamRepo) SelectByHandlerID(_ context.Context, handlerID string) ([]*domain.DiscoveryUpstream, error) {
	var out []*domain.DiscoveryUpstream
	err := r.a.read(func(st *state) error {
		for _, up := range st.upstreams {
			if up.DiscoveryHandlerID == handlerID {
				out = append(out, cp(up))
			}
		}
		return nil
	})
	store.SortUpstreams(out)
	return out, err
}

func (r upstreamRepo) DeleteByHandlerID(_ context.Context, handlerID string) (int, error) {
	deleted := 0
	err := r.a.write(func(st *state) error {
		for id, up := range st.upstreams {
			if up.DiscoveryHandlerID == handlerID {
				delete(st.upstreams, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}
