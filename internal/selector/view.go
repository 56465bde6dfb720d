package selector

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

// DefaultViewConcurrency bounds how many views of a page are joined at once.
const DefaultViewConcurrency = 8

// ViewBuilder joins selectors with their discovery chain. It is read only
// and tolerates broken chains.
type ViewBuilder struct {
	repos       store.Repositories
	concurrency int
}

func NewViewBuilder(repos store.Repositories, concurrency int) *ViewBuilder {
	if concurrency < 1 {
		concurrency = DefaultViewConcurrency
	}
	return &ViewBuilder{repos: repos, concurrency: concurrency}
}

// Build returns one view per selector, in input order.
func (b *ViewBuilder) Build(ctx context.Context, list []*domain.ProxySelector) ([]*domain.ProxySelectorView, error) {
	views := make([]*domain.ProxySelectorView, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, ps := range list {
		g.Go(func() error {
			view, err := b.BuildOne(gctx, ps)
			if err != nil {
				return fmt.Errorf("build view of proxy selector %s: %w", ps.ID, err)
			}
			views[i] = view
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// BuildOne joins relation -> handler -> discovery and the handler's
// upstreams. A missing relation or handler leaves the discovery fields
// empty; a missing discovery still keeps handler fields and upstreams.
func (b *ViewBuilder) BuildOne(ctx context.Context, ps *domain.ProxySelector) (*domain.ProxySelectorView, error) {
	view := toView(ps)

	rel, err := b.repos.Relations().SelectByProxySelectorID(ctx, ps.ID)
	if store.IsNotFound(err) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	h, err := b.repos.Handlers().SelectByID(ctx, rel.DiscoveryHandlerID)
	if store.IsNotFound(err) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	view.ListenerNode = h.ListenerNode
	view.Handler = h.Handler

	d, err := b.repos.Discoveries().SelectByID(ctx, h.DiscoveryID)
	switch {
	case err == nil:
		view.Discovery = toDiscoveryView(d)
	case !store.IsNotFound(err):
		return nil, err
	}

	ups, err := b.repos.Upstreams().SelectByHandlerID(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	view.Upstreams = toUpstreamViews(ups)
	return view, nil
}
