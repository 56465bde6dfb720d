package selector

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/metrics"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

// Writer persists assembled graphs. Every method is one InTx call, so a
// failure at any step leaves storage untouched.
type Writer struct {
	store   store.Store
	log     logger.Logger
	metrics *metrics.Metrics
}

func NewWriter(st store.Store, log logger.Logger, m *metrics.Metrics) *Writer {
	return &Writer{store: st, log: log, metrics: m}
}

// Create inserts selector, discovery, handler, relation and upstreams, in
// that order.
func (w *Writer) Create(ctx context.Context, g *domain.Graph) error {
	return w.store.InTx(ctx, "", func(ctx context.Context, tx store.Repositories) error {
		if err := tx.ProxySelectors().Insert(ctx, g.Selector); err != nil {
			return fmt.Errorf("insert proxy selector: %w", err)
		}
		if err := tx.Discoveries().Insert(ctx, g.Discovery); err != nil {
			return fmt.Errorf("insert discovery: %w", err)
		}
		if err := tx.Handlers().Insert(ctx, g.Handler); err != nil {
			return fmt.Errorf("insert discovery handler: %w", err)
		}
		if err := tx.Relations().Insert(ctx, g.Relation); err != nil {
			return fmt.Errorf("insert discovery relation: %w", err)
		}
		if len(g.Upstreams) > 0 {
			if err := tx.Upstreams().InsertBatch(ctx, g.Upstreams); err != nil {
				return fmt.Errorf("insert discovery upstreams: %w", err)
			}
		}
		return nil
	})
}

// Update overwrites the selector, walks relation -> handler -> discovery,
// mutates the last two and replaces the handler's upstream set. A missing
// selector is domain.ErrNotFound; a missing link in the chain is
// domain.ErrInconsistent.
func (w *Writer) Update(ctx context.Context, g *domain.Graph) error {
	selectorID := g.Selector.ID
	now := g.Selector.DateUpdated

	var handlerID string
	var deleted int

	err := w.store.InTx(ctx, selectorID, func(ctx context.Context, tx store.Repositories) error {
		if err := tx.ProxySelectors().Update(ctx, g.Selector); err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("proxy selector %s: %w", selectorID, domain.ErrNotFound)
			}
			return fmt.Errorf("update proxy selector: %w", err)
		}

		rel, err := tx.Relations().SelectByProxySelectorID(ctx, selectorID)
		if err != nil {
			return chainErr(err, "no discovery relation for proxy selector %s", selectorID)
		}

		h, err := tx.Handlers().SelectByID(ctx, rel.DiscoveryHandlerID)
		if err != nil {
			return chainErr(err, "discovery handler %s of proxy selector %s is missing", rel.DiscoveryHandlerID, selectorID)
		}

		d, err := tx.Discoveries().SelectByID(ctx, h.DiscoveryID)
		if err != nil {
			return chainErr(err, "discovery %s of handler %s is missing", h.DiscoveryID, h.ID)
		}

		applyHandler(h, g.Spec, now)
		if err := tx.Handlers().Update(ctx, h); err != nil {
			return fmt.Errorf("update discovery handler: %w", err)
		}

		applyDiscovery(d, g.Spec, now)
		if err := tx.Discoveries().Update(ctx, d); err != nil {
			return fmt.Errorf("update discovery: %w", err)
		}

		n, err := tx.Upstreams().DeleteByHandlerID(ctx, h.ID)
		if err != nil {
			return fmt.Errorf("delete discovery upstreams: %w", err)
		}

		for _, up := range g.Upstreams {
			up.DiscoveryHandlerID = h.ID
		}
		if len(g.Upstreams) > 0 {
			if err := tx.Upstreams().InsertBatch(ctx, g.Upstreams); err != nil {
				return fmt.Errorf("insert discovery upstreams: %w", err)
			}
		}

		handlerID, deleted = h.ID, n
		return nil
	})
	if err != nil {
		return err
	}

	w.metrics.UpstreamsReplaced.WithLabelValues("deleted").Add(float64(deleted))
	w.metrics.UpstreamsReplaced.WithLabelValues("inserted").Add(float64(len(g.Upstreams)))
	w.log.Info("discovery upstreams replaced",
		logger.String("proxy_selector_id", selectorID),
		logger.String("handler_id", handlerID),
		logger.Int("deleted", deleted),
		logger.Int("inserted", len(g.Upstreams)))
	return nil
}

// Delete removes proxy selector rows only; the rest of each chain is left
// for the orphan collector.
func (w *Writer) Delete(ctx context.Context, ids []string) (int, error) {
	var deleted int
	err := w.store.InTx(ctx, "", func(ctx context.Context, tx store.Repositories) error {
		n, err := tx.ProxySelectors().DeleteByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("delete proxy selectors: %w", err)
		}
		deleted = n
		return nil
	})
	return deleted, err
}

// chainErr maps a not-found on a chain lookup to domain.ErrInconsistent.
func chainErr(err error, format string, args ...any) error {
	if store.IsNotFound(err) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrInconsistent)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
