package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/metrics"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

const (
	// DefaultOrphanGrace is how long an orphan must be observed before it is removed
	DefaultOrphanGrace = time.Hour
)

// errStillOwned aborts a reclaim whose proxy selector exists again.
var errStillOwned = errors.New("relation still owned by a proxy selector")

// OrphanCollector removes discovery chains left behind by deleted proxy
// selectors: the relation, the handler, its upstreams and the discovery when
// no other handler references it.
type OrphanCollector struct {
	store    store.Store
	logger   logger.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	firstSeen map[string]time.Time // relation id -> first time observed orphaned
	lastRun   time.Time
	collected int
}

// NewOrphanCollector creates a new orphan collector
func NewOrphanCollector(
	st store.Store,
	log logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	grace time.Duration,
) *OrphanCollector {
	if grace < 0 {
		grace = DefaultOrphanGrace
	}

	return &OrphanCollector{
		store:     st,
		logger:    log.Named("orphan_collector"),
		metrics:   m,
		interval:  interval,
		grace:     grace,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		firstSeen: make(map[string]time.Time),
	}
}

// Start begins the periodic collection process
func (oc *OrphanCollector) Start(ctx context.Context) error {
	if oc.interval <= 0 {
		return fmt.Errorf("orphan collector interval must be > 0, got %v", oc.interval)
	}

	// Run immediately on start
	if _, err := oc.Collect(ctx); err != nil {
		oc.logger.Warn("initial orphan collection failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(oc.interval)
	oc.wg.Add(1)
	go func() {
		defer oc.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := oc.Collect(ctx); err != nil {
					oc.logger.Error("orphan collection failed",
						logger.Error(err))
				}
			case <-oc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the collector and waits for its goroutine to exit.
func (oc *OrphanCollector) Stop() {
	oc.stopOnce.Do(func() { close(oc.stopCh) })
	oc.wg.Wait()
}

// Stats returns the time of the last run and the total chains removed.
func (oc *OrphanCollector) Stats() (lastRun time.Time, collected int) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.lastRun, oc.collected
}

// Pending returns how many orphans are waiting for their grace period.
func (oc *OrphanCollector) Pending() int {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return len(oc.firstSeen)
}

// Collect removes every orphaned chain observed for at least the grace
// period and returns how many were removed.
func (oc *OrphanCollector) Collect(ctx context.Context) (int, error) {
	oc.logger.Debug("running orphan collection")

	rels, err := oc.store.Relations().SelectAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list relations: %w", err)
	}

	now := oc.now()
	orphans, err := oc.findOrphans(ctx, rels)
	if err != nil {
		return 0, err
	}

	oc.mu.Lock()
	// forget relations that are gone or owned again
	for id := range oc.firstSeen {
		if _, ok := orphans[id]; !ok {
			delete(oc.firstSeen, id)
		}
	}
	var due []*domain.DiscoveryRelation
	for id, rel := range orphans {
		first, seen := oc.firstSeen[id]
		if !seen {
			first = now
			oc.firstSeen[id] = now
		}
		if now.Sub(first) >= oc.grace {
			due = append(due, rel)
		}
	}
	oc.mu.Unlock()

	collected := 0
	for _, rel := range due {
		err := oc.reclaim(ctx, rel)
		switch {
		case errors.Is(err, errStillOwned):
			oc.forget(rel.ID)
			continue
		case err != nil:
			oc.logger.Warn("failed to reclaim orphaned chain",
				logger.String("relation_id", rel.ID),
				logger.String("proxy_selector_id", rel.ProxySelectorID),
				logger.Error(err))
			continue
		}

		oc.forget(rel.ID)
		collected++
		oc.logger.Info("orphaned discovery chain collected",
			logger.String("relation_id", rel.ID),
			logger.String("proxy_selector_id", rel.ProxySelectorID),
			logger.String("handler_id", rel.DiscoveryHandlerID))
	}

	oc.metrics.OrphansCollected.Add(float64(collected))
	oc.mu.Lock()
	oc.lastRun = now
	oc.collected += collected
	oc.mu.Unlock()

	if collected > 0 {
		oc.logger.Info("orphan collection completed",
			logger.Int("collected", collected),
			logger.Int("pending", len(orphans)-collected))
	} else {
		oc.logger.Debug("no orphans to collect", logger.Int("pending", len(orphans)))
	}

	return collected, nil
}

func (oc *OrphanCollector) findOrphans(ctx context.Context, rels []*domain.DiscoveryRelation) (map[string]*domain.DiscoveryRelation, error) {
	orphans := make(map[string]*domain.DiscoveryRelation)
	for _, rel := range rels {
		_, err := oc.store.ProxySelectors().SelectByID(ctx, rel.ProxySelectorID)
		switch {
		case err == nil:
			continue
		case store.IsNotFound(err):
			orphans[rel.ID] = rel
		default:
			return nil, fmt.Errorf("load proxy selector %s: %w", rel.ProxySelectorID, err)
		}
	}
	return orphans, nil
}

func (oc *OrphanCollector) forget(relationID string) {
	oc.mu.Lock()
	delete(oc.firstSeen, relationID)
	oc.mu.Unlock()
}

// reclaim deletes one orphaned chain in a single transaction. All reads
// happen before the first write.
func (oc *OrphanCollector) reclaim(ctx context.Context, rel *domain.DiscoveryRelation) error {
	return oc.store.InTx(ctx, rel.ProxySelectorID, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.ProxySelectors().SelectByID(ctx, rel.ProxySelectorID); err == nil {
			return errStillOwned
		} else if !store.IsNotFound(err) {
			return err
		}

		var discoveryID string
		shared := 0
		h, err := tx.Handlers().SelectByID(ctx, rel.DiscoveryHandlerID)
		switch {
		case err == nil:
			discoveryID = h.DiscoveryID
			if shared, err = tx.Handlers().CountByDiscoveryID(ctx, discoveryID); err != nil {
				return fmt.Errorf("count handlers: %w", err)
			}
		case !store.IsNotFound(err):
			return fmt.Errorf("load handler: %w", err)
		}

		if _, err := tx.Upstreams().DeleteByHandlerID(ctx, rel.DiscoveryHandlerID); err != nil {
			return fmt.Errorf("delete upstreams: %w", err)
		}
		if err := tx.Relations().DeleteByID(ctx, rel.ID); err != nil {
			return fmt.Errorf("delete relation: %w", err)
		}
		if h == nil {
			return nil
		}
		if err := tx.Handlers().DeleteByID(ctx, h.ID); err != nil {
			return fmt.Errorf("delete handler: %w", err)
		}
		// shared counts this handler too
		if shared <= 1 {
			if err := tx.Discoveries().DeleteByID(ctx, discoveryID); err != nil {
				return fmt.Errorf("delete discovery: %w", err)
			}
		}
		return nil
	})
}
