package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/metrics"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

// auditPageSize bounds how many selectors one audit query loads.
const auditPageSize = 200

// BrokenChain is a proxy selector whose discovery chain is incomplete.
type BrokenChain struct {
	ProxySelectorID string `json:"proxy_selector_id"`
	Name            string `json:"name"`
	// Missing is the first absent link: relation, handler or discovery.
	Missing string `json:"missing"`
}

// AuditReport is the outcome of one consistency audit.
type AuditReport struct {
	CheckedAt time.Time     `json:"checked_at"`
	Selectors int           `json:"selectors"`
	Broken    []BrokenChain `json:"broken"`
}

// ConsistencyAuditor walks every proxy selector and reports the ones whose
// relation, handler or discovery is missing. Such selectors still list but
// cannot be updated.
type ConsistencyAuditor struct {
	store   store.Store
	logger  logger.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	last *AuditReport
}

func NewConsistencyAuditor(st store.Store, log logger.Logger, m *metrics.Metrics) *ConsistencyAuditor {
	return &ConsistencyAuditor{
		store:   st,
		logger:  log.Named("consistency_auditor"),
		metrics: m,
	}
}

// Last returns the previous report, nil before the first audit.
func (ca *ConsistencyAuditor) Last() *AuditReport {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.last
}

// Audit checks every chain and updates the broken chains gauge.
func (ca *ConsistencyAuditor) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{CheckedAt: time.Now(), Broken: []BrokenChain{}}

	for offset := 0; ; offset += auditPageSize {
		page, total, err := ca.store.ProxySelectors().SelectByQuery(ctx, store.SelectorFilter{
			Offset: offset,
			Limit:  auditPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list proxy selectors: %w", err)
		}
		report.Selectors = total

		for _, ps := range page {
			missing, err := ca.missingLink(ctx, ps.ID)
			if err != nil {
				return nil, err
			}
			if missing != "" {
				report.Broken = append(report.Broken, BrokenChain{
					ProxySelectorID: ps.ID,
					Name:            ps.Name,
					Missing:         missing,
				})
			}
		}

		if len(page) < auditPageSize || offset+len(page) >= total {
			break
		}
	}

	ca.metrics.BrokenChains.Set(float64(len(report.Broken)))

	ca.mu.Lock()
	ca.last = report
	ca.mu.Unlock()

	if len(report.Broken) > 0 {
		ca.logger.Warn("broken discovery chains found",
			logger.Int("selectors", report.Selectors),
			logger.Int("broken", len(report.Broken)))
	} else {
		ca.logger.Debug("discovery chains consistent",
			logger.Int("selectors", report.Selectors))
	}

	return report, nil
}

func (ca *ConsistencyAuditor) missingLink(ctx context.Context, selectorID string) (string, error) {
	rel, err := ca.store.Relations().SelectByProxySelectorID(ctx, selectorID)
	if store.IsNotFound(err) {
		return "relation", nil
	}
	if err != nil {
		return "", fmt.Errorf("load relation of %s: %w", selectorID, err)
	}

	h, err := ca.store.Handlers().SelectByID(ctx, rel.DiscoveryHandlerID)
	if store.IsNotFound(err) {
		return "handler", nil
	}
	if err != nil {
		return "", fmt.Errorf("load handler %s: %w", rel.DiscoveryHandlerID, err)
	}

	if _, err := ca.store.Discoveries().SelectByID(ctx, h.DiscoveryID); store.IsNotFound(err) {
		return "discovery", nil
	} else if err != nil {
		return "", fmt.Errorf("load discovery %s: %w", h.DiscoveryID, err)
	}
	return "", nil
}
