// Package selector owns the proxy selector discovery graph: it assembles
// specs into records, writes them transactionally and joins them back into
// views.
package selector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/metrics"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

// Options tunes a Service. Zero values pick production defaults.
type Options struct {
	IDs             IDGenerator
	Now             func() time.Time
	Metrics         *metrics.Metrics
	ViewConcurrency int
}

// Service exposes the proxy selector operations.
type Service struct {
	store     store.Store
	assembler *Assembler
	writer    *Writer
	views     *ViewBuilder
	log       logger.Logger
	metrics   *metrics.Metrics
}

func NewService(st store.Store, log logger.Logger, opts Options) *Service {
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}

	return &Service{
		store:     st,
		assembler: NewAssembler(opts.IDs, opts.Now),
		writer:    NewWriter(st, log, opts.Metrics),
		views:     NewViewBuilder(st, opts.ViewConcurrency),
		log:       log.Named("selector"),
		metrics:   opts.Metrics,
	}
}

// ListByPage returns one page of selector views filtered by name substring,
// newest update first.
func (s *Service) ListByPage(ctx context.Context, q domain.PageQuery) (*domain.Pager[*domain.ProxySelectorView], error) {
	defer s.observe("list", time.Now())

	q = q.Normalize()
	list, total, err := s.store.ProxySelectors().SelectByQuery(ctx, store.SelectorFilter{
		NameContains: q.Name,
		Offset:       q.Offset(),
		Limit:        q.PageSize,
	})
	if err != nil {
		s.count("list", err)
		return nil, fmt.Errorf("query proxy selectors: %w", err)
	}

	views, err := s.views.Build(ctx, list)
	s.count("list", err)
	if err != nil {
		return nil, err
	}
	return domain.NewPager(q, total, views), nil
}

// CreateOrUpdate updates when spec carries an id, creates otherwise.
func (s *Service) CreateOrUpdate(ctx context.Context, spec *domain.ProxySelectorSpec) (string, error) {
	if spec != nil && spec.IsUpdate() {
		return s.Update(ctx, spec)
	}
	return s.Create(ctx, spec)
}

func (s *Service) Create(ctx context.Context, spec *domain.ProxySelectorSpec) (string, error) {
	defer s.observe("create", time.Now())

	g, err := s.assembler.AssembleCreate(spec)
	if err != nil {
		s.count("create", err)
		return "", err
	}

	err = s.writer.Create(ctx, g)
	s.count("create", err)
	if err != nil {
		s.log.Warn("proxy selector create failed",
			logger.String("name", spec.Name),
			logger.Error(err))
		return "", err
	}

	s.log.Info("proxy selector created",
		logger.String("id", g.Selector.ID),
		logger.String("name", g.Selector.Name),
		logger.Int("upstreams", len(g.Upstreams)))
	return domain.MsgCreateSuccess, nil
}

func (s *Service) Update(ctx context.Context, spec *domain.ProxySelectorSpec) (string, error) {
	defer s.observe("update", time.Now())

	g, err := s.assembler.AssembleUpdate(spec)
	if err != nil {
		s.count("update", err)
		return "", err
	}

	err = s.writer.Update(ctx, g)
	s.count("update", err)
	if err != nil {
		s.log.Warn("proxy selector update failed",
			logger.String("id", spec.ID),
			logger.Error(err))
		return "", err
	}
	return domain.MsgUpdateSuccess, nil
}

// Delete removes the proxy selector rows named by ids. Their discovery
// chains stay in place until the orphan collector reclaims them.
func (s *Service) Delete(ctx context.Context, ids []string) (string, error) {
	defer s.observe("delete", time.Now())

	clean := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		clean = append(clean, id)
	}
	if len(clean) == 0 {
		err := invalid("ids must not be empty")
		s.count("delete", err)
		return "", err
	}

	n, err := s.writer.Delete(ctx, clean)
	s.count("delete", err)
	if err != nil {
		return "", err
	}

	s.log.Info("proxy selectors deleted",
		logger.Strings("ids", clean),
		logger.Int("deleted", n))
	return domain.MsgDeleteSuccess, nil
}

func (s *Service) observe(op string, start time.Time) {
	s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *Service) count(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation):
		result = "invalid"
	default:
		result = "error"
	}
	s.metrics.OperationsTotal.WithLabelValues(op, result).Inc()
}
