package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/metrics"
	"github.com/MrSnakeDoc/selectord/internal/selector"
	"github.com/MrSnakeDoc/selectord/internal/sources/seed"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

// DefaultWatchDebounce coalesces the burst of events editors emit on save.
const DefaultWatchDebounce = 250 * time.Millisecond

// SeedStatus describes the last seed reload.
type SeedStatus struct {
	File       string    `json:"file"`
	LastReload time.Time `json:"last_reload"`
	Selectors  int       `json:"selectors"`
	LastError  string    `json:"last_error,omitempty"`
}

// EntryErrors reports seed entries that could not be applied. The other
// entries of the same reload were applied.
type EntryErrors struct {
	Failed int
	Err    error
}

func (e *EntryErrors) Error() string {
	return fmt.Sprintf("%d seed entries failed: %v", e.Failed, e.Err)
}

func (e *EntryErrors) Unwrap() error { return e.Err }

// SeedReloader applies a seed file of proxy selectors on start, on a ticker,
// when the file changes and on manual trigger.
type SeedReloader struct {
	loader        *seed.Loader
	mapper        *seed.Mapper
	service       *selector.Service
	store         store.Store
	logger        logger.Logger
	metrics       *metrics.Metrics
	interval      time.Duration
	watch         bool
	debounce      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	manualTrigger chan struct{}

	mu     sync.RWMutex
	status SeedStatus
}

// NewSeedReloader creates a new seed reloader. interval <= 0 disables the ticker.
func NewSeedReloader(
	seedFile string,
	svc *selector.Service,
	st store.Store,
	log logger.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	watch bool,
	manualTrigger chan struct{},
) *SeedReloader {
	return &SeedReloader{
		loader:        seed.NewLoader(seedFile),
		mapper:        seed.NewMapper(),
		service:       svc,
		store:         st,
		logger:        log.Named("seed_reloader"),
		metrics:       m,
		interval:      interval,
		watch:         watch,
		debounce:      DefaultWatchDebounce,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		status:        SeedStatus{File: seedFile},
	}
}

// Start applies the seed once, then keeps it applied in the background.
// Only an unreadable or invalid file fails Start; entries that cannot be
// applied are logged and kept in Status.
func (sr *SeedReloader) Start(ctx context.Context) error {
	// Load immediately on start
	if err := sr.Reload(ctx); err != nil {
		var entryErrs *EntryErrors
		if !errors.As(err, &entryErrs) {
			return fmt.Errorf("initial seed reload failed: %w", err)
		}
		sr.logger.Warn("initial seed applied with failures",
			logger.Int("failed", entryErrs.Failed),
			logger.Error(err))
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	var watcher *fsnotify.Watcher
	if sr.watch {
		w, err := sr.newWatcher()
		if err != nil {
			sr.logger.Warn("seed file watch disabled", logger.Error(err))
		} else {
			watcher = w
			events = w.Events
			watchErrs = w.Errors
		}
	}

	var tick <-chan time.Time
	var ticker *time.Ticker
	if sr.interval > 0 {
		ticker = time.NewTicker(sr.interval)
		tick = ticker.C
	}

	sr.wg.Add(1)
	go func() {
		defer sr.wg.Done()
		if ticker != nil {
			defer ticker.Stop()
		}
		if watcher != nil {
			defer func() { _ = watcher.Close() }()
		}

		var debounced <-chan time.Time
		for {
			select {
			case <-tick:
				sr.reloadLogged(ctx, "interval")
			case <-sr.manualTrigger:
				sr.logger.Info("manual seed reload triggered")
				sr.reloadLogged(ctx, "manual")
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if sr.isSeedEvent(ev) {
					debounced = time.After(sr.debounce)
				}
			case <-debounced:
				debounced = nil
				sr.reloadLogged(ctx, "file_change")
			case err, ok := <-watchErrs:
				if !ok {
					watchErrs = nil
					continue
				}
				sr.logger.Warn("seed file watch error", logger.Error(err))
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader and waits for its goroutine to exit.
func (sr *SeedReloader) Stop() {
	sr.stopOnce.Do(func() { close(sr.stopCh) })
	sr.wg.Wait()
}

// Status returns a snapshot of the last reload.
func (sr *SeedReloader) Status() SeedStatus {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return sr.status
}

// newWatcher watches the seed file's directory: editors that save through a
// rename would otherwise detach a watch placed on the file itself.
func (sr *SeedReloader) newWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(sr.loader.Path())
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	sr.logger.Info("watching seed file", logger.String("file", sr.loader.Path()))
	return w, nil
}

func (sr *SeedReloader) isSeedEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(sr.loader.Path()) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (sr *SeedReloader) reloadLogged(ctx context.Context, reason string) {
	if err := sr.Reload(ctx); err != nil {
		sr.logger.Error("failed to reload seed file",
			logger.String("reason", reason),
			logger.Error(err))
	}
}

// Reload loads the seed file and applies every entry: selectors found by
// name are updated, the others are created. One failing entry does not stop
// the others; their failures come back as one *EntryErrors.
func (sr *SeedReloader) Reload(ctx context.Context) error {
	sr.logger.Info("reloading seed file", logger.String("file", sr.loader.Path()))

	err := sr.reload(ctx)

	sr.mu.Lock()
	sr.status.LastReload = time.Now()
	sr.status.LastError = ""
	if err != nil {
		sr.status.LastError = err.Error()
	}
	sr.mu.Unlock()

	return err
}

func (sr *SeedReloader) reload(ctx context.Context) error {
	file, err := sr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load seed: %w", err)
	}

	specs, err := sr.mapper.MapSelectors(file)
	if err != nil {
		return fmt.Errorf("failed to map seed: %w", err)
	}

	var errs []error
	created, updated := 0, 0
	for _, spec := range specs {
		action, err := sr.apply(ctx, spec)
		sr.metrics.SeedApplied.WithLabelValues(action).Inc()
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("selector %q: %w", spec.Name, err))
		case action == "created":
			created++
		default:
			updated++
		}
	}

	sr.mu.Lock()
	sr.status.Selectors = len(specs)
	sr.mu.Unlock()

	sr.logger.Info("seed file applied",
		logger.Int("selectors", len(specs)),
		logger.Int("created", created),
		logger.Int("updated", updated),
		logger.Int("failed", len(errs)))

	if len(errs) > 0 {
		return &EntryErrors{Failed: len(errs), Err: errors.Join(errs...)}
	}
	return nil
}

func (sr *SeedReloader) apply(ctx context.Context, spec *domain.ProxySelectorSpec) (string, error) {
	existing, err := sr.store.ProxySelectors().SelectByName(ctx, spec.Name)
	switch {
	case store.IsNotFound(err):
		if _, err := sr.service.Create(ctx, spec); err != nil {
			return "failed", err
		}
		return "created", nil
	case err != nil:
		return "failed", fmt.Errorf("lookup by name: %w", err)
	}

	spec.ID = existing.ID
	if _, err := sr.service.Update(ctx, spec); err != nil {
		return "failed", err
	}
	return "updated", nil
}
