package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MrSnakeDoc/selectord/internal/config"
	"github.com/MrSnakeDoc/selectord/internal/httpserver"
	"github.com/MrSnakeDoc/selectord/internal/httpserver/deps"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/metrics"
	"github.com/MrSnakeDoc/selectord/internal/redis"
	"github.com/MrSnakeDoc/selectord/internal/scheduler"
	"github.com/MrSnakeDoc/selectord/internal/selector"
	"github.com/MrSnakeDoc/selectord/internal/store"
	"github.com/MrSnakeDoc/selectord/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/selectord/internal/store/redis"
	"github.com/MrSnakeDoc/selectord/internal/store/sqlstore"
	"github.com/MrSnakeDoc/selectord/internal/utils"
	"github.com/MrSnakeDoc/selectord/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	server   *httpserver.Server
	store    store.Store
	auditor  *scheduler.ConsistencyAuditor
	seed     *scheduler.SeedReloader
	orphans  *scheduler.OrphanCollector
	registry *prometheus.Registry
}

// Components are the pieces shared by the daemon and one-shot commands.
type Components struct {
	Logger   logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    store.Store
	Service  *selector.Service
}

// Build opens the store and the service described by cfg.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Components, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	st, err := OpenStore(ctx, cfg, log, m)
	if err != nil {
		return nil, err
	}
	log.Info("store initialized", logger.String("driver", st.Name()))

	svc := selector.NewService(st, log, selector.Options{
		Metrics:         m,
		ViewConcurrency: cfg.ViewConcurrency,
	})

	return &Components{Logger: log, Registry: reg, Metrics: m, Store: st, Service: svc}, nil
}

// OpenStore connects the backend named by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger, m *metrics.Metrics) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("memory store selected: data is lost on restart")
		return memory.New(), nil

	case config.DriverRedis:
		// fail fast if unavailable
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisstore.NewStore(client, log,
			redisstore.WithTxRetries(uint64(cfg.RedisTxRetries), redisstore.DefaultTxRetryWait),
			redisstore.WithConflictHook(m.TxConflicts.Inc),
		), nil

	case config.DriverSQLite, config.DriverPostgres, config.DriverMySQL:
		st, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	c, err := Build(ctx, cfg, loggerClient)
	if err != nil {
		return nil, err
	}

	auditor := scheduler.NewConsistencyAuditor(c.Store, loggerClient, c.Metrics)

	// Seed reloader (if a seed file is configured)
	var seed *scheduler.SeedReloader
	var reloadTrigger chan struct{}
	if cfg.SeedFile != "" {
		loggerClient.Info("seed file configured, initializing seed reloader",
			logger.String("file", cfg.SeedFile))
		reloadTrigger = make(chan struct{}, 1)
		seed = scheduler.NewSeedReloader(
			cfg.SeedFile,
			c.Service,
			c.Store,
			loggerClient,
			c.Metrics,
			cfg.ReloadInterval,
			cfg.WatchSeedFile,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("seed file not configured, seeding disabled")
	}

	var orphans *scheduler.OrphanCollector
	if cfg.OrphanGCInterval > 0 {
		orphans = scheduler.NewOrphanCollector(
			c.Store,
			loggerClient,
			c.Metrics,
			cfg.OrphanGCInterval,
			cfg.OrphanGrace,
		)
	} else {
		loggerClient.Info("orphan collector disabled")
	}

	// Dependencies passed to routes
	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		WriteRatePerMin: cfg.WriteRatePerMin,
		WriteRateBurst:  cfg.WriteRateBurst,
		Service:         c.Service,
		Store:           c.Store,
		Auditor:         auditor,
		Seed:            seed,
		Orphans:         orphans,
		Metrics:         c.Metrics,
		Gatherer:        c.Registry,
		ReloadTrigger:   reloadTrigger,
	}

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		server:   httpserver.New(cfg, loggerClient, d),
		store:    c.Store,
		auditor:  auditor,
		seed:     seed,
		orphans:  orphans,
		registry: c.Registry,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("🚀 Starting " + version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start seed reloader (applies the seed and starts periodic refresh)
	if a.seed != nil {
		if err := a.seed.Start(ctx); err != nil {
			return fmt.Errorf("failed to start seed reloader: %w", err)
		}
		a.logger.Info("seed reloader started",
			logger.Duration("interval", a.cfg.ReloadInterval),
			logger.Bool("watch", a.cfg.WatchSeedFile))
	}

	// Report broken chains left by earlier runs
	if _, err := a.auditor.Audit(ctx); err != nil {
		a.logger.Warn("startup consistency audit failed", logger.Error(err))
	}

	if a.orphans != nil {
		if err := a.orphans.Start(ctx); err != nil {
			return fmt.Errorf("failed to start orphan collector: %w", err)
		}
		a.logger.Info("orphan collector started",
			logger.Duration("interval", a.cfg.OrphanGCInterval),
			logger.Duration("grace", a.cfg.OrphanGrace))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	if a.seed != nil {
		a.seed.Stop()
	}
	if a.orphans != nil {
		a.orphans.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	utils.MustClose(a.store, a.store.Name()+" store", a.logger)
	_ = a.logger.Sync()

	if runErr == nil {
		a.logger.Info("✅ selectord stopped cleanly")
	}
	return runErr
}
