package deps

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/metrics"
	"github.com/MrSnakeDoc/selectord/internal/scheduler"
	"github.com/MrSnakeDoc/selectord/internal/selector"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time              // for testing, defaults to time.Now
	AllowedHosts    []string                      // Host headers allowed to reach the admin API
	AllowedCIDRS    []string                      // IPs allowed to reach the admin API and ops endpoints
	TrustProxy      bool                          // true if running behind a trusted reverse proxy
	WriteRatePerMin int                           // write requests refilled per client per minute, 0 disables
	WriteRateBurst  int                           // write requests a client may burst
	Service         *selector.Service             // proxy selector operations
	Store           store.Store                   // storage backend, pinged by /readyz
	Auditor         *scheduler.ConsistencyAuditor // chain audit shown on /infra
	Seed            *scheduler.SeedReloader       // nil when no seed file is configured
	Orphans         *scheduler.OrphanCollector    // nil when the collector is disabled
	Metrics         *metrics.Metrics              // instruments shared with the service
	Gatherer        prometheus.Gatherer           // served on /metrics
	ReloadTrigger   chan struct{}                 // manual seed reload (nil without seed file)
}

// Now returns d.TimeNow() or time.Now().
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
