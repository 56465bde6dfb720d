package routes

import (
	"github.com/MrSnakeDoc/selectord/internal/httpserver/deps"
	"github.com/MrSnakeDoc/selectord/internal/httpserver/mw"
)

// adminGuards restrict a route to allowed client IPs and Host headers.
func adminGuards(d deps.Deps) []Middleware {
	return []Middleware{
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	}
}

// writeGuards return the per-client write rate limit, none when disabled.
func writeGuards(d deps.Deps) []Middleware {
	if d.WriteRatePerMin <= 0 {
		return nil
	}
	return []Middleware{mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.WriteRateBurst,
		RefillPerIPPerMin: d.WriteRatePerMin,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
		Logger:            d.Logger,
	})}
}
