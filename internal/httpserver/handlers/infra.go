package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/selectord/internal/httpserver/deps"
	"github.com/MrSnakeDoc/selectord/internal/scheduler"
)

// maxBrokenListed caps how many broken chains /infra lists.
const maxBrokenListed = 20

type componentStatus struct {
	OK        bool                    `json:"ok"`
	Enabled   *bool                   `json:"enabled,omitempty"`
	Driver    string                  `json:"driver,omitempty"`
	File      string                  `json:"file,omitempty"`
	LastRun   string                  `json:"last_run,omitempty"`
	Selectors *int                    `json:"selectors,omitempty"`
	Collected *int                    `json:"collected,omitempty"`
	Pending   *int                    `json:"pending,omitempty"`
	Broken    []scheduler.BrokenChain `json:"broken,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of the store and of the background workers. The
// consistency audit runs on every call.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		components := map[string]componentStatus{
			"store":            checkStore(ctx, d),
			"consistency":      checkConsistency(ctx, d),
			"seed":             seedStatus(d),
			"orphan_collector": orphanStatus(d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	// Store down = nothing works
	if st, ok := components["store"]; ok && !st.OK {
		return "critical"
	}
	for name, c := range components {
		if name != "store" && !c.OK {
			return "degraded"
		}
	}
	return "healthy"
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	status := componentStatus{OK: true, Driver: d.Store.Name()}
	if err := d.Store.Ping(ctx); err != nil {
		status.OK = false
		status.Error = err.Error()
	}
	return status
}

func checkConsistency(ctx context.Context, d deps.Deps) componentStatus {
	if d.Auditor == nil {
		return componentStatus{OK: true, Enabled: boolPtr(false)}
	}
	report, err := d.Auditor.Audit(ctx)
	if err != nil {
		return componentStatus{OK: false, Error: err.Error()}
	}

	broken := report.Broken
	if len(broken) > maxBrokenListed {
		broken = broken[:maxBrokenListed]
	}
	return componentStatus{
		OK:        len(report.Broken) == 0,
		LastRun:   report.CheckedAt.Format(time.RFC3339),
		Selectors: intPtr(report.Selectors),
		Broken:    broken,
	}
}

func seedStatus(d deps.Deps) componentStatus {
	if d.Seed == nil {
		return componentStatus{OK: true, Enabled: boolPtr(false)}
	}
	s := d.Seed.Status()
	lastRun := "never"
	if !s.LastReload.IsZero() {
		lastRun = s.LastReload.Format(time.RFC3339)
	}
	return componentStatus{
		OK:        s.LastError == "",
		Enabled:   boolPtr(true),
		File:      s.File,
		LastRun:   lastRun,
		Selectors: intPtr(s.Selectors),
		Error:     s.LastError,
	}
}

func orphanStatus(d deps.Deps) componentStatus {
	if d.Orphans == nil {
		return componentStatus{OK: true, Enabled: boolPtr(false)}
	}
	lastRun, collected := d.Orphans.Stats()
	last := "never"
	if !lastRun.IsZero() {
		last = lastRun.Format(time.RFC3339)
	}
	return componentStatus{
		OK:        true,
		Enabled:   boolPtr(true),
		LastRun:   last,
		Collected: intPtr(collected),
		Pending:   intPtr(d.Orphans.Pending()),
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
