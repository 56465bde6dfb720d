package selector

import (
	"time"

	"github.com/MrSnakeDoc/selectord/internal/domain"
)

// ─────────────────────────────────────────────────────────────────
// spec -> records
// ─────────────────────────────────────────────────────────────────

func newSelector(spec *domain.ProxySelectorSpec, id string, now time.Time) *domain.ProxySelector {
	return &domain.ProxySelector{
		ID:          id,
		Name:        spec.Name,
		Type:        spec.Type,
		ForwardPort: spec.ForwardPort,
		Props:       spec.Props,
		DateCreated: now,
		DateUpdated: now,
	}
}

// newDiscovery is named after the selector and always selector scoped.
func newDiscovery(spec *domain.ProxySelectorSpec, id string, now time.Time) *domain.Discovery {
	return &domain.Discovery{
		ID:          id,
		Name:        spec.Name,
		Type:        spec.Discovery.Type,
		ServerList:  spec.Discovery.ServerList,
		Level:       domain.DiscoveryLevelSelector,
		Props:       spec.Discovery.Props,
		DateCreated: now,
		DateUpdated: now,
	}
}

// newHandler carries the selector props, not the discovery props.
func newHandler(spec *domain.ProxySelectorSpec, id, discoveryID string, now time.Time) *domain.DiscoveryHandler {
	return &domain.DiscoveryHandler{
		ID:           id,
		DiscoveryID:  discoveryID,
		ListenerNode: spec.ListenerNode,
		Handler:      spec.Handler,
		Props:        spec.Props,
		DateCreated:  now,
		DateUpdated:  now,
	}
}

func newRelation(spec *domain.ProxySelectorSpec, id, handlerID, selectorID string, now time.Time) *domain.DiscoveryRelation {
	pluginName := spec.PluginName
	if pluginName == "" {
		pluginName = spec.Name
	}
	return &domain.DiscoveryRelation{
		ID:                 id,
		PluginName:         pluginName,
		DiscoveryHandlerID: handlerID,
		ProxySelectorID:    selectorID,
		SelectorID:         "",
		DateCreated:        now,
		DateUpdated:        now,
	}
}

// newUpstreams builds one fresh row per submitted entry. handlerID may be
// empty on update; the writer fills it once the handler is located.
func newUpstreams(specs []domain.UpstreamSpec, handlerID string, ids IDGenerator, now time.Time) []*domain.DiscoveryUpstream {
	out := make([]*domain.DiscoveryUpstream, 0, len(specs))
	for _, s := range specs {
		out = append(out, &domain.DiscoveryUpstream{
			ID:                 ids.NewID(),
			DiscoveryHandlerID: handlerID,
			Protocol:           s.Protocol,
			URL:                s.URL,
			Status:             s.Status,
			Weight:             s.Weight,
			Props:              s.Props,
			DateCreated:        now,
			DateUpdated:        now,
		})
	}
	return out
}

// applyHandler mutates an existing handler from an update spec.
func applyHandler(h *domain.DiscoveryHandler, spec *domain.ProxySelectorSpec, now time.Time) {
	h.Handler = spec.Handler
	h.ListenerNode = spec.ListenerNode
	h.Props = spec.Props
	h.DateUpdated = now
}

// applyDiscovery mutates an existing discovery from an update spec. Name,
// type and level are fixed at creation.
func applyDiscovery(d *domain.Discovery, spec *domain.ProxySelectorSpec, now time.Time) {
	d.ServerList = spec.Discovery.ServerList
	d.Props = spec.Discovery.Props
	d.DateUpdated = now
}

// ─────────────────────────────────────────────────────────────────
// records -> views
// ─────────────────────────────────────────────────────────────────

func toView(ps *domain.ProxySelector) *domain.ProxySelectorView {
	return &domain.ProxySelectorView{
		ID:          ps.ID,
		Name:        ps.Name,
		Type:        ps.Type,
		ForwardPort: ps.ForwardPort,
		Props:       ps.Props,
		CreateTime:  ps.DateCreated,
		UpdateTime:  ps.DateUpdated,
		Upstreams:   []*domain.UpstreamView{},
	}
}

func toDiscoveryView(d *domain.Discovery) *domain.DiscoveryView {
	return &domain.DiscoveryView{
		ID:         d.ID,
		Name:       d.Name,
		Type:       d.Type,
		ServerList: d.ServerList,
		Level:      d.Level,
		Props:      d.Props,
	}
}

func toUpstreamViews(ups []*domain.DiscoveryUpstream) []*domain.UpstreamView {
	out := make([]*domain.UpstreamView, 0, len(ups))
	for _, up := range ups {
		out = append(out, &domain.UpstreamView{
			ID:                 up.ID,
			DiscoveryHandlerID: up.DiscoveryHandlerID,
			Protocol:           up.Protocol,
			URL:                up.URL,
			Status:             up.Status,
			Weight:             up.Weight,
			Props:              up.Props,
			DateCreated:        up.DateCreated,
			DateUpdated:        up.DateUpdated,
		})
	}
	return out
}
