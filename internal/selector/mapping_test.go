package selector

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrSnakeDoc/selectord/internal/domain"
)

func TestNewRelationDefaultsPluginName(t *testing.T) {
	spec := svcA()
	rel := newRelation(spec, "r-1", "h-1", "ps-1", fixedNow)

	want := &domain.DiscoveryRelation{
		ID:                 "r-1",
		PluginName:         "svc-a",
		DiscoveryHandlerID: "h-1",
		ProxySelectorID:    "ps-1",
		SelectorID:         "",
		DateCreated:        fixedNow,
		DateUpdated:        fixedNow,
	}
	if diff := cmp.Diff(want, rel); diff != "" {
		t.Errorf("newRelation() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyHandlerAndDiscovery(t *testing.T) {
	spec := svcA()
	spec.Handler = "weighted"
	spec.Props = "selector-props"
	spec.Discovery.ServerList = "new:2181"
	spec.Discovery.Props = "discovery-props"

	h := &domain.DiscoveryHandler{ID: "h-1", DiscoveryID: "d-1", DateCreated: fixedNow}
	applyHandler(h, spec, fixedNow)
	if h.Handler != "weighted" || h.Props != "selector-props" || h.ListenerNode != "/svc-a" {
		t.Errorf("applyHandler() = %+v", h)
	}
	if h.DiscoveryID != "d-1" {
		t.Errorf("applyHandler() must keep the discovery link, got %q", h.DiscoveryID)
	}

	d := &domain.Discovery{ID: "d-1", Type: "zookeeper", Level: "2"}
	applyDiscovery(d, spec, fixedNow)
	if d.ServerList != "new:2181" || d.Props != "discovery-props" {
		t.Errorf("applyDiscovery() = %+v", d)
	}
	if d.Type != "zookeeper" || d.Level != "2" {
		t.Errorf("applyDiscovery() must keep type and level, got %+v", d)
	}
}

func TestToUpstreamViewsNeverNil(t *testing.T) {
	if got := toUpstreamViews(nil); got == nil {
		t.Error("toUpstreamViews(nil) = nil, want empty slice")
	}
}
