package seed

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/selectord/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestMapSelectors(t *testing.T) {
	f := &File{
		Version: 1,
		Selectors: []SelectorEntry{
			{
				Name:        " svc-a ",
				Type:        "tcp",
				ForwardPort: 9000,
				Props:       map[string]any{"timeout": 3000, "retry": true},
				Discovery: DiscoveryEntry{
					Type:       "zookeeper",
					ServerList: "zk1:2181",
					Props:      map[string]any{"sessionTimeout": 500},
				},
				ListenerNode: "/shenyu/discovery/svc-a",
				Handler:      `{"url":"addr"}`,
				Upstreams: []UpstreamEntry{
					{Protocol: "tcp", URL: "10.0.0.1:80", Weight: intPtr(70)},
					{URL: " 10.0.0.2:80 ", Status: 1},
				},
			},
			{Name: "svc-off", Disabled: true},
		},
	}

	specs, err := NewMapper().MapSelectors(f)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	want := &domain.ProxySelectorSpec{
		Name:        "svc-a",
		Type:        "tcp",
		ForwardPort: 9000,
		Props:       `{"retry":true,"timeout":3000}`,
		Discovery: &domain.DiscoverySpec{
			Type:       "zookeeper",
			ServerList: "zk1:2181",
			Props:      `{"sessionTimeout":500}`,
		},
		ListenerNode: "/shenyu/discovery/svc-a",
		Handler:      `{"url":"addr"}`,
		Upstreams: []domain.UpstreamSpec{
			{Protocol: "tcp", URL: "10.0.0.1:80", Weight: 70},
			{URL: "10.0.0.2:80", Status: 1, Weight: DefaultWeight},
		},
	}
	if diff := cmp.Diff(want, specs[0]); diff != "" {
		t.Errorf("MapSelectors() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapSelectorsRejectsBadNames(t *testing.T) {
	tests := []struct {
		name      string
		selectors []SelectorEntry
		wantErr   string
	}{
		{
			name:      "missing name",
			selectors: []SelectorEntry{{Name: "  "}},
			wantErr:   "name is required",
		},
		{
			name:      "duplicate name",
			selectors: []SelectorEntry{{Name: "svc-a"}, {Name: "svc-a", Disabled: true}},
			wantErr:   `name "svc-a" already used by selector #1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMapper().MapSelectors(&File{Selectors: tt.selectors})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMapSelectorsEmptyProps(t *testing.T) {
	specs, err := NewMapper().MapSelectors(&File{Selectors: []SelectorEntry{{Name: "svc"}}})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Empty(t, specs[0].Props)
	assert.Empty(t, specs[0].Discovery.Props)
	assert.NotNil(t, specs[0].Upstreams)
}
