package seed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/selectord/internal/domain"
)

// DefaultWeight is used for upstreams that do not set one.
const DefaultWeight = 50

// Mapper converts seed entries to proxy selector specs
type Mapper struct{}

// NewMapper creates a new seed mapper
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapSelectors converts a File to specs, skipping disabled entries.
// Names must be unique across the file.
func (m *Mapper) MapSelectors(f *File) ([]*domain.ProxySelectorSpec, error) {
	specs := make([]*domain.ProxySelectorSpec, 0, len(f.Selectors))
	seen := make(map[string]int, len(f.Selectors))

	for i, entry := range f.Selectors {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("selector #%d: name is required", i+1)
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("selector #%d: name %q already used by selector #%d", i+1, name, prev)
		}
		seen[name] = i + 1

		if entry.Disabled {
			continue
		}

		spec, err := m.mapSelector(name, entry)
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", name, err)
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

func (m *Mapper) mapSelector(name string, e SelectorEntry) (*domain.ProxySelectorSpec, error) {
	props, err := encodeProps(e.Props)
	if err != nil {
		return nil, fmt.Errorf("props: %w", err)
	}
	discoveryProps, err := encodeProps(e.Discovery.Props)
	if err != nil {
		return nil, fmt.Errorf("discovery props: %w", err)
	}

	upstreams := make([]domain.UpstreamSpec, 0, len(e.Upstreams))
	for i, u := range e.Upstreams {
		upProps, err := encodeProps(u.Props)
		if err != nil {
			return nil, fmt.Errorf("upstream #%d props: %w", i+1, err)
		}
		weight := DefaultWeight
		if u.Weight != nil {
			weight = *u.Weight
		}
		upstreams = append(upstreams, domain.UpstreamSpec{
			Protocol: u.Protocol,
			URL:      strings.TrimSpace(u.URL),
			Status:   u.Status,
			Weight:   weight,
			Props:    upProps,
		})
	}

	return &domain.ProxySelectorSpec{
		Name:        name,
		Type:        e.Type,
		ForwardPort: e.ForwardPort,
		Props:       props,
		PluginName:  e.PluginName,
		Discovery: &domain.DiscoverySpec{
			Type:       e.Discovery.Type,
			ServerList: e.Discovery.ServerList,
			Props:      discoveryProps,
		},
		ListenerNode: e.ListenerNode,
		Handler:      e.Handler,
		Upstreams:    upstreams,
	}, nil
}

// encodeProps renders a YAML mapping as the JSON blob stored on records.
func encodeProps(props map[string]any) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
