package domain

// ProxySelectorSpec is the caller-facing description of a proxy selector and
// its discovery configuration. An empty ID means "create".
type ProxySelectorSpec struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name" validate:"required,max=128"`
	Type        string `json:"type" yaml:"type" validate:"max=64"`
	ForwardPort int    `json:"forwardPort" yaml:"forwardPort" validate:"min=1,max=65535"`
	Props       string `json:"props" yaml:"props"`

	// PluginName is recorded on the relation. Defaults to Name.
	PluginName string `json:"pluginName,omitempty" yaml:"pluginName,omitempty"`

	Discovery    *DiscoverySpec `json:"discovery" yaml:"discovery" validate:"required"`
	ListenerNode string         `json:"listenerNode" yaml:"listenerNode"`
	Handler      string         `json:"handler" yaml:"handler"`
	Upstreams    []UpstreamSpec `json:"discoveryUpstreams" yaml:"upstreams" validate:"dive"`
}

// DiscoverySpec is the discovery descriptor of a ProxySelectorSpec.
type DiscoverySpec struct {
	Type       string `json:"discoveryType" yaml:"type" validate:"required,max=64"`
	ServerList string `json:"serverList" yaml:"serverList"`
	Props      string `json:"props" yaml:"props"`
}

// UpstreamSpec is one submitted upstream entry.
type UpstreamSpec struct {
	Protocol string `json:"protocol" yaml:"protocol"`
	URL      string `json:"url" yaml:"url" validate:"required"`
	Status   int    `json:"status" yaml:"status" validate:"min=0"`
	Weight   int    `json:"weight" yaml:"weight" validate:"min=0"`
	Props    string `json:"props" yaml:"props"`
}

// IsUpdate reports whether the spec targets an existing selector.
func (s *ProxySelectorSpec) IsUpdate() bool {
	return s.ID != ""
}
