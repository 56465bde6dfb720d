package seed

// File is the root structure of a seed file.
//
//	version: 1
//	selectors:
//	  - name: svc-a
//	    type: tcp
//	    forwardPort: 9000
//	    discovery:
//	      type: zookeeper
//	      serverList: zk1:2181
//	    listenerNode: /shenyu/discovery/svc-a
//	    handler: '{"url":"addr"}'
//	    upstreams:
//	      - url: 10.0.0.1:80
//	        weight: 50
type File struct {
	Version   int             `yaml:"version"`
	Selectors []SelectorEntry `yaml:"selectors"`
}

// SelectorEntry describes one proxy selector. Selectors are matched to
// stored ones by name.
type SelectorEntry struct {
	Name         string          `yaml:"name"`
	Type         string          `yaml:"type"`
	ForwardPort  int             `yaml:"forwardPort"`
	Props        map[string]any  `yaml:"props"`
	PluginName   string          `yaml:"pluginName"`
	Discovery    DiscoveryEntry  `yaml:"discovery"`
	ListenerNode string          `yaml:"listenerNode"`
	Handler      string          `yaml:"handler"`
	Upstreams    []UpstreamEntry `yaml:"upstreams"`
	// Disabled entries are parsed but not applied.
	Disabled bool `yaml:"disabled"`
}

// DiscoveryEntry is the discovery descriptor of a SelectorEntry.
type DiscoveryEntry struct {
	Type       string         `yaml:"type"`
	ServerList string         `yaml:"serverList"`
	Props      map[string]any `yaml:"props"`
}

// UpstreamEntry is one static upstream of a SelectorEntry.
type UpstreamEntry struct {
	Protocol string         `yaml:"protocol"`
	URL      string         `yaml:"url"`
	Status   int            `yaml:"status"`
	Weight   *int           `yaml:"weight"`
	Props    map[string]any `yaml:"props"`
}
