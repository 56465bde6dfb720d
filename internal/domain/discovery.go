package domain

import "time"

// DiscoveryLevelSelector marks discovery configured for a proxy selector, as
// opposed to plugin or selector-rule scoped discovery.
const DiscoveryLevelSelector = "2"

// Discovery describes the external mechanism (a registry cluster for
// instance) that supplies live backend addresses.
type Discovery struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	ServerList  string    `json:"serverList"`
	Level       string    `json:"level"`
	Props       string    `json:"props"`
	DateCreated time.Time `json:"dateCreated"`
	DateUpdated time.Time `json:"dateUpdated"`
}

// DiscoveryHandler binds a Discovery to the listener node it watches and
// the strategy used to handle change notifications.
type DiscoveryHandler struct {
	ID           string    `json:"id"`
	DiscoveryID  string    `json:"discoveryId"`
	ListenerNode string    `json:"listenerNode"`
	Handler      string    `json:"handler"`
	Props        string    `json:"props"`
	DateCreated  time.Time `json:"dateCreated"`
	DateUpdated  time.Time `json:"dateUpdated"`
}

// DiscoveryRelation is the join record between a ProxySelector and its
// DiscoveryHandler. There is at most one relation per proxy selector.
//
// SelectorID is reserved for discovery bound to plugin selectors and is
// always empty for proxy selectors.
type DiscoveryRelation struct {
	ID                 string    `json:"id"`
	PluginName         string    `json:"pluginName"`
	DiscoveryHandlerID string    `json:"discoveryHandlerId"`
	ProxySelectorID    string    `json:"proxySelectorId"`
	SelectorID         string    `json:"selectorId"`
	DateCreated        time.Time `json:"dateCreated"`
	DateUpdated        time.Time `json:"dateUpdated"`
}

// DiscoveryUpstream is one concrete backend address reported for a handler.
type DiscoveryUpstream struct {
	ID                 string    `json:"id"`
	DiscoveryHandlerID string    `json:"discoveryHandlerId"`
	Protocol           string    `json:"protocol"`
	URL                string    `json:"url"`
	Status             int       `json:"status"`
	Weight             int       `json:"weight"`
	Props              string    `json:"props"`
	DateCreated        time.Time `json:"dateCreated"`
	DateUpdated        time.Time `json:"dateUpdated"`
}
