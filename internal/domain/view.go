package domain

import "time"

// ProxySelectorView is the read-side join of a selector with its discovery
// chain. Discovery fields stay empty when the chain is missing.
type ProxySelectorView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	ForwardPort  int             `json:"forwardPort"`
	Props        string          `json:"props"`
	CreateTime   time.Time       `json:"createTime"`
	UpdateTime   time.Time       `json:"updateTime"`
	ListenerNode string          `json:"listenerNode"`
	Handler      string          `json:"handler"`
	Discovery    *DiscoveryView  `json:"discovery,omitempty"`
	Upstreams    []*UpstreamView `json:"discoveryUpstreams"`
}

type DiscoveryView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"discoveryType"`
	ServerList string `json:"serverList"`
	Level      string `json:"level"`
	Props      string `json:"props"`
}

type UpstreamView struct {
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
