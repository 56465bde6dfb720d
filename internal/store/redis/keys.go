package redis

const (
	// KeyPrefix namespaces every key written by the store.
	KeyPrefix = "selectord:"

	KeyPrefixProxySelector = KeyPrefix + "proxy_selector:"
	KeyPrefixDiscovery     = KeyPrefix + "discovery:"
	KeyPrefixHandler       = KeyPrefix + "discovery_handler:"
	KeyPrefixRelation      = KeyPrefix + "discovery_rel:"
	KeyPrefixUpstream      = KeyPrefix + "discovery_upstream:"
)

// ProxySelectorKey returns the key holding a proxy selector as JSON.
func ProxySelectorKey(id string) string { return KeyPrefixProxySelector + id }

// AllProxySelectorsKey returns the set of all proxy selector ids.
func AllProxySelectorsKey() string { return KeyPrefixProxySelector + "all" }

func DiscoveryKey(id string) string { return KeyPrefixDiscovery + id }
func AllDiscoveriesKey() string     { return KeyPrefixDiscovery + "all" }
func HandlerKey(id string) string   { return KeyPrefixHandler + id }
func AllHandlersKey() string        { return KeyPrefixHandler + "all" }
func RelationKey(id string) string  { return KeyPrefixRelation + id }
func AllRelationsKey() string       { return KeyPrefixRelation + "all" }
func UpstreamKey(id string) string  { return KeyPrefixUpstream + id }
func AllUpstreamsKey() string       { return KeyPrefixUpstream + "all" }

// HandlersByDiscoveryKey returns the set of handler ids bound to a discovery.
func HandlersByDiscoveryKey(discoveryID string) string {
	return KeyPrefixHandler + "by_discovery:" + discoveryID
}

// RelationByProxySelectorKey returns the key holding the id of the single
// relation of a proxy selector.
func RelationByProxySelectorKey(proxySelectorID string) string {
	return KeyPrefixRelation + "by_proxy_selector:" + proxySelectorID
}

// UpstreamsByHandlerKey returns the set of upstream ids of a handler.
func UpstreamsByHandlerKey(handlerID string) string {
	return KeyPrefixUpstream + "by_handler:" + handlerID
}
