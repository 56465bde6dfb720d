package domain

// Graph is the unit of write: every record the writer persists for one
// create or update, cross-referenced before any storage call.
//
// On update only Selector and Upstreams are populated by assembly; the
// discovery, handler and relation are located inside the transaction.
type Graph struct {
	Selector  *ProxySelector
	Discovery *Discovery
	Handler   *DiscoveryHandler
	Relation  *DiscoveryRelation
	Upstreams []*DiscoveryUpstream

	// Spec is the input the graph was assembled from.
	Spec *ProxySelectorSpec
}
