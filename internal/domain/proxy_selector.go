package domain

import "time"

// ProxySelector is the root of the discovery graph: one named forwarding
// target listening on ForwardPort.
type ProxySelector struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is generated at creation and never changes.
	ID string `json:"id"`

	// ─────────────────────────────
	// Functional description
	// (overwritten on update)
	// ─────────────────────────────

	// Name is the logical name of the proxy target.
	// Example: svc-a
	Name string `json:"name"`

	// Type is the forwarding protocol of the selector.
	// Example: tcp
	Type string `json:"type"`

	// ForwardPort is the local port traffic is forwarded from.
	ForwardPort int `json:"forwardPort"`

	// Props is an opaque blob, usually JSON, that is stored as-is.
	Props string `json:"props"`

	// ─────────────────────────────
	// Timestamps
	// ─────────────────────────────

	DateCreated time.Time `json:"dateCreated"`
	DateUpdated time.Time `json:"dateUpdated"`
}
