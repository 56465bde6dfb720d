// Package store defines the per-entity repositories of the discovery graph
// and the transaction boundary every multi-record write runs in.
package store

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/selectord/internal/domain"
)

var (
	// ErrNotFound is returned (wrapped) by Select* methods when no row matches.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned (wrapped) by Insert* methods when the id is taken.
	ErrDuplicate = errors.New("duplicate record")
)

// SelectorFilter restricts and pages ProxySelectors.SelectByQuery.
type SelectorFilter struct {
	NameContains string
	Offset       int
	Limit        int
}

type ProxySelectorRepository interface {
	Insert(ctx context.Context, ps *domain.ProxySelector) error
	// Update overwrites name, type, forward port, props and date updated.
	Update(ctx context.Context, ps *domain.ProxySelector) error
	SelectByID(ctx context.Context, id string) (*domain.ProxySelector, error)
	// SelectByName returns the most recently updated selector with that name.
	SelectByName(ctx context.Context, name string) (*domain.ProxySelector, error)
	// SelectByQuery returns one page ordered by date updated (newest first),
	// then id, together with the total number of matches.
	SelectByQuery(ctx context.Context, f SelectorFilter) ([]*domain.ProxySelector, int, error)
	// DeleteByIDs removes the given rows and returns how many existed.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

type DiscoveryRepository interface {
	Insert(ctx context.Context, d *domain.Discovery) error
	Update(ctx context.Context, d *domain.Discovery) error
	SelectByID(ctx context.Context, id string) (*domain.Discovery, error)
	DeleteByID(ctx context.Context, id string) error
}

type DiscoveryHandlerRepository interface {
	Insert(ctx context.Context, h *domain.DiscoveryHandler) error
	Update(ctx context.Context, h *domain.DiscoveryHandler) error
	SelectByID(ctx context.Context, id string) (*domain.DiscoveryHandler, error)
	CountByDiscoveryID(ctx context.Context, discoveryID string) (int, error)
	DeleteByID(ctx context.Context, id string) error
}

type DiscoveryRelationRepository interface {
	Insert(ctx context.Context, rel *domain.DiscoveryRelation) error
	SelectByProxySelectorID(ctx context.Context, proxySelectorID string) (*domain.DiscoveryRelation, error)
	SelectAll(ctx context.Context) ([]*domain.DiscoveryRelation, error)
	DeleteByID(ctx context.Context, id string) error
}

type DiscoveryUpstreamRepository interface {
	InsertBatch(ctx context.Context, ups []*domain.DiscoveryUpstream) error
	SelectByHandlerID(ctx context.Context, handlerID string) ([]*domain.DiscoveryUpstream, error)
	// DeleteByHandlerID removes every upstream of the handler and returns the count.
	DeleteByHandlerID(ctx context.Context, handlerID string) (int, error)
}

// Repositories groups the five entity repositories.
type Repositories interface {
	ProxySelectors() ProxySelectorRepository
	Discoveries() DiscoveryRepository
	Handlers() DiscoveryHandlerRepository
	Relations() DiscoveryRelationRepository
	Upstreams() DiscoveryUpstreamRepository
}

// TxFunc is one unit of work. It must only use the repositories it receives
// and must be safe to run again: backends with optimistic transactions
// retry it on conflict. Reads inside fn are not guaranteed to observe the
// writes fn has already issued, so read before writing.
type TxFunc func(ctx context.Context, tx Repositories) error

// Store is a storage backend. Its own Repositories are not isolated from
// concurrent writers and serve the read path.
type Store interface {
	Repositories

	// InTx runs fn as one all-or-nothing transaction. lockKey is the id of
	// the proxy selector being written (empty on create); writers sharing a
	// lockKey are serialized by the backend.
	InTx(ctx context.Context, lockKey string, fn TxFunc) error

	// Name identifies the backend in logs and /infra.
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
