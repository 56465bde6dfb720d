// Package redis is the Redis store backend. Records are JSON values under
// prefixed keys; "all" sets and per-parent sets act as indexes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

var _ store.Store = (*Store)(nil)

const (
	// DefaultTxRetries bounds how many times a conflicting transaction is replayed.
	DefaultTxRetries = 10
	// DefaultTxRetryWait is the first wait between replays; it grows exponentially.
	DefaultTxRetryWait = 5 * time.Millisecond
)

// Store handles Redis operations for the discovery graph.
type Store struct {
	client    *redis.Client
	log       logger.Logger
	retries   uint64
	retryWait time.Duration
	conflict  func()
}

// Option customizes a Store.
type Option func(*Store)

// WithTxRetries overrides how conflicting transactions are replayed.
func WithTxRetries(retries uint64, wait time.Duration) Option {
	return func(s *Store) {
		s.retries = retries
		s.retryWait = wait
	}
}

// WithConflictHook registers fn to run each time EXEC aborts on a watched key.
func WithConflictHook(fn func()) Option {
	return func(s *Store) {
		s.conflict = fn
	}
}

// NewStore creates a new Redis store.
func NewStore(client *redis.Client, log logger.Logger, opts ...Option) *Store {
	s := &Store{
		client:    client,
		log:       log.Named("redis_store"),
		retries:   DefaultTxRetries,
		retryWait: DefaultTxRetryWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Name() string { return "redis" }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ProxySelectors() store.ProxySelectorRepository { return s.live().ProxySelectors() }
func (s *Store) Discoveries() store.DiscoveryRepository        { return s.live().Discoveries() }
func (s *Store) Handlers() store.DiscoveryHandlerRepository    { return s.live().Handlers() }
func (s *Store) Relations() store.DiscoveryRelationRepository  { return s.live().Relations() }
func (s *Store) Upstreams() store.DiscoveryUpstreamRepository  { return s.live().Upstreams() }

func (s *Store) live() *repos {
	return &repos{conn: liveConn{client: s.client}}
}

// InTx runs fn optimistically. Every key fn reads is WATCHed, along with the
// selector named by lockKey, and fn's writes are queued then applied in one
// MULTI/EXEC. When a watched key changes before EXEC, fn is replayed with
// exponential backoff.
func (s *Store) InTx(ctx context.Context, lockKey string, fn store.TxFunc) error {
	attempt := 0

	op := func() error {
		attempt++
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			if lockKey != "" {
				if err := tx.Watch(ctx, ProxySelectorKey(lockKey)).Err(); err != nil {
					return err
				}
			}

			conn := &txConn{tx: tx}
			if err := fn(ctx, &repos{conn: conn}); err != nil {
				return err
			}
			if len(conn.ops) == 0 {
				return nil
			}

			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, queued := range conn.ops {
					queued(pipe)
				}
				return nil
			})
			return err
		})

		if errors.Is(err, redis.TxFailedErr) {
			if s.conflict != nil {
				s.conflict()
			}
			s.log.Debug("redis transaction conflict, replaying",
				logger.String("lock_key", lockKey),
				logger.Int("attempt", attempt))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryWait
	policy.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, s.retries), ctx))
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("transaction on %q still conflicting after %d attempts: %w", lockKey, attempt, err)
	}
	return err
}

// conn is how repositories talk to Redis: reads go through a Cmdable,
// writes are either applied at once or queued for EXEC.
type conn interface {
	reader() redis.Cmdable
	watch(ctx context.Context, keys ...string) error
	write(ctx context.Context, fn func(pipe redis.Pipeliner)) error
}

type liveConn struct{ client *redis.Client }

func (c liveConn) reader() redis.Cmdable { return c.client }

func (c liveConn) watch(context.Context, ...string) error { return nil }

func (c liveConn) write(ctx context.Context, fn func(pipe redis.Pipeliner)) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(pipe)
		return nil
	})
	return err
}

type txConn struct {
	tx  *redis.Tx
	ops []func(pipe redis.Pipeliner)
}

func (c *txConn) reader() redis.Cmdable { return c.tx }

func (c *txConn) watch(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.tx.Watch(ctx, keys...).Err()
}

func (c *txConn) write(_ context.Context, fn func(pipe redis.Pipeliner)) error {
	c.ops = append(c.ops, fn)
	return nil
}

type repos struct{ conn conn }

func (r *repos) ProxySelectors() store.ProxySelectorRepository { return selectorRepo{r.conn} }
func (r *repos) Discoveries() store.DiscoveryRepository        { return discoveryRepo{r.conn} }
func (r *repos) Handlers() store.DiscoveryHandlerRepository    { return handlerRepo{r.conn} }
func (r *repos) Relations() store.DiscoveryRelationRepository  { return relationRepo{r.conn} }
func (r *repos) Upstreams() store.DiscoveryUpstreamRepository  { return upstreamRepo{r.conn} }
