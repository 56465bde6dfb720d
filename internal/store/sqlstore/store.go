// Package sqlstore is the relational store backend. It speaks sqlite
// (modernc.org/sqlite), postgres (lib/pq) and mysql (go-sql-driver/mysql)
// through database/sql, one table per entity.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"  // Register postgres driver
	_ "modernc.org/sqlite" // Register sqlite driver

	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     logger.Logger
}

// Open connects to the database named by dialect and dsn, applies pending
// migrations and returns a ready store.
func Open(ctx context.Context, dialectName, dsn string, log logger.Logger) (*Store, error) {
	d, err := DialectFor(dialectName)
	if err != nil {
		return nil, err
	}

	dsn, err = prepareDSN(d, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s db: %w", d.Name, err)
	}

	if d == SQLite {
		// One connection: sqlite serializes writers anyway, and this keeps
		// transactions from failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s db: %w", d.Name, err)
	}

	if d == SQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}

	if err := Migrate(ctx, db, d, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("sql store ready", logger.String("dialect", d.Name))
	return New(db, d, log), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, d Dialect, log logger.Logger) *Store {
	return &Store{db: db, dialect: d, log: log.Named("sql_store")}
}

// prepareDSN applies per-driver connection settings the store relies on.
func prepareDSN(d Dialect, dsn string) (string, error) {
	switch d {
	case SQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return "", fmt.Errorf("failed to create db directory: %w", err)
			}
		}
		return dsn, nil
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		// Updates that change nothing must still count as a match.
		cfg.ClientFoundRows = true
		return cfg.FormatDSN(), nil
	default:
		return dsn, nil
	}
}

func (s *Store) Name() string { return s.dialect.Name }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ProxySelectors() store.ProxySelectorRepository { return s.live().ProxySelectors() }
func (s *Store) Discoveries() store.DiscoveryRepository        { return s.live().Discoveries() }
func (s *Store) Handlers() store.DiscoveryHandlerRepository    { return s.live().Handlers() }
func (s *Store) Relations() store.DiscoveryRelationRepository  { return s.live().Relations() }
func (s *Store) Upstreams() store.DiscoveryUpstreamRepository  { return s.live().Upstreams() }

func (s *Store) live() *repos { return &repos{q: s.db, d: s.dialect} }

// InTx runs fn in a database transaction. On dialects with row locks the
// lockKey selector row is locked first so writers of one selector queue up.
func (s *Store) InTx(ctx context.Context, lockKey string, fn store.TxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if lockKey != "" && s.dialect.forUpdate {
		var id string
		err := tx.QueryRowContext(ctx,
			s.dialect.Rebind("SELECT id FROM proxy_selector WHERE id = ? FOR UPDATE"), lockKey,
		).Scan(&id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to lock proxy selector %s: %w", lockKey, err)
		}
	}

	if err := fn(ctx, &repos{q: tx, d: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repos struct {
	q querier
	d Dialect
}

func (r *repos) ProxySelectors() store.ProxySelectorRepository { return selectorRepo{r} }
func (r *repos) Discoveries() store.DiscoveryRepository        { return discoveryRepo{r} }
func (r *repos) Handlers() store.DiscoveryHandlerRepository    { return handlerRepo{r} }
func (r *repos) Relations() store.DiscoveryRelationRepository  { return relationRepo{r} }
func (r *repos) Upstreams() store.DiscoveryUpstreamRepository  { return upstreamRepo{r} }

func (r *repos) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.d.Rebind(query), args...)
}

func (r *repos) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.d.Rebind(query), args...)
}

func (r *repos) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.d.Rebind(query), args...)
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
