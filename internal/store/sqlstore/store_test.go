package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/store"
	"github.com/MrSnakeDoc/selectord/internal/store/storetest"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "selectord.db")
	s, err := Open(context.Background(), "sqlite", path, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openSQLite(t) })
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectord.db")
	ctx := context.Background()

	first, err := Open(ctx, "sqlite", path, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.ProxySelectors().Insert(ctx, &domain.ProxySelector{ID: "ps-1", Name: "svc-a"}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, "sqlite", path, logger.NewNop())
	require.NoError(t, err, "re-running migrations must not fail")
	defer second.Close()

	got, err := second.ProxySelectors().SelectByID(ctx, "ps-1")
	require.NoError(t, err)
	assert.Equal(t, "svc-a", got.Name)
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x", logger.NewNop())
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := "SELECT id FROM t WHERE a = ? AND b IN (?, ?)"

	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, q, MySQL.Rebind(q))
	assert.Equal(t, "SELECT id FROM t WHERE a = $1 AND b IN ($2, $3)", Postgres.Rebind(q))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres other", &pq.Error{Code: "23503"}, false},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, true},
		{"mysql other", &mysql.MySQLError{Number: 1452}, false},
		{"sqlite", errors.New("constraint failed: UNIQUE constraint failed: proxy_selector.id (1555)"), true},
		{"other", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDuplicate(tt.err))
		})
	}
}

func TestPrepareDSNMySQL(t *testing.T) {
	dsn, err := prepareDSN(MySQL, "user:pass@tcp(db:3306)/selectord")
	require.NoError(t, err)
	assert.Contains(t, dsn, "clientFoundRows=true")
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, SQLite, logger.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO proxy_selector")).
		WithArgs("ps-1", "svc-a", "tcp", 9000, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO discovery ")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.InTx(context.Background(), "", func(ctx context.Context, tx store.Repositories) error {
		if err := tx.ProxySelectors().Insert(ctx, &domain.ProxySelector{ID: "ps-1", Name: "svc-a", Type: "tcp", ForwardPort: 9000}); err != nil {
			return err
		}
		return tx.Discoveries().Insert(ctx, &domain.Discovery{ID: "d-1"})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxLocksSelectorRowOnPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, Postgres, logger.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM proxy_selector WHERE id = $1 FOR UPDATE")).
		WithArgs("ps-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ps-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE proxy_selector SET name = $1")).
		WithArgs("svc-b", "tcp", 9000, "", sqlmock.AnyArg(), "ps-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.InTx(context.Background(), "ps-1", func(ctx context.Context, tx store.Repositories) error {
		return tx.ProxySelectors().Update(ctx, &domain.ProxySelector{ID: "ps-1", Name: "svc-b", Type: "tcp", ForwardPort: 9000})
	})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, MySQL, logger.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE discovery_handler SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.Handlers().Update(context.Background(), &domain.DiscoveryHandler{ID: "h-1"})
	assert.True(t, store.IsNotFound(err), "Update() = %v, want not found", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchIsOneStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, Postgres, logger.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO discovery_upstream (" + upstreamColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9), ($10,")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err = s.Upstreams().InsertBatch(context.Background(), []*domain.DiscoveryUpstream{
		{ID: "u-1", DiscoveryHandlerID: "h-1"},
		{ID: "u-2", DiscoveryHandlerID: "h-1"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
