package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/selectord/internal/logger"
)

// Migration is one forward-only schema change.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// The DDL sticks to types accepted by sqlite, postgres and mysql alike.
// Timestamps are unix milliseconds.
var migrations = []Migration{
	{
		Version:     1,
		Description: "discovery graph tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS proxy_selector (
				id           VARCHAR(128) NOT NULL PRIMARY KEY,
				name         VARCHAR(255) NOT NULL,
				type         VARCHAR(64)  NOT NULL,
				forward_port INTEGER      NOT NULL,
				props        TEXT         NOT NULL,
				date_created BIGINT       NOT NULL,
				date_updated BIGINT       NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS discovery (
				id           VARCHAR(128) NOT NULL PRIMARY KEY,
				name         VARCHAR(255) NOT NULL,
				type         VARCHAR(64)  NOT NULL,
				server_list  TEXT         NOT NULL,
				level        VARCHAR(8)   NOT NULL,
				props        TEXT         NOT NULL,
				date_created BIGINT       NOT NULL,
				date_updated BIGINT       NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS discovery_handler (
				id            VARCHAR(128) NOT NULL PRIMARY KEY,
				discovery_id  VARCHAR(128) NOT NULL,
				listener_node VARCHAR(255) NOT NULL,
				handler       TEXT         NOT NULL,
				props         TEXT         NOT NULL,
				date_created  BIGINT       NOT NULL,
				date_updated  BIGINT       NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS discovery_rel (
				id                   VARCHAR(128) NOT NULL PRIMARY KEY,
				plugin_name          VARCHAR(255) NOT NULL,
				discovery_handler_id VARCHAR(128) NOT NULL,
				proxy_selector_id    VARCHAR(128) NOT NULL,
				selector_id          VARCHAR(128) NOT NULL,
				date_created         BIGINT       NOT NULL,
				date_updated         BIGINT       NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS discovery_upstream (
				id                   VARCHAR(128) NOT NULL PRIMARY KEY,
				discovery_handler_id VARCHAR(128) NOT NULL,
				protocol             VARCHAR(64)  NOT NULL,
				url                  VARCHAR(255) NOT NULL,
				status               INTEGER      NOT NULL,
				weight               INTEGER      NOT NULL,
				props                TEXT         NOT NULL,
				date_created         BIGINT       NOT NULL,
				date_updated         BIGINT       NOT NULL
			)`,
			`CREATE INDEX idx_proxy_selector_name ON proxy_selector (name)`,
			`CREATE INDEX idx_discovery_handler_discovery ON discovery_handler (discovery_id)`,
			`CREATE UNIQUE INDEX uk_discovery_rel_proxy_selector ON discovery_rel (proxy_selector_id)`,
			`CREATE INDEX idx_discovery_upstream_handler ON discovery_upstream (discovery_handler_id)`,
		},
	},
}

// Migrate applies all pending migrations, each in its own transaction.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, log logger.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version    INTEGER NOT NULL PRIMARY KEY,
			applied_at BIGINT  NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_versions table: %w", err)
	}

	var current int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		log.Info("applying migration",
			logger.Int("version", m.Version),
			logger.String("description", m.Description))
		if err := applyMigration(ctx, db, d, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		current = m.Version
	}

	log.Debug("schema up to date", logger.Int("version", current))
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, d Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		d.Rebind("INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)"),
		m.Version, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	return tx.Commit()
}
