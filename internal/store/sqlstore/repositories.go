package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/store"
	"github.com/MrSnakeDoc/selectord/internal/utils"
)

type scanner interface {
	Scan(dest ...any) error
}

// notFound maps sql.ErrNoRows to store.ErrNotFound.
func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", kind, err)
}

// insertErr maps constraint violations to store.ErrDuplicate.
func insertErr(err error, kind, id string) error {
	if isDuplicate(err) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrDuplicate)
	}
	return fmt.Errorf("failed to insert %s: %w", kind, err)
}

// mustAffect turns an update that matched no row into store.ErrNotFound.
func mustAffect(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────
// Proxy selectors
// ─────────────────────────────────────────────────────────────────

const selectorColumns = "id, name, type, forward_port, props, date_created, date_updated"

type selectorRepo struct{ *repos }

func scanSelector(row scanner) (*domain.ProxySelector, error) {
	var (
		ps               domain.ProxySelector
		created, updated int64
	)
	if err := row.Scan(&ps.ID, &ps.Name, &ps.Type, &ps.ForwardPort, &ps.Props, &created, &updated); err != nil {
		return nil, err
	}
	ps.DateCreated = fromMillis(created)
	ps.DateUpdated = fromMillis(updated)
	return &ps, nil
}

func (r selectorRepo) Insert(ctx context.Context, ps *domain.ProxySelector) error {
	_, err := r.exec(ctx,
		"INSERT INTO proxy_selector ("+selectorColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		ps.ID, ps.Name, ps.Type, ps.ForwardPort, ps.Props, millis(ps.DateCreated), millis(ps.DateUpdated))
	if err != nil {
		return insertErr(err, "proxy selector", ps.ID)
	}
	return nil
}

func (r selectorRepo) Update(ctx context.Context, ps *domain.ProxySelector) error {
	res, err := r.exec(ctx,
		"UPDATE proxy_selector SET name = ?, type = ?, forward_port = ?, props = ?, date_updated = ? WHERE id = ?",
		ps.Name, ps.Type, ps.ForwardPort, ps.Props, millis(ps.DateUpdated), ps.ID)
	if err != nil {
		return fmt.Errorf("failed to update proxy selector: %w", err)
	}
	return mustAffect(res, "proxy selector", ps.ID)
}

func (r selectorRepo) SelectByID(ctx context.Context, id string) (*domain.ProxySelector, error) {
	ps, err := scanSelector(r.queryRow(ctx,
		"SELECT "+selectorColumns+" FROM proxy_selector WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "proxy selector", id)
	}
	return ps, nil
}

func (r selectorRepo) SelectByName(ctx context.Context, name string) (*domain.ProxySelector, error) {
	ps, err := scanSelector(r.queryRow(ctx,
		"SELECT "+selectorColumns+" FROM proxy_selector WHERE name = ? ORDER BY date_updated DESC, id ASC LIMIT 1", name))
	if err != nil {
		return nil, notFound(err, "proxy selector named", name)
	}
	return ps, nil
}

func (r selectorRepo) SelectByQuery(ctx context.Context, f store.SelectorFilter) ([]*domain.ProxySelector, int, error) {
	where := ""
	var args []any
	if f.NameContains != "" {
		where = " WHERE " + r.d.contains
		args = append(args, f.NameContains)
	}

	var total int
	if err := r.queryRow(ctx, "SELECT COUNT(*) FROM proxy_selector"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count proxy selectors: %w", err)
	}

	query := "SELECT " + selectorColumns + " FROM proxy_selector" + where + " ORDER BY date_updated DESC, id ASC"
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, max(f.Offset, 0))
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query proxy selectors: %w", err)
	}
	defer utils.Close(rows)

	list := []*domain.ProxySelector{}
	for rows.Next() {
		ps, err := scanSelector(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan proxy selector: %w", err)
		}
		list = append(list, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate proxy selectors: %w", err)
	}
	return list, total, nil
}

func (r selectorRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := r.exec(ctx, "DELETE FROM proxy_selector WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete proxy selectors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete proxy selectors: %w", err)
	}
	return int(n), nil
}

// ─────────────────────────────────────────────────────────────────
// Discoveries
// ─────────────────────────────────────────────────────────────────

const discoveryColumns = "id, name, type, server_list, level, props, date_created, date_updated"

type discoveryRepo struct{ *repos }

func (r discoveryRepo) Insert(ctx context.Context, d *domain.Discovery) error {
	_, err := r.exec(ctx,
		"INSERT INTO discovery ("+discoveryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.Name, d.Type, d.ServerList, d.Level, d.Props, millis(d.DateCreated), millis(d.DateUpdated))
	if err != nil {
		return insertErr(err, "discovery", d.ID)
	}
	return nil
}

func (r discoveryRepo) Update(ctx context.Context, d *domain.Discovery) error {
	res, err := r.exec(ctx,
		"UPDATE discovery SET name = ?, type = ?, server_list = ?, level = ?, props = ?, date_updated = ? WHERE id = ?",
		d.Name, d.Type, d.ServerList, d.Level, d.Props, millis(d.DateUpdated), d.ID)
	if err != nil {
		return fmt.Errorf("failed to update discovery: %w", err)
	}
	return mustAffect(res, "discovery", d.ID)
}

func (r discoveryRepo) SelectByID(ctx context.Context, id string) (*domain.Discovery, error) {
	var (
		d                domain.Discovery
		created, updated int64
	)
	err := r.queryRow(ctx, "SELECT "+discoveryColumns+" FROM discovery WHERE id = ?", id).
		Scan(&d.ID, &d.Name, &d.Type, &d.ServerList, &d.Level, &d.Props, &created, &updated)
	if err != nil {
		return nil, notFound(err, "discovery", id)
	}
	d.DateCreated = fromMillis(created)
	d.DateUpdated = fromMillis(updated)
	return &d, nil
}

func (r discoveryRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.exec(ctx, "DELETE FROM discovery WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete discovery: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────
// Discovery handlers
// ─────────────────────────────────────────────────────────────────

const handlerColumns = "id, discovery_id, listener_node, handler, props, date_created, date_updated"

type handlerRepo struct{ *repos }

func (r handlerRepo) Insert(ctx context.Context, h *domain.DiscoveryHandler) error {
	_, err := r.exec(ctx,
		"INSERT INTO discovery_handler ("+handlerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		h.ID, h.DiscoveryID, h.ListenerNode, h.Handler, h.Props, millis(h.DateCreated), millis(h.DateUpdated))
	if err != nil {
		return insertErr(err, "discovery handler", h.ID)
	}
	return nil
}

func (r handlerRepo) Update(ctx context.Context, h *domain.DiscoveryHandler) error {
	res, err := r.exec(ctx,
		"UPDATE discovery_handler SET discovery_id = ?, listener_node = ?, handler = ?, props = ?, date_updated = ? WHERE id = ?",
		h.DiscoveryID, h.ListenerNode, h.Handler, h.Props, millis(h.DateUpdated), h.ID)
	if err != nil {
		return fmt.Errorf("failed to update discovery handler: %w", err)
	}
	return mustAffect(res, "discovery handler", h.ID)
}

func (r handlerRepo) SelectByID(ctx context.Context, id string) (*domain.DiscoveryHandler, error) {
	var (
		h                domain.DiscoveryHandler
		created, updated int64
	)
	err := r.queryRow(ctx, "SELECT "+handlerColumns+" FROM discovery_handler WHERE id = ?", id).
		Scan(&h.ID, &h.DiscoveryID, &h.ListenerNode, &h.Handler, &h.Props, &created, &updated)
	if err != nil {
		return nil, notFound(err, "discovery handler", id)
	}
	h.DateCreated = fromMillis(created)
	h.DateUpdated = fromMillis(updated)
	return &h, nil
}

func (r handlerRepo) CountByDiscoveryID(ctx context.Context, discoveryID string) (int, error) {
	var n int
	err := r.queryRow(ctx, "SELECT COUNT(*) FROM discovery_handler WHERE discovery_id = ?", discoveryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count discovery handlers: %w", err)
	}
	return n, nil
}

func (r handlerRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.exec(ctx, "DELETE FROM discovery_handler WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete discovery handler: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────
// Discovery relations
// ─────────────────────────────────────────────────────────────────

const relationColumns = "id, plugin_name, discovery_handler_id, proxy_selector_id, selector_id, date_created, date_updated"

type relationRepo struct{ *repos }

func scanRelation(row scanner) (*domain.DiscoveryRelation, error) {
	var (
		rel              domain.DiscoveryRelation
		created, updated int64
	)
	err := row.Scan(&rel.ID, &rel.PluginName, &rel.DiscoveryHandlerID, &rel.ProxySelectorID, &rel.SelectorID, &created, &updated)
	if err != nil {
		return nil, err
	}
	rel.DateCreated = fromMillis(created)
	rel.DateUpdated = fromMillis(updated)
	return &rel, nil
}

func (r relationRepo) Insert(ctx context.Context, rel *domain.DiscoveryRelation) error {
	_, err := r.exec(ctx,
		"INSERT INTO discovery_rel ("+relationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		rel.ID, rel.PluginName, rel.DiscoveryHandlerID, rel.ProxySelectorID, rel.SelectorID,
		millis(rel.DateCreated), millis(rel.DateUpdated))
	if err != nil {
		return insertErr(err, "discovery relation", rel.ID)
	}
	return nil
}

func (r relationRepo) SelectByProxySelectorID(ctx context.Context, proxySelectorID string) (*domain.DiscoveryRelation, error) {
	rel, err := scanRelation(r.queryRow(ctx,
		"SELECT "+relationColumns+" FROM discovery_rel WHERE proxy_selector_id = ?", proxySelectorID))
	if err != nil {
		return nil, notFound(err, "discovery relation for proxy selector", proxySelectorID)
	}
	return rel, nil
}

func (r relationRepo) SelectAll(ctx context.Context) ([]*domain.DiscoveryRelation, error) {
	rows, err := r.query(ctx, "SELECT "+relationColumns+" FROM discovery_rel ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query discovery relations: %w", err)
	}
	defer utils.Close(rows)

	out := []*domain.DiscoveryRelation{}
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discovery relation: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func (r relationRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.exec(ctx, "DELETE FROM discovery_rel WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete discovery relation: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────
// Discovery upstreams
// ─────────────────────────────────────────────────────────────────

const upstreamColumns = "id, discovery_handler_id, protocol, url, status, weight, props, date_created, date_updated"

type upstreamRepo struct{ *repos }

// InsertBatch writes all upstreams with a single multi-row INSERT.
func (r upstreamRepo) InsertBatch(ctx context.Context, ups []*domain.DiscoveryUpstream) error {
	if len(ups) == 0 {
		return nil
	}

	row := "(" + placeholders(9) + ")"
	values := make([]string, len(ups))
	args := make([]any, 0, len(ups)*9)
	for i, up := range ups {
		values[i] = row
		args = append(args, up.ID, up.DiscoveryHandlerID, up.Protocol, up.URL, up.Status, up.Weight,
			up.Props, millis(up.DateCreated), millis(up.DateUpdated))
	}

	query := "INSERT INTO discovery_upstream (" + upstreamColumns + ") VALUES " + strings.Join(values, ", ")
	if _, err := r.exec(ctx, query, args...); err != nil {
		return insertErr(err, "discovery upstreams of handler", ups[0].DiscoveryHandlerID)
	}
	return nil
}

func (r upstreamRepo) SelectByHandlerID(ctx context.Context, handlerID string) ([]*domain.DiscoveryUpstream, error) {
	rows, err := r.query(ctx,
		"SELECT "+upstreamColumns+" FROM discovery_upstream WHERE discovery_handler_id = ? ORDER BY date_created ASC, id ASC",
		handlerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query discovery upstreams: %w", err)
	}
	defer utils.Close(rows)

	out := []*domain.DiscoveryUpstream{}
	for rows.Next() {
		var (
			up               domain.DiscoveryUpstream
			created, updated int64
		)
		err := rows.Scan(&up.ID, &up.DiscoveryHandlerID, &up.Protocol, &up.URL, &up.Status, &up.Weight,
			&up.Props, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discovery upstream: %w", err)
		}
		up.DateCreated = fromMillis(created)
		up.DateUpdated = fromMillis(updated)
		out = append(out, &up)
	}
	return out, rows.Err()
}

func (r upstreamRepo) DeleteByHandlerID(ctx context.Context, handlerID string) (int, error) {
	res, err := r.exec(ctx, "DELETE FROM discovery_upstream WHERE discovery_handler_id = ?", handlerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete discovery upstreams: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete discovery upstreams: %w", err)
	}
	return int(n), nil
}
