package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/httpserver/deps"
)

// ListProxySelectors serves GET /proxy-selector?name=&currentPage=&pageSize=
func ListProxySelectors(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parsePageQuery(r)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		pager, err := d.Service.ListByPage(r.Context(), q)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeResult(w, http.StatusOK, domain.MsgQuerySuccess, pager)
	}
}

// CreateOrUpdateProxySelector serves POST /proxy-selector. A body with an id
// updates, one without creates.
func CreateOrUpdateProxySelector(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec domain.ProxySelectorSpec
		if err := decodeJSON(w, r, &spec); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		msg, err := d.Service.CreateOrUpdate(r.Context(), &spec)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeResult(w, http.StatusOK, msg, nil)
	}
}

// UpdateProxySelector serves PUT /proxy-selector/{id}. The path id wins over
// any id in the body.
func UpdateProxySelector(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spec domain.ProxySelectorSpec
		if err := decodeJSON(w, r, &spec); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		spec.ID = chi.URLParam(r, "id")

		msg, err := d.Service.Update(r.Context(), &spec)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeResult(w, http.StatusOK, msg, nil)
	}
}

// DeleteProxySelectors serves DELETE /proxy-selector/batch with a JSON array
// of ids as body.
func DeleteProxySelectors(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		if err := decodeJSON(w, r, &ids); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		msg, err := d.Service.Delete(r.Context(), ids)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeResult(w, http.StatusOK, msg, nil)
	}
}

func parsePageQuery(r *http.Request) (domain.PageQuery, error) {
	values := r.URL.Query()
	q := domain.PageQuery{Name: strings.TrimSpace(values.Get("name"))}

	var err error
	if q.CurrentPage, err = intParam(values.Get("currentPage")); err != nil {
		return q, fmt.Errorf("%w: currentPage %v", domain.ErrValidation, err)
	}
	if q.PageSize, err = intParam(values.Get("pageSize")); err != nil {
		return q, fmt.Errorf("%w: pageSize %v", domain.ErrValidation, err)
	}
	return q, nil
}

// intParam parses an optional integer query parameter; empty means 0.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("must be an integer, got %q", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("must be >= 0, got %d", n)
	}
	return n, nil
}
