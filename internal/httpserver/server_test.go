package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/selectord/internal/config"
	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/httpserver/deps"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/metrics"
	"github.com/MrSnakeDoc/selectord/internal/scheduler"
	"github.com/MrSnakeDoc/selectord/internal/selector"
	"github.com/MrSnakeDoc/selectord/internal/store"
	"github.com/MrSnakeDoc/selectord/internal/store/memory"
)

type testEnv struct {
	handler http.Handler
	store   *memory.Store
}

func newEnv(t *testing.T, mutate ...func(d *deps.Deps)) *testEnv {
	t.Helper()
	st := memory.New()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := logger.NewNop()

	d := deps.Deps{
		Logger:    log,
		StartTime: time.Now(),
		Version:   "test",
		Service: selector.NewService(st, log, selector.Options{
			IDs:     selector.NewSequenceGenerator("id-"),
			Metrics: m,
		}),
		Store:    st,
		Auditor:  scheduler.NewConsistencyAuditor(st, log, m),
		Metrics:  m,
		Gatherer: reg,
	}
	for _, fn := range mutate {
		fn(&d)
	}

	cfg := &config.Config{RequestTimeout: 5 * time.Second}
	return &testEnv{handler: NewRouter(cfg, log, d), store: st}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "10.1.2.3:4567"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

const svcABody = `{
	"name": "svc-a",
	"forwardPort": 8080,
	"discovery": {"discoveryType": "zookeeper", "serverList": "127.0.0.1:2181"},
	"listenerNode": "/svc-a",
	"discoveryUpstreams": [{"url": "10.0.0.1:9000", "weight": 50}]
}`

func TestProxySelectorLifecycle(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/proxy-selector", svcABody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, envelope{Code: 200, Message: "create success"}, decode(t, rec))

	rec = env.do(t, http.MethodGet, "/proxy-selector?name=svc&currentPage=1&pageSize=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)
	assert.Equal(t, "query success", res.Message)

	var pager domain.Pager[domain.ProxySelectorView]
	require.NoError(t, json.Unmarshal(res.Data, &pager))
	assert.Equal(t, 1, pager.Page.TotalCount)
	require.Len(t, pager.DataList, 1)
	view := pager.DataList[0]
	assert.Equal(t, "svc-a", view.Name)
	require.NotNil(t, view.Discovery)
	assert.Equal(t, "zookeeper", view.Discovery.Type)
	require.Len(t, view.Upstreams, 1)
	assert.Equal(t, "10.0.0.1:9000", view.Upstreams[0].URL)

	update := strings.Replace(svcABody, `"10.0.0.1:9000"`, `"10.0.0.2:9000"`, 1)
	rec = env.do(t, http.MethodPut, "/proxy-selector/"+view.ID, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "update success", decode(t, rec).Message)

	rec = env.do(t, http.MethodGet, "/proxy-selector", "")
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &pager))
	require.Len(t, pager.DataList[0].Upstreams, 1)
	assert.Equal(t, "10.0.0.2:9000", pager.DataList[0].Upstreams[0].URL)

	rec = env.do(t, http.MethodDelete, "/proxy-selector/batch", `["`+view.ID+`"]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "delete success", decode(t, rec).Message)

	rec = env.do(t, http.MethodGet, "/proxy-selector", "")
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &pager))
	assert.Empty(t, pager.DataList)
	assert.Zero(t, pager.Page.TotalCount)
}

func TestCreateOrUpdateDispatchesOnID(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/proxy-selector", svcABody).Code)

	ps, err := env.store.ProxySelectors().SelectByName(context.Background(), "svc-a")
	require.NoError(t, err)

	body := strings.Replace(svcABody, `"name": "svc-a"`, `"id": "`+ps.ID+`", "name": "svc-a2"`, 1)
	rec := env.do(t, http.MethodPost, "/proxy-selector", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "update success", decode(t, rec).Message)

	got, err := env.store.ProxySelectors().SelectByID(context.Background(), ps.ID)
	require.NoError(t, err)
	assert.Equal(t, "svc-a2", got.Name)
}

func TestErrorStatusMapping(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/proxy-selector", svcABody).Code)
	ps, err := env.store.ProxySelectors().SelectByName(context.Background(), "svc-a")
	require.NoError(t, err)

	// break the chain of svc-a
	rel, err := env.store.Relations().SelectByProxySelectorID(context.Background(), ps.ID)
	require.NoError(t, err)
	require.NoError(t, env.store.Relations().DeleteByID(context.Background(), rel.ID))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "malformed json", method: http.MethodPost, path: "/proxy-selector", body: `{"name":`, status: http.StatusBadRequest},
		{name: "empty body", method: http.MethodPost, path: "/proxy-selector", status: http.StatusBadRequest},
		{name: "missing discovery", method: http.MethodPost, path: "/proxy-selector", body: `{"name":"x","forwardPort":1,"listenerNode":"/x"}`, status: http.StatusBadRequest},
		{name: "bad page size", method: http.MethodGet, path: "/proxy-selector?pageSize=abc", status: http.StatusBadRequest},
		{name: "negative page", method: http.MethodGet, path: "/proxy-selector?currentPage=-1", status: http.StatusBadRequest},
		{name: "unknown selector", method: http.MethodPut, path: "/proxy-selector/nope", body: svcABody, status: http.StatusNotFound},
		{name: "broken chain", method: http.MethodPut, path: "/proxy-selector/" + ps.ID, body: svcABody, status: http.StatusConflict},
		{name: "empty delete", method: http.MethodDelete, path: "/proxy-selector/batch", body: `[]`, status: http.StatusBadRequest},
		{name: "delete not an array", method: http.MethodDelete, path: "/proxy-selector/batch", body: `{"ids":[]}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			res := decode(t, rec)
			assert.Equal(t, tt.status, res.Code)
			assert.NotEmpty(t, res.Message)
		})
	}
}

type brokenStore struct {
	*memory.Store
}

func (brokenStore) Ping(context.Context) error { return errors.New("connection refused") }
func (brokenStore) Name() string               { return "broken" }

func (b brokenStore) ProxySelectors() store.ProxySelectorRepository {
	return failingSelectors{b.Store.ProxySelectors()}
}

type failingSelectors struct {
	store.ProxySelectorRepository
}

func (failingSelectors) SelectByQuery(context.Context, store.SelectorFilter) ([]*domain.ProxySelector, int, error) {
	return nil, 0, errors.New("disk on fire")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	env := newEnv(t, func(d *deps.Deps) {
		bs := brokenStore{memory.New()}
		d.Store = bs
		d.Service = selector.NewService(bs, d.Logger, selector.Options{Metrics: d.Metrics})
	})

	rec := env.do(t, http.MethodGet, "/proxy-selector", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	res := decode(t, rec)
	assert.Equal(t, "Internal Server Error", res.Message)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestOpsEndpoints(t *testing.T) {
	trigger := make(chan struct{}, 1)
	env := newEnv(t, func(d *deps.Deps) { d.ReloadTrigger = trigger })

	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":true`)

	rec = env.do(t, http.MethodPost, "/reload", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = env.do(t, http.MethodPost, "/reload", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "trigger still pending")

	env.do(t, http.MethodPost, "/proxy-selector", svcABody)
	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `selectord_operations_total{operation="create",result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `selectord_http_requests_total`)
}

func TestReadyzReportsStoreFailure(t *testing.T) {
	env := newEnv(t, func(d *deps.Deps) { d.Store = brokenStore{memory.New()} })

	rec := env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestReloadWithoutSeedFile(t *testing.T) {
	env := newEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/reload", "").Code)
}

func TestInfra(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/proxy-selector", svcABody).Code)

	type infra struct {
		Mode       string `json:"mode"`
		Components map[string]struct {
			OK     bool                    `json:"ok"`
			Broken []scheduler.BrokenChain `json:"broken"`
		} `json:"components"`
	}

	var got infra
	rec := env.do(t, http.MethodGet, "/infra", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "healthy", got.Mode)
	assert.True(t, got.Components["store"].OK)

	// a selector without chain degrades the service
	require.NoError(t, env.store.ProxySelectors().Insert(context.Background(), &domain.ProxySelector{ID: "bare", Name: "bare"}))
	rec = env.do(t, http.MethodGet, "/infra", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "degraded", got.Mode)
	require.Len(t, got.Components["consistency"].Broken, 1)
	assert.Equal(t, "relation", got.Components["consistency"].Broken[0].Missing)
}

func TestAccessRestrictions(t *testing.T) {
	env := newEnv(t, func(d *deps.Deps) {
		d.AllowedCIDRS = []string{"192.168.0.0/16"}
		d.AllowedHosts = []string{"admin.local"}
	})

	// RemoteAddr 10.1.2.3 is outside the allowed range
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/proxy-selector", "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code, "liveness stays open")

	req := httptest.NewRequest(http.MethodGet, "/proxy-selector", nil)
	req.RemoteAddr = "192.168.1.1:1000"
	req.Host = "admin.local:8080"
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req.Host = "evil.local"
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWriteRateLimit(t *testing.T) {
	env := newEnv(t, func(d *deps.Deps) {
		d.WriteRatePerMin = 1
		d.WriteRateBurst = 1
	})

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/proxy-selector", svcABody).Code)
	rec := env.do(t, http.MethodPost, "/proxy-selector", svcABody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// reads are not limited
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/proxy-selector", "").Code)
}
