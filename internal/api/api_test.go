package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goletan/servicehost/internal/api"
	"github.com/goletan/servicehost/internal/dbtransfer"
	"github.com/goletan/servicehost/internal/lifecycle"
	"github.com/goletan/servicehost/internal/metrics"
	"github.com/goletan/servicehost/internal/registry"
	"github.com/goletan/servicehost/internal/serverconfig"
	"github.com/goletan/servicehost/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubConn struct{ id string }

func (s stubConn) ID() string   { return s.id }
func (s stubConn) Close() error { return nil }

type stubBinder struct {
	mu         sync.Mutex
	failing    map[string]bool
	terminated []string
}

func (b *stubBinder) Bind(_ context.Context, desc types.Descriptor, n types.Notifier) error {
	b.mu.Lock()
	fail := b.failing[desc.Name]
	b.mu.Unlock()
	if fail {
		return errors.New("connection refused")
	}
	go n.Connected(stubConn{id: desc.Name + "-conn"})
	return nil
}

func (b *stubBinder) Unbind(context.Context, types.Connection) error { return nil }

func (b *stubBinder) Terminate(_ context.Context, desc types.Descriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminated = append(b.terminated, desc.Name)
	return nil
}

type fixture struct {
	server   *httptest.Server
	registry *registry.Registry
	binder   *stubBinder
	config   string
	database string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	b := &stubBinder{failing: map[string]bool{"broken": true}}
	met := metrics.InitMetrics()

	reg := registry.NewRegistry(zap.NewNop())
	for _, name := range []string{"mapleserver", "broken"} {
		c := lifecycle.New(types.Descriptor{Name: name, ControlAddr: "127.0.0.1:8484"}, b, zap.NewNop(), met)
		require.NoError(t, reg.Register(c))
	}
	owner, err := reg.Get("mapleserver")
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("# server\nserver:\n  login_port: 8484\n"), 0o644))
	dbPath := filepath.Join(dir, "maple.db")

	handler := api.NewRouter(api.Deps{
		Services: reg,
		Config:   serverconfig.NewEditor(cfgPath, zap.NewNop()),
		Database: dbtransfer.New(dbPath, owner, zap.NewNop()),
		Metrics:  met.Handler(),
		Version:  "test",
	}, zap.NewNop())

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, registry: reg, binder: b, config: cfgPath, database: dbPath}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decode[api.HealthResponse](t, resp)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "test", h.Version)
	assert.Equal(t, 2, h.Services)
}

func TestServiceLifecycleRoutes(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/services", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]api.ServiceStatus](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, "unbound", list[1].State)

	resp = f.do(t, http.MethodPost, "/api/v1/services/mapleserver/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[api.ServiceStatus](t, resp)
	assert.True(t, st.Bound)
	assert.Equal(t, "bound", st.State)
	assert.Equal(t, "mapleserver-conn", st.Connection)

	resp = f.do(t, http.MethodPost, "/api/v1/services/mapleserver/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decode[api.ServiceStatus](t, resp)
	assert.False(t, st.Bound)
	assert.Equal(t, "unbound", st.State)

	resp = f.do(t, http.MethodPost, "/api/v1/services/mapleserver/shutdown", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"mapleserver"}, f.binder.terminated)
}

func TestServiceStartFailure(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/services/broken/start", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, api.ContentTypeProblemJSON, resp.Header.Get("Content-Type"))

	c, err := f.registry.Get("broken")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Unbound, c.State())
}

func TestUnknownService(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/services/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/v1/services/nope/start", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfigRoutes(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "login_port: 8484")

	resp = f.do(t, http.MethodPatch, "/api/v1/config", strings.NewReader(`{"path":"server.login_port","value":8485}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v := decode[api.ConfigValue](t, resp)
	assert.EqualValues(t, 8485, v.Value)

	data, err := os.ReadFile(f.config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "login_port: 8485")
	assert.Contains(t, string(data), "# server")

	resp = f.do(t, http.MethodGet, "/api/v1/config?path=server.missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPatch, "/api/v1/config", strings.NewReader(`not json`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/config", strings.NewReader("- not\n- a mapping\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/config", strings.NewReader("server:\n  login_port: 9000\n"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/v1/config?path=server.login_port", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 9000, decode[api.ConfigValue](t, resp).Value)
}

func TestMissingConfig(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.config))

	resp := f.do(t, http.MethodGet, "/api/v1/config", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/config", strings.NewReader("server: {}\n"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, err := os.Stat(f.config)
	assert.NoError(t, err)
}

func TestDatabaseRoutes(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/database/export", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/database/import", bytes.NewReader([]byte("garbage")))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/services/mapleserver/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/api/v1/database/export", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/v1/database/import", bytes.NewReader([]byte("garbage")))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDatabaseExportStreamsFile(t *testing.T) {
	f := newFixture(t)
	content := []byte("SQLite format 3\x00 pretend payload")
	require.NoError(t, os.WriteFile(f.database, content, 0o644))

	resp := f.do(t, http.MethodGet, "/api/v1/database/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "maple.db")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/services/broken/start", nil)

	resp := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "servicehost_binding_state")
	assert.Contains(t, string(body), "servicehost_binding_failures_total")
}

func TestServerStartStop(t *testing.T) {
	srv := api.NewServer(types.APIConfig{Enabled: true, Listen: "127.0.0.1:0"},
		api.NewRouter(api.Deps{Version: "test"}, zap.NewNop()), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	<-srv.Ready()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
	assert.NoError(t, srv.Stop(context.Background()))
}
