package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loquat-fw/loquat/internal/adapter"
	"github.com/loquat-fw/loquat/internal/channel"
	"github.com/loquat-fw/loquat/internal/config"
	"github.com/loquat-fw/loquat/internal/engine"
	"github.com/loquat-fw/loquat/internal/plugin"
	"github.com/loquat-fw/loquat/internal/router"
	"github.com/loquat-fw/loquat/internal/stream"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := stream.New(nil, stream.RegisterBuiltins)
	require.NoError(t, err)

	e := engine.New(router.New(true), channel.NewManager(true), st, nil)
	require.NoError(t, e.Start(context.Background(), nil))

	adapters := adapter.NewManager(t.TempDir(), nil, nil, adapter.NewCompositeLoader(), nil)
	plugins := plugin.NewManager(t.TempDir(), nil, nil, plugin.NewCompositeLoader(),
		&plugin.StreamRegistrar{Stream: st, Factories: adapter.NewFactoryRegistry()}, nil)

	cfg := &config.Config{
		General: config.GeneralConfig{Environment: "test", Name: "loquat-test"},
		Logging: config.LoggingConfig{Level: "info"},
		Web:     config.WebConfig{Host: "127.0.0.1", Port: 8080},
		Pipeline: config.PipelineConfig{
			IterationCap:       64,
			AutoRoute:          true,
			AutoCreateChannels: true,
		},
	}

	return NewServer(cfg.Web, Deps{
		Engine:   e,
		Plugins:  plugins,
		Adapters: adapters,
		Config:   cfg,
		Version:  "test",
	}, nil)
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestServer_RootReportsEngineStatus(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeEnvelope(t, rr)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "Running", data["status"])
}

func TestServer_HealthIncludesEngineStats(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeEnvelope(t, rr)
	data := body["data"].(map[string]any)
	assert.Contains(t, data, "processed")
}

func TestServer_ListPluginsEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/plugins", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeEnvelope(t, rr)
	assert.Equal(t, true, body["success"])
}

func TestServer_GetUnknownPluginReturnsEnvelopeFailure(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/plugins/nope", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	body := decodeEnvelope(t, rr)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestServer_GetConfigReturnsSummary(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	body := decodeEnvelope(t, rr)
	data := body["data"].(map[string]any)
	assert.Equal(t, "test", data["environment"])
	assert.Equal(t, float64(64), data["pipeline_iteration_cap"])
}
