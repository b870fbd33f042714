package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/infrastructure"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApplication wires a full application against a throwaway
// workspace, skipping only config.Load and the global logger.
func newTestApplication(t *testing.T) *Application {
	t.Helper()

	cfg := config.Default()
	cfg.Data.BaseDir = t.TempDir()

	logger := testLogger()

	paths, err := cfg.ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	require.NoError(t, err)

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: providers,
	}
	require.NoError(t, app.initializeServices())
	t.Cleanup(func() {
		app.WebSocketHub.Stop()
		app.Manager.Stop()
	})

	app.setupRouter()
	app.createServer()
	return app
}

func doRequest(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestApplicationRouter(t *testing.T) {
	app := newTestApplication(t)

	tests := []struct {
		name           string
		method         string
		target         string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "health endpoint",
			method:         http.MethodGet,
			target:         "/api/health",
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"ok"`,
		},
		{
			name:           "version endpoint",
			method:         http.MethodGet,
			target:         "/api/version",
			expectedStatus: http.StatusOK,
			expectedBody:   `"go_version"`,
		},
		{
			name:           "dataset catalog empty workspace",
			method:         http.MethodGet,
			target:         "/api/datasets",
			expectedStatus: http.StatusOK,
			expectedBody:   `"count":0`,
		},
		{
			name:           "workbook not built",
			method:         http.MethodGet,
			target:         "/api/workbook",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "operations list empty",
			method:         http.MethodGet,
			target:         "/api/operations",
			expectedStatus: http.StatusOK,
			expectedBody:   `"count":0`,
		},
		{
			name:           "pipeline step catalog",
			method:         http.MethodGet,
			target:         "/api/operations/steps",
			expectedStatus: http.StatusOK,
			expectedBody:   "expirations",
		},
		{
			name:           "websocket stats",
			method:         http.MethodGet,
			target:         "/api/websocket/stats",
			expectedStatus: http.StatusOK,
			expectedBody:   "active_clients",
		},
		{
			name:           "prometheus scrape",
			method:         http.MethodGet,
			target:         "/metrics",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "websocket route rejects plain requests",
			method:         http.MethodGet,
			target:         "/ws",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown api route",
			method:         http.MethodGet,
			target:         "/api/nope",
			expectedStatus: http.StatusNotFound,
			expectedBody:   "Not Found",
		},
		{
			name:           "method not allowed",
			method:         http.MethodPost,
			target:         "/api/version",
			expectedStatus: http.StatusMethodNotAllowed,
			expectedBody:   "Method Not Allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, app.Router, tt.method, tt.target)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, rec.Body.String(), tt.expectedBody)
			}
		})
	}
}

func TestApplicationRouterSecurityHeaders(t *testing.T) {
	app := newTestApplication(t)

	rec := doRequest(t, app.Router, http.MethodGet, "/api/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestCORSConfig(t *testing.T) {
	tests := []struct {
		name        string
		configure   func(cfg *config.Config)
		contains    []string
		notContains []string
	}{
		{
			name: "always allows own origin",
			configure: func(cfg *config.Config) {
				cfg.Security.EnableCORS = false
				cfg.Security.AllowedOrigins = []string{"https://research.example.com"}
			},
			contains: []string{
				"http://localhost:8080",
				"http://127.0.0.1:8080",
			},
			notContains: []string{
				"https://research.example.com",
				"http://localhost:3000",
			},
		},
		{
			name: "configured origins appended when CORS enabled",
			configure: func(cfg *config.Config) {
				cfg.Security.EnableCORS = true
				cfg.Security.AllowedOrigins = []string{"https://research.example.com"}
			},
			contains: []string{
				"http://localhost:8080",
				"https://research.example.com",
			},
			notContains: []string{
				"http://localhost:3000",
			},
		},
		{
			name: "development adds local dev servers",
			configure: func(cfg *config.Config) {
				cfg.Security.EnableCORS = false
				cfg.Logging.Development = true
			},
			contains: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.configure(cfg)

			app := &Application{Config: cfg, Logger: testLogger()}
			corsConfig := app.corsConfig()

			for _, origin := range tt.contains {
				assert.Contains(t, corsConfig.AllowedOrigins, origin)
			}
			for _, origin := range tt.notContains {
				assert.NotContains(t, corsConfig.AllowedOrigins, origin)
			}

			assert.Contains(t, corsConfig.AllowedMethods, "POST")
			assert.Contains(t, corsConfig.ExposedHeaders, "X-Request-ID")
			assert.True(t, corsConfig.AllowCredentials)
			assert.Equal(t, 300, corsConfig.MaxAge)
		})
	}
}

func TestPerformStartupHealthCheck(t *testing.T) {
	t.Run("writable workspace", func(t *testing.T) {
		paths := config.PathsFrom(t.TempDir())
		require.NoError(t, paths.EnsureDirectories())

		app := &Application{Paths: paths, Logger: testLogger()}
		assert.NoError(t, app.performStartupHealthCheck(context.Background()))
	})

	t.Run("missing directories reported", func(t *testing.T) {
		paths := config.PathsFrom(filepath.Join(t.TempDir(), "missing"))

		app := &Application{Paths: paths, Logger: testLogger()}
		err := app.performStartupHealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not writable")
	})
}

func TestCreateServer(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 9155
	cfg.Server.ReadTimeout = 10 * time.Second

	app := &Application{Config: cfg, Logger: testLogger()}
	app.createServer()

	require.NotNil(t, app.Server)
	assert.Equal(t, ":9155", app.Server.Addr)
	assert.Equal(t, 10*time.Second, app.Server.ReadTimeout)
	assert.Equal(t, cfg.Server.WriteTimeout, app.Server.WriteTimeout)
	assert.Equal(t, cfg.Server.IdleTimeout, app.Server.IdleTimeout)
	assert.Equal(t, cfg.Server.MaxHeaderBytes, app.Server.MaxHeaderBytes)
}
