package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/cooper437/commodities-research/internal/infrastructure"
	"github.com/cooper437/commodities-research/internal/shared/testutil"
)

func TestRequestID_GeneratesID(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetReqID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))

	require.NotEmpty(t, captured)
	assert.Equal(t, captured, w.Header().Get("X-Request-ID"))
	assert.Len(t, captured, 36) // UUID v4
}

func TestRequestID_HonorsHeader(t *testing.T) {
	var captured string
	var traceID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetReqID(r.Context())
		traceID = infrastructure.GetTraceID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.Header.Set("X-Request-ID", "client-supplied-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, "client-supplied-id", captured)
	assert.Equal(t, "client-supplied-id", traceID)
	assert.Equal(t, "client-supplied-id", w.Header().Get("X-Request-ID"))
}

func TestGetRequestID_FallsBackToTraceID(t *testing.T) {
	ctx := infrastructure.WithTraceID(context.Background(), "trace-only")
	assert.Equal(t, "trace-only", GetRequestID(ctx))

	ctx = context.WithValue(ctx, RequestIDKey, "req-id")
	assert.Equal(t, "req-id", GetRequestID(ctx))

	assert.Empty(t, GetReqID(context.Background()))
}

func TestStructuredLogger(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)

	mw := StructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("done"))
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/operations", nil)
	r = r.WithContext(infrastructure.WithTraceID(r.Context(), "trace-123"))
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, r)

	assert.True(t, handler.ContainsMessage("request started"))
	assert.True(t, handler.ContainsMessage("request completed"))
	assert.True(t, handler.ContainsAttr("trace_id", "trace-123"))
	assert.True(t, handler.ContainsAttr("status", int64(http.StatusCreated)))
	assert.True(t, handler.ContainsAttr("path", "/api/operations"))
}

func TestRecoverer(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)

	mw := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("volume profile exploded")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/datasets/volume_by_open_minute", nil)
	r = r.WithContext(infrastructure.WithTraceID(r.Context(), "trace-456"))
	w := httptest.NewRecorder()

	require.NotPanics(t, func() {
		mw.ServeHTTP(w, r)
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Internal Server Error")
	assert.Contains(t, w.Body.String(), "trace-456")
	assert.True(t, handler.ContainsMessage("panic recovered"))
}

func TestRecoverer_PassThrough(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)

	mw := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	mw.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, handler.Count())
}

func TestRateLimiter(t *testing.T) {
	logger, logHandler := testutil.NewTestLogger(t)
	rl := NewRateLimiter(1, 1, logger)

	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "rate-limit-exceeded")
	assert.True(t, logHandler.ContainsMessage("rate limit exceeded"))
}

func TestTimeout(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	mw := Timeout(20*time.Millisecond, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(50 * time.Millisecond)
	}))

	w := httptest.NewRecorder()
	mw.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/operations", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "request-timeout")
}

func TestTimeout_CompletesInTime(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	mw := Timeout(time.Second, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	mw.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORS(t *testing.T) {
	config := CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	handler := CORS(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("allowed origin echoed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
		r.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
	})

	t.Run("disallowed origin not echoed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
		r.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight answered", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/operations", nil)
		r.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "300", w.Header().Get("Access-Control-Max-Age"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))
	// No TLS in test, so no HSTS
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_SkipsWebSocketUpgrade(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
}

func TestSecureHeaders_CustomPolicy(t *testing.T) {
	sh := &SecureHeaders{
		ContentSecurityPolicy: "default-src 'none'",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            300,
		DevMode:               true,
	}

	handler := sh.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	// DevMode allows HSTS without TLS
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=300")
}

func TestAuditLog(t *testing.T) {
	logger, logHandler := testutil.NewTestLogger(t)

	handler := AuditLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/operations?steps=volume_profile", nil)
	r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, "audit-req"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.True(t, logHandler.ContainsMessage("audit log"))
	assert.True(t, logHandler.ContainsMessage("audit log complete"))
	assert.True(t, logHandler.ContainsAttr("request_id", "audit-req"))
	assert.True(t, logHandler.ContainsAttr("event_type", "api_response"))
	assert.True(t, logHandler.ContainsAttr("status", int64(http.StatusAccepted)))
}

func TestBusinessMetricsContext(t *testing.T) {
	assert.Nil(t, GetBusinessMetricsFromContext(context.Background()))

	metrics, err := infrastructure.CreateBusinessMetrics(otel.Meter("middleware-test"))
	require.NoError(t, err)

	var fromHandler *infrastructure.BusinessMetrics
	handler := BusinessMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromHandler = GetBusinessMetricsFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))

	assert.Same(t, metrics, fromHandler)
}

func TestPipelineTraceHandler(t *testing.T) {
	metrics, err := infrastructure.CreateBusinessMetrics(otel.Meter("middleware-test"))
	require.NoError(t, err)

	called := false
	handler := BusinessMetricsMiddleware(metrics)(
		PipelineTraceHandler("pipeline", func(w http.ResponseWriter, r *http.Request) {
			called = true
			RecordPipelineStageMetrics(r.Context(), "op-1", "volume_profile", 25*time.Millisecond, true)
			RecordSystemError(r.Context(), "io", "loader")
			w.WriteHeader(http.StatusAccepted)
		}),
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/operations", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "X-Forwarded-For wins",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1", "X-Real-IP": "10.0.0.2"},
			remoteAddr: "127.0.0.1:1234",
			want:       "10.0.0.1",
		},
		{
			name:       "X-Real-IP fallback",
			headers:    map[string]string{"X-Real-IP": "10.0.0.2"},
			remoteAddr: "127.0.0.1:1234",
			want:       "10.0.0.2",
		},
		{
			name:       "remote addr fallback",
			remoteAddr: "192.168.1.5:9999",
			want:       "192.168.1.5:9999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetRealIP(r))
		})
	}
}

func TestMiddlewareChain(t *testing.T) {
	logger, logHandler := testutil.NewTestLogger(t)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	handler = SecurityHeaders(handler)
	handler = StructuredLogger(logger)(handler)
	handler = Recoverer(logger)(handler)
	handler = RequestID(handler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.True(t, logHandler.ContainsMessage("request completed"))

	// The generated request ID is carried into logs as trace_id
	found := false
	for _, rec := range logHandler.GetRecords() {
		if v, ok := rec.Attrs["trace_id"]; ok {
			if s, ok := v.(string); ok && strings.Count(s, "-") == 4 {
				found = true
			}
		}
	}
	assert.True(t, found, "expected UUID trace_id in log records")
}
