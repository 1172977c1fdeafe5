package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"snapconvert/internal/converter"
	"snapconvert/internal/dispatcher"
	"snapconvert/internal/handlers"
	"snapconvert/internal/middleware"
	"snapconvert/internal/registry"
	"snapconvert/internal/startup"
)

type noopConverter struct{}

func (noopConverter) HandleBatch(context.Context, dispatcher.Request) (dispatcher.Batch, error) {
	return dispatcher.Batch{Success: true}, nil
}

type noopChecker struct{}

func (noopChecker) Check(context.Context) map[string]error { return map[string]error{} }

func testConfig(t *testing.T) *startup.Config {
	t.Helper()
	return &startup.Config{
		Port:              "0",
		FrontendURL:       "http://localhost:5173",
		TmpDir:            t.TempDir(),
		MaxFileSize:       1 << 20,
		MaxFiles:          2,
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
		LogHealthChecks:   true,
	}
}

func testServer(t *testing.T) http.Handler {
	t.Helper()
	config := testConfig(t)
	reg := registry.New(registry.NewMemoryStore(), "memory")
	h := handlers.New(noopConverter{}, reg, noopChecker{}, handlers.Config{
		MaxFileSize: config.MaxFileSize,
		MaxFiles:    config.MaxFiles,
		WorkDir:     config.TmpDir,
	})

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Requests:   config.RateLimitRequests,
		Window:     config.RateLimitWindow,
		PathPrefix: "/api/",
	})
	handler, err := buildHandler(setupRouter(h), config, limiter)
	if err != nil {
		t.Fatalf("buildHandler() error: %v", err)
	}
	return handler
}

func TestSetupRouterRoutes(t *testing.T) {
	handler := testServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/livez", http.StatusOK},
		{"GET", "/readyz", http.StatusOK},
		{"GET", "/version", http.StatusOK},
		{"GET", "/api/formats", http.StatusOK},
		{"GET", "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, http.NoBody))
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestRouteNotFoundIsJSON(t *testing.T) {
	handler := testServer(t)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/missing", http.NoBody))

	if !strings.Contains(w.Body.String(), "Route not found") {
		t.Errorf("Unexpected body %q", w.Body.String())
	}
}

func TestDownloadRouteRejectsInvalidID(t *testing.T) {
	handler := testServer(t)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/download/abc", http.NoBody))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestCORSAllowsFrontendOrigin(t *testing.T) {
	handler := testServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/convert", http.NoBody)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Expected allowed origin, got %q", got)
	}

	req = httptest.NewRequest("GET", "/livez", http.NoBody)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Unexpected allowed origin %q", got)
	}
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	handler := testServer(t)

	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/formats", http.NoBody))
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("Expected third request to be limited, got %d", last)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/livez", http.NoBody))
	if w.Code != http.StatusOK {
		t.Errorf("Health checks should not be limited, got %d", w.Code)
	}
}

func TestConverterConfig(t *testing.T) {
	config := testConfig(t)
	config.SofficePath = "/opt/lo/soffice"
	config.ConversionTimeout = 45 * time.Second
	config.VideoTimeout = 2 * time.Minute
	config.PDFDPI = 300

	cfg := converterConfig(config)
	if cfg.SofficePath != "/opt/lo/soffice" || cfg.Timeout != 45*time.Second ||
		cfg.VideoTimeout != 2*time.Minute || cfg.PDFDPI != 300 {
		t.Errorf("Unexpected converter config %+v", cfg)
	}
	if cfg.KillGrace != converter.DefaultKillGrace {
		t.Errorf("Expected default kill grace, got %v", cfg.KillGrace)
	}
}

func TestRegistryOptions(t *testing.T) {
	config := testConfig(t)
	config.RegistryBackend = "redis"
	config.RedisAddr = "cache:6379"
	config.RedisDB = 2

	opts := registryOptions(config)
	if opts.Backend != "redis" || opts.Redis.Addr != "cache:6379" || opts.Redis.DB != 2 {
		t.Errorf("Unexpected registry options %+v", opts)
	}
}

func TestRouteAndToolNames(t *testing.T) {
	if len(routeNames()) != len(dispatcher.Routes) {
		t.Error("Expected one name per route")
	}
	names := toolNames(converter.NewSet(converter.DefaultConfig()))
	if len(names) != 5 {
		t.Errorf("Expected 5 tool names, got %v", names)
	}
}
