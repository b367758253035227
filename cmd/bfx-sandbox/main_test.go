package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/bfx/internal/sandbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLoadConfig_defaultsAndEnv(t *testing.T) {
	t.Setenv("SANDBOX_RATE_LIMIT_RPS", "3")
	if err := loadConfig(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := viper.GetInt("sandbox.port"); got != 8089 {
		t.Errorf("port = %d", got)
	}
	if got := viper.GetFloat64("sandbox.rate_limit_rps"); got != 3 {
		t.Errorf("rate limit = %v", got)
	}
	if got := viper.GetInt("sandbox.max_recorded"); got != sandbox.DefaultMaxRecorded {
		t.Errorf("max recorded = %d", got)
	}
	if viper.GetString("sandbox.api_key") == "" || viper.GetString("sandbox.api_secret") == "" {
		t.Error("default credentials missing")
	}
}

func TestRouter_corsPreflight(t *testing.T) {
	x := sandbox.New(sandbox.Config{Keys: map[string]string{"k": "s"}}, zap.NewNop())
	r := newRouter(x, []string{"http://localhost:3000"}, zap.NewNop())

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/v2/auth/r/wallets", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "bfx-signature")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := preflight("http://localhost:3000")
	if w.Code != http.StatusNoContent {
		t.Fatalf("allowed origin preflight = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if w := preflight("http://evil.example"); w.Code != http.StatusForbidden {
		t.Errorf("foreign origin preflight = %d, want 403", w.Code)
	}
}

func TestRouter_servesSandboxRoutes(t *testing.T) {
	x := sandbox.New(sandbox.Config{}, zap.NewNop())
	r := newRouter(x, []string{"*"}, zap.NewNop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/platform/status", nil))
	if w.Code != http.StatusOK {
		t.Errorf("platform status = %d", w.Code)
	}
}

func TestContainsWildcard(t *testing.T) {
	if !containsWildcard([]string{"http://a", " * "}) {
		t.Error("wildcard not detected")
	}
	if containsWildcard([]string{"http://a"}) {
		t.Error("false wildcard")
	}
}
