package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	config "market-insights-api/configs"
	"market-insights-api/pkg/handlers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	// テスト環境の設定
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestApplicationSetup(t *testing.T) {
	cfg := &config.Config{
		Environment:     "test",
		ResultCacheSize: 4,
		AllowAllOrigins: true,
	}

	r, err := handlers.NewEngine(cfg, zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"policy", http.MethodGet, "/api/v1/analysis/policy", http.StatusOK},
		{"health-status", http.MethodGet, "/api/v1/admin/health-status", http.StatusOK},
		{"logs", http.MethodGet, "/api/v1/monitoring/logs", http.StatusOK},
		{"unknown", http.MethodGet, "/api/v1/unknown/route", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestApplicationSetupRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("statistics:\n  significance_level: 2\n"), 0o600))

	_, err := handlers.NewEngine(&config.Config{PolicyFile: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestApplicationSetupPValueMode(t *testing.T) {
	_, err := handlers.NewEngine(&config.Config{PValueMode: config.PValueExact}, nil)
	assert.NoError(t, err)

	_, err = handlers.NewEngine(&config.Config{PValueMode: "bogus"}, nil)
	assert.Error(t, err)
}
