package config

import (
	"testing"
	"time"

	"github.com/openbridge/openbridge-backend/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":4000", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "openbridge_transfers", cfg.Storage.Key)
	assert.True(t, cfg.Storage.Failover)
	assert.Equal(t, "admin", cfg.Analytics.Key)
	assert.Equal(t, time.Minute, cfg.Iris.QuoteTTL)
	assert.Equal(t, 10*time.Second, cfg.Bridge.HTTPTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Bridge.EstimateDebounce)
	assert.Equal(t, 600, cfg.Security.RateLimitRPM)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Security.CORSAllowedOrigins)
	assert.Equal(t, "https://iris-api.circle.com", cfg.IrisBaseURL())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OB_ENV", "PROD")
	t.Setenv("OB_STORAGE_BACKEND", "sqlite")
	t.Setenv("OB_SQLITE_PATH", "/tmp/transfers.db")
	t.Setenv("OB_ANALYTICS_KEY", "  secret  ")
	t.Setenv("OB_ANALYTICS_URL", "https://analytics.example.com/")
	t.Setenv("OB_IRIS_NETWORK", "testnet")
	t.Setenv("OB_FEE_QUOTE_TTL", "5m")
	t.Setenv("OB_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, "secret", cfg.Analytics.Key)
	assert.Equal(t, "https://analytics.example.com", cfg.Analytics.URL)
	assert.Equal(t, "https://iris-api-sandbox.circle.com", cfg.IrisBaseURL())
	assert.Equal(t, 5*time.Minute, cfg.Iris.QuoteTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Security.CORSAllowedOrigins)

	kvCfg := cfg.KV(nil)
	assert.Equal(t, kv.BackendSQLite, kvCfg.Backend)
	assert.Equal(t, "/tmp/transfers.db", kvCfg.SQLitePath)
}

func TestLoad_IrisBaseURLOverride(t *testing.T) {
	t.Setenv("OB_IRIS_BASE_URL", "http://localhost:9999/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.IrisBaseURL())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"env", map[string]string{"OB_ENV": "staging"}, "OB_ENV"},
		{"log level", map[string]string{"OB_LOG_LEVEL": "trace"}, "OB_LOG_LEVEL"},
		{"storage backend", map[string]string{"OB_STORAGE_BACKEND": "etcd"}, "OB_STORAGE_BACKEND"},
		{"redis url", map[string]string{"OB_STORAGE_BACKEND": "redis", "OB_REDIS_URL": " "}, "OB_REDIS_URL"},
		{"analytics store", map[string]string{"OB_ANALYTICS_STORE": "mysql"}, "OB_ANALYTICS_STORE"},
		{"analytics key", map[string]string{"OB_ANALYTICS_KEY": "   "}, "OB_ANALYTICS_KEY"},
		{"iris network", map[string]string{"OB_IRIS_NETWORK": "devnet"}, "OB_IRIS_NETWORK"},
		{"rate limit", map[string]string{"OB_RATE_LIMIT_RPM": "0"}, "OB_RATE_LIMIT_RPM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
