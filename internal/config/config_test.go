package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DISPATCH_BACKEND", BackendDB)
	t.Setenv("DISPATCH_API_BASE", "http://api.local/")
	t.Setenv("DISPATCH_REFRESH_INTERVAL", "30s")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092")

	cfg := LoadConfig()
	assert.Equal(t, BackendDB, cfg.Backend)
	assert.Equal(t, "http://api.local", cfg.APIBase)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.NoError(t, cfg.Validate())
}

func TestInvalidDurationsFallBackToZero(t *testing.T) {
	t.Setenv("DISPATCH_HTTP_TIMEOUT", "soon")
	t.Setenv("DISPATCH_REFRESH_INTERVAL", "-5s")

	cfg := LoadConfig()
	assert.Zero(t, cfg.HTTPTimeout)
	assert.Zero(t, cfg.RefreshInterval)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{Backend: "grpc"}.Validate())
	assert.Error(t, Config{Backend: BackendREST}.Validate())
	assert.Error(t, Config{Backend: BackendDB}.Validate())
	assert.NoError(t, Config{Backend: BackendREST, APIBase: "http://x"}.Validate())
}
