package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "mailcore_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("PATCH_MAX_ATTEMPTS", "5")
	t.Setenv("PATCH_WAIT_FOR_INDEX", "true")
	t.Setenv("INDEX_TIMEOUT", "2")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://localhost:5173, https://mail.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "mailcore_test", cfg.MongoDB.Database)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, 5, cfg.Patch.MaxAttempts)
	require.True(t, cfg.Patch.WaitForIndex)
	require.Equal(t, 2*time.Second, cfg.Index.Timeout)
	require.Equal(t, "index:", cfg.Index.Prefix)
	require.Equal(t, []string{"http://localhost:5173", "https://mail.example"}, cfg.Server.AllowOrigins)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("PATCH_MAX_ATTEMPTS", "0")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("PATCH_MAX_ATTEMPTS", "3")
	t.Setenv("SERVER_ENVIRONMENT", "production")
	t.Setenv("MONGODB_URI", "")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "MONGODB_URI")
}

func TestRedisAddrEmptyWhenUnset(t *testing.T) {
	require.Equal(t, "", RedisConfig{Port: "6379"}.Addr())
}
