package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("JWT_EXPIRY", "")
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("UPLOAD_URL_PREFIX", "/media/")

	cfg := Load()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiry, "tokens default to 7 days")
	assert.Equal(t, ":8080", cfg.ServerPort)
	assert.Equal(t, "/media", cfg.UploadURLPrefix)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadSize)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "lots")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg := Load()

	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}

func TestValidate_ReportsEveryMissingSetting(t *testing.T) {
	cfg := &Config{DatabaseDriver: "mongo", UploadURLPrefix: "uploads"}

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "DATABASE_DRIVER")
	assert.Contains(t, err.Error(), "JWT_EXPIRY")
	assert.Contains(t, err.Error(), "UPLOAD_URL_PREFIX")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
	assert.Nil(t, splitList(""))
}
