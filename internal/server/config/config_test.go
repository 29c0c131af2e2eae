package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, ":5050", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenValidity)
	assert.Equal(t, 14*24*time.Hour, cfg.RefreshTokenValidity)
	assert.Equal(t, 4, cfg.Workers)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.Empty(t, cfg.S3Bucket, "object storage disabled by default")
}

func Test_parseJson_OverlaysProvidedFields(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, map[string]any{
		"http_addr":              ":9000",
		"database_dsn":           "postgres://other/db",
		"jwt_secret":             "json-secret",
		"access_token_validity":  "15m",
		"refresh_token_validity": "24h",
		"workers":                8,
		"s3_bucket":              "artifacts",
	})
	os.Args = []string{"testbin", "-config", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "postgres://other/db", cfg.DatabaseDSN)
	assert.Equal(t, "json-secret", cfg.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenValidity)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTokenValidity)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "artifacts", cfg.S3Bucket)

	// absent fields keep their defaults
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "oasis-backend", cfg.JWTIssuer)
}

func Test_parseJson_NoFlagIsNoop(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := &Config{}
	cfg.LoadDefaults()
	before := *cfg
	parseJson(cfg)

	assert.Equal(t, before, *cfg)
}
