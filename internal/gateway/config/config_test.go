package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"PORT", "APP_ENV", "LOG_LEVEL", "SHIYIN_CONFIG",
	"LLM_PROVIDER", "LLM_MODEL", "GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY",
	"LLM_RPS", "LLM_BURST", "LLM_MAX_ATTEMPTS", "LLM_TIMEOUT", "LLM_PROMPT_DIR",
	"COLLECTION_STORE", "COLLECTION_STORE_PATH", "DATABASE_URL", "COLLECTION_CACHE_TTL",
	"COLLECTION_S3_ENDPOINT", "COLLECTION_S3_REGION", "COLLECTION_S3_ACCESS_KEY",
	"COLLECTION_S3_SECRET_KEY", "COLLECTION_S3_BUCKET", "COLLECTION_S3_USE_SSL",
	"COLLECTION_MINIO_ENDPOINT", "MINIO_ROOT_USER", "MINIO_ROOT_PASSWORD",
	"SESSION_MAX", "PACING_DELAY", "TOAST_DURATION", "STAMP_DURATION", "CORS_ALLOWED_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Port)
	assert.Equal(t, "memory", cfg.Collection.Store)
	assert.Equal(t, 2500*time.Millisecond, cfg.Session.PacingDelay)
	assert.Equal(t, 2*time.Second, cfg.Session.ToastDuration)
	assert.Equal(t, 600*time.Millisecond, cfg.Session.StampDuration)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_RPS", "0.5")
	t.Setenv("PACING_DELAY", "0s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("SESSION_MAX", "7")
	t.Setenv("LLM_PROMPT_DIR", "tmp/prompts")

	cfg, err := LoadArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey())
	assert.Equal(t, 0.5, cfg.LLM.RPS)
	assert.Zero(t, cfg.Session.PacingDelay)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 7, cfg.Session.Max)
	assert.Equal(t, "tmp/prompts", cfg.LLM.PromptDir)
}

func TestFileThenEnvThenFlag(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: ":7000"
env: production
llm:
  provider: fake
  timeout: 5s
collection:
  store: file
  path: /var/lib/shiyin
session:
  toast_duration: 3s
`), 0o644))
	t.Setenv("TOAST_DURATION", "4s")

	cfg, err := LoadArgs([]string{"-config", path, "-port", "7100"})
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "fake", cfg.LLM.Provider)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "file", cfg.Collection.Store)
	assert.Equal(t, "/var/lib/shiyin", cfg.Collection.Path)
	assert.Equal(t, 4*time.Second, cfg.Session.ToastDuration)
}

func TestLocalFillsComposeEndpoints(t *testing.T) {
	clearEnv(t)
	t.Setenv("COLLECTION_STORE", "s3")
	cfg, err := LoadArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "minio:9000", cfg.Collection.S3.Endpoint)
	assert.False(t, cfg.Collection.S3.UseSSL)
	assert.Equal(t, "shiyin-collections", cfg.Collection.S3.Bucket)
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_TIMEOUT", "soon")
	_, err := LoadArgs(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_TIMEOUT")

	clearEnv(t)
	t.Setenv("COLLECTION_STORE", "redis")
	_, err = LoadArgs(nil)
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("COLLECTION_STORE", "postgres")
	_, err = LoadArgs(nil)
	require.Error(t, err)
}
