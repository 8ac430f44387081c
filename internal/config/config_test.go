package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.False(t, cfg.Server.IsProduction())
	assert.Equal(t, 24*time.Hour, cfg.Sessions.DedupWindow)
	assert.False(t, cfg.Sessions.AllowAnonymous)
	assert.Equal(t, 7*24*time.Hour, cfg.Sessions.Retention)
	assert.Equal(t, DispatchInline, cfg.Executor.DispatchMode)
	assert.Equal(t, 5*time.Minute, cfg.Executor.StaleAfter)
	assert.Equal(t, 3, cfg.Executor.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Cache.ProspectsTTL)
	assert.Equal(t, 30, cfg.RateLimit.DiscoverPerHour)
	assert.False(t, cfg.R2.Configured())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_ENV", "Production")
	t.Setenv("SESSIONS_ALLOW_ANONYMOUS", "true")
	t.Setenv("SESSIONS_DEDUP_WINDOW", "2h")
	t.Setenv("EXECUTOR_DISPATCH_MODE", "ASYNQ")
	t.Setenv("EXECUTOR_STALE_AFTER", "90s")
	t.Setenv("EXECUTOR_TASK_TIMEOUT", "60s")
	t.Setenv("CACHE_COMPETITORS_TTL", "48h")
	t.Setenv("RATELIMIT_PLAN_PER_HOUR", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Server.IsProduction())
	assert.True(t, cfg.Sessions.AllowAnonymous)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.DedupWindow)
	assert.Equal(t, DispatchQueue, cfg.Executor.DispatchMode)
	assert.Equal(t, 90*time.Second, cfg.Executor.StaleAfter)
	assert.Equal(t, time.Minute, cfg.Executor.TaskTimeout)
	assert.Equal(t, 48*time.Hour, cfg.Cache.CompetitorsTTL)
	assert.Equal(t, 7, cfg.RateLimit.PlanPerHour)
}

func TestLoadRejectsStaleAfterWithinTaskTimeout(t *testing.T) {
	t.Setenv("EXECUTOR_STALE_AFTER", "2m")
	t.Setenv("EXECUTOR_TASK_TIMEOUT", "3m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor.stale_after")

	t.Setenv("EXECUTOR_TASK_TIMEOUT", "2m")
	_, err = Load()
	assert.Error(t, err, "equal values leave no margin")
}

func TestLoadReadsSecretFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llm_key")
	require.NoError(t, os.WriteFile(path, []byte("sk-from-file\n"), 0o600))

	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_API_KEY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.LLM.APIKey)
}

func TestR2Configured(t *testing.T) {
	assert.False(t, R2Config{AccountID: "a", AccessKeyID: "k"}.Configured())
	assert.True(t, R2Config{AccountID: "a", AccessKeyID: "k", SecretAccessKey: "s"}.Configured())
}
