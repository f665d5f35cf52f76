package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmind/memcore/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"MEMCORE_DATA_PATH", "MEMCORE_EMBEDDING_PROVIDER", "MEMCORE_EMBEDDING_API_KEY",
		"MEMCORE_EMBEDDING_MODEL", "MEMCORE_EMBEDDING_ENDPOINT", "MEMCORE_EMBEDDING_DIMENSIONS",
		"MEMCORE_VECTOR_DIMENSION", "MEMCORE_STORAGE_BACKEND", "MEMCORE_STORAGE_CONNECTION",
		"MEMCORE_RETRIEVAL_DEFAULT_THRESHOLD", "MEMCORE_RETRIEVAL_DEFAULT_LIMIT",
		"MEMCORE_RETRIEVAL_HALF_LIFE_DAYS", "MEMCORE_RETRIEVAL_MIN_SCORE",
		"MEMCORE_CONCURRENCY_MAX_CONNECTIONS", "MEMCORE_TIMEOUTS_ADAPTER_MS",
		"MEMCORE_TIMEOUTS_EMBEDDING_MS", "MEMCORE_TIMEOUTS_OVERALL_MS",
		"MEMCORE_SECURITY_TENANT_ISOLATION",
	}
	for _, v := range vars {
		_ = os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.True(t, cfg.Security.TenantIsolation)
	assert.Equal(t, 30.0, cfg.Retrieval.HalfLifeDays)
	assert.Equal(t, 0.1, cfg.Retrieval.MinScore)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("MEMCORE_STORAGE_BACKEND", "kv"))
	defer os.Unsetenv("MEMCORE_STORAGE_BACKEND")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "kv", cfg.Storage.Backend)
}

func TestLoad_InvalidBackendRejected(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("MEMCORE_STORAGE_BACKEND", "mongo"))
	defer os.Unsetenv("MEMCORE_STORAGE_BACKEND")

	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sql\nvector:\n  dimension: 8\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sql", cfg.Storage.Backend)
	assert.Equal(t, 8, cfg.Vector.Dimension)
}

func TestValidate_RejectsNonPositiveDimension(t *testing.T) {
	cfg := config.Default()
	cfg.Vector.Dimension = 0
	require.Error(t, cfg.Validate())
}
