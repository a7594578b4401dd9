package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnvFromCacheFolder_MissingFileIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	assert.NoError(t, loadDotEnvFromCacheFolder())
}

func TestLoadDotEnvFromCacheFolder_LoadsVariables(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, calcCacheDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, calcCacheDir, ".env"),
		[]byte("KVCACHE_CALC_TEST_TOKEN=from-dotenv\nKVCACHE_CALC_TEST_KEEP=from-dotenv\n"), 0o600))

	t.Setenv("KVCACHE_CALC_TEST_KEEP", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("KVCACHE_CALC_TEST_TOKEN") })

	require.NoError(t, loadDotEnvFromCacheFolder())
	assert.Equal(t, "from-dotenv", os.Getenv("KVCACHE_CALC_TEST_TOKEN"))
	assert.Equal(t, "from-env", os.Getenv("KVCACHE_CALC_TEST_KEEP"))
}
