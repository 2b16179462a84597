package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("base_url: http://logs.local/\nmax_hops: 0\nlive: false\nretry:\n  max_retries: 1\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://logs.local", cfg.BaseURL)
	assert.Equal(t, defaultMaxHops, cfg.MaxHops)
	assert.False(t, cfg.Live)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay())
	assert.Equal(t, []string{"task", "extensionRequests", "taskRequests", "REQUEST_CREATED"}, cfg.EntryTypes)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: [nope"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.PageSize = 25
	cfg.IncludeAssignedTasks = true
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, got.PageSize)
	assert.True(t, got.IncludeAssignedTasks)
}

func TestSaveRejectsEmptyInputs(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}

func TestLocationFallsBackToLocal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestNormalizeLeavesEnrichmentUnbounded(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.EnrichConcurrency)

	cfg.EnrichConcurrency = -3
	cfg.Normalize()
	assert.Zero(t, cfg.EnrichConcurrency)

	cfg.EnrichConcurrency = 4
	cfg.Normalize()
	assert.Equal(t, 4, cfg.EnrichConcurrency)
}
