package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/fetchq/internal/config"
)

func intPtr(v int) *int                     { return &v }
func int64Ptr(v int64) *int64               { return &v }
func boolPtr(v bool) *bool                  { return &v }
func durPtr(v time.Duration) *time.Duration { return &v }

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, 3, cfg.MaxConcurrentDownloads)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.True(t, cfg.AutoResumeOnRestore)
	assert.NotEmpty(t, cfg.ProbeAddress)
	assert.Zero(t, cfg.MaxFileSize)
	assert.NotEmpty(t, cfg.DownloadDir)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestSettingsApplyPatch(t *testing.T) {
	s := config.NewSettings(config.DefaultConfig())

	got := s.Apply(config.Patch{
		MaxConcurrentDownloads: intPtr(5),
		RetryAttempts:          intPtr(1),
		RetryDelay:             durPtr(10 * time.Second),
		AutoResumeOnRestore:    boolPtr(false),
		MaxFileSize:            int64Ptr(1 << 20),
		BlockedExtensions:      []string{"exe", "bat"},
	})

	assert.Equal(t, 5, got.MaxConcurrentDownloads)
	assert.Equal(t, 1, got.RetryAttempts)
	assert.Equal(t, 10*time.Second, got.RetryDelay)
	assert.False(t, got.AutoResumeOnRestore)
	assert.Equal(t, int64(1<<20), got.MaxFileSize)
	assert.Equal(t, []string{"exe", "bat"}, got.BlockedExtensions)

	assert.Equal(t, 5, s.MaxConcurrent())

	attempts, delay := s.RetryPolicy()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 10*time.Second, delay)
	assert.False(t, s.AutoResume())
}

func TestSettingsApplyIgnoresInvalidAndNilFields(t *testing.T) {
	s := config.NewSettings(config.DefaultConfig())
	before := s.Snapshot()

	// Empty patch changes nothing.
	got := s.Apply(config.Patch{})
	assert.Equal(t, before, got)

	// Out-of-range values are rejected, valid ones applied.
	got = s.Apply(config.Patch{
		MaxConcurrentDownloads: intPtr(0),
		RetryDelay:             durPtr(-time.Second),
		RetryAttempts:          intPtr(0),
	})
	assert.Equal(t, before.MaxConcurrentDownloads, got.MaxConcurrentDownloads)
	assert.Equal(t, before.RetryDelay, got.RetryDelay)
	assert.Zero(t, got.RetryAttempts)
}

func TestSnapshotDetachesBlockedExtensions(t *testing.T) {
	s := config.NewSettings(config.DefaultConfig())
	s.Apply(config.Patch{BlockedExtensions: []string{"exe"}})

	snap := s.Snapshot()
	snap.BlockedExtensions[0] = "changed"

	require.Equal(t, []string{"exe"}, s.Snapshot().BlockedExtensions)
}

func TestGetConfigReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("FETCHQ_MAX_CONCURRENT", "7")

	// xdg caches its base directories at init; reload so the override takes.
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	path := filepath.Join(dir, "fetchq")
	err := os.WriteFile(path, []byte("retryAttempts: 9\nmaxConcurrentDownloads: 2\n"), 0o644)
	require.NoError(t, err)

	cfg, err := config.GetConfig()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.RetryAttempts)
	// The environment wins over the file.
	assert.Equal(t, 7, cfg.MaxConcurrentDownloads)
	// Unset fields fall back to defaults.
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
}

func TestGetConfigHonorsExplicitZeroValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	xdg.Reload()
	t.Cleanup(xdg.Reload)

	// Retries and auto-resume disabled outright; both zero values must
	// survive the merge with defaults.
	path := filepath.Join(dir, "fetchq")
	err := os.WriteFile(path, []byte("retryAttempts: 0\nautoResumeOnRestore: false\n"), 0o644)
	require.NoError(t, err)

	cfg, err := config.GetConfig()
	require.NoError(t, err)

	assert.Zero(t, cfg.RetryAttempts)
	assert.False(t, cfg.AutoResumeOnRestore)
}
