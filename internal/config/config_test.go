package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config dir and working directory at fresh temp dirs
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VAULT_CONFIG_DIR", dir)
	t.Chdir(t.TempDir())
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "medium", cfg.Gallery.ThumbnailSize)
	assert.Equal(t, 0, cfg.Gallery.Columns)
	assert.Equal(t, 512, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Duration(0), cfg.Cache.FetchTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Layout.SettleDelay)
	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Equal(t, filepath.Join(dir, "vault.db"), cfg.Server.Database)
	assert.Equal(t, 10, cfg.Server.TopTags)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := isolate(t)
	yaml := "api:\n  base_url: http://vault.lan:9000\ngallery:\n  thumbnail_size: large\nlayout:\n  settle_delay: 1s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("VAULT_GALLERY_THUMBNAIL_SIZE", "small")
	t.Setenv("VAULT_CACHE_FETCH_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://vault.lan:9000", cfg.API.BaseURL)
	assert.Equal(t, "small", cfg.Gallery.ThumbnailSize, "env wins over file")
	assert.Equal(t, time.Second, cfg.Layout.SettleDelay)
	assert.Equal(t, 5*time.Second, cfg.Cache.FetchTimeout)
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("VAULT_GALLERY_COLUMNS=3\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("VAULT_GALLERY_COLUMNS") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Gallery.Columns)
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("VAULT_GALLERY_THUMBNAIL_SIZE", "huge")

	_, err := Load()
	assert.ErrorContains(t, err, "thumbnail_size")
}

func TestSave_RoundTrip(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	cfg.API.BaseURL = "http://example.test"
	cfg.Layout.SettleDelay = 750 * time.Millisecond
	cfg.Server.TopTags = 3

	path, err := Save(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), path)

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log, err = NewLogger(LogConfig{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Format: "xml"})
	assert.Error(t, err)
}
