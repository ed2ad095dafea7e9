package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NESTDESK_CONFIG", "NESTDESK_ADDR", "NESTDESK_ENV", "LOG_LEVEL",
		"REPAIRDESK_BASE_URL", "REPAIRDESK_API_KEY", "REPAIRDESK_TIMEOUT",
		"TICKET_CACHE_PATH", "TICKET_PAGE_SIZE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultBaseURL, cfg.RepairDesk.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.RepairDesk.Timeout)
	assert.Equal(t, DefaultPageSize, cfg.Cache.PageSize)
	assert.Equal(t, "ticket_cache.json", filepath.Base(cfg.Cache.Path))
	assert.Error(t, cfg.Validate(), "api key is required")
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "nestdesk.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// vendor settings
		"repairdesk": {
			"api_key": "file-key",
			"base_url": "https://file.example/api",
			"timeout": "3s",
		},
		"cache": {"path": "/tmp/tickets.json", "page_size": 25},
	}`), 0o600))

	t.Setenv("NESTDESK_CONFIG", path)
	t.Setenv("REPAIRDESK_API_KEY", "env-key")
	t.Setenv("TICKET_PAGE_SIZE", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.RepairDesk.APIKey)
	assert.Equal(t, "https://file.example/api", cfg.RepairDesk.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.RepairDesk.Timeout)
	assert.Equal(t, "/tmp/tickets.json", cfg.Cache.Path)
	assert.Equal(t, 10, cfg.Cache.PageSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NESTDESK_CONFIG", filepath.Join(t.TempDir(), "absent.jsonc"))
		_, err := Load()
		assert.ErrorContains(t, err, "reading config")
	})

	t.Run("bad page size", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TICKET_PAGE_SIZE", "fifty")
		_, err := Load()
		assert.ErrorContains(t, err, "TICKET_PAGE_SIZE")
	})

	t.Run("bad timeout", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REPAIRDESK_TIMEOUT", "soon")
		_, err := Load()
		assert.ErrorContains(t, err, "REPAIRDESK_TIMEOUT")
	})
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.RepairDesk.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.Cache.PageSize = 0
	assert.ErrorContains(t, cfg.Validate(), "page size")
}
