package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"quarry/internal/config"
	"quarry/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a temporary YAML config file
func createTestYAML(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	require.NoError(t, err)
	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

const (
	validYAML = `
catalog:
  directories:
    - path: /home/test/docs
      depth: 2
      include: ["*.pdf", "*.{md,txt}"]
      exclude: ["*.tmp"]
      watch: true
  bookmarks:
    - name: Go
      url: https://go.dev
rescan:
  startup_delay: 30s
  campaign: 2h
  workers: 4
learning:
  backend: sqlite
  path: /tmp/learning.db
actions:
  collision: skip
  backup: true
`
	invalidSyntaxYAML = `
catalog:
  directories:
    - path: "/path/to/text
actions: # Missing closing quote
  dry_run: yes
`
	invalidValueYAML = `
actions:
  collision: "delete"
`
	invalidDirsYAML = `
catalog:
  directories:
    - path: ""
    - path: /valid/path
`
)

func TestLoadConfigFile(t *testing.T) {
	t.Run("load valid config", func(t *testing.T) {
		cfg, err := config.LoadConfigFile(createTestYAML(t, validYAML))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.Len(t, cfg.Catalog.Directories, 1)
		dir := cfg.Catalog.Directories[0]
		assert.Equal(t, "/home/test/docs", dir.Path)
		assert.Equal(t, 2, dir.Depth)
		assert.Equal(t, []string{"*.pdf", "*.{md,txt}"}, dir.Include)
		assert.True(t, dir.Watch)
		assert.Equal(t, "https://go.dev", cfg.Catalog.Bookmarks[0].URL)

		assert.Equal(t, 30*time.Second, cfg.Rescan.StartupDelay)
		assert.Equal(t, 2*time.Hour, cfg.Rescan.Campaign)
		assert.Equal(t, 5*time.Second, cfg.Rescan.Period, "unset fields keep defaults")
		assert.Equal(t, 4, cfg.Rescan.Workers)
		assert.Equal(t, "sqlite", cfg.Learning.Backend)
		assert.Equal(t, "skip", cfg.Actions.Collision)
		assert.True(t, cfg.Actions.Backup)
		assert.True(t, cfg.Search.TextSources)
	})

	t.Run("load non-existent file", func(t *testing.T) {
		cfg, err := config.LoadConfigFile(filepath.Join(t.TempDir(), "does_not_exist.yaml"))
		require.NoError(t, err, "Loading non-existent file should return default config, not an error")

		defaultCfg := config.New()
		assert.Equal(t, defaultCfg.Actions.Collision, cfg.Actions.Collision)
		assert.Equal(t, defaultCfg.Cache.Dir, cfg.Cache.Dir)
		assert.Equal(t, defaultCfg.Rescan.Campaign, cfg.Rescan.Campaign)
	})

	t.Run("load file with invalid YAML syntax", func(t *testing.T) {
		_, err := config.LoadConfigFile(createTestYAML(t, invalidSyntaxYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error parsing config file")
	})

	t.Run("load file with invalid collision", func(t *testing.T) {
		_, err := config.LoadConfigFile(createTestYAML(t, invalidValueYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "invalid collision setting")
		assert.True(t, errors.IsInvalidConfig(err))
	})

	t.Run("load file with empty directory path", func(t *testing.T) {
		_, err := config.LoadConfigFile(createTestYAML(t, invalidDirsYAML))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path cannot be empty")
	})
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{"defaults", func(c *config.Config) {}, false},
		{"overwrite collision", func(c *config.Config) { c.Actions.Collision = "overwrite" }, false},
		{"invalid collision", func(c *config.Config) { c.Actions.Collision = "ask" }, true},
		{"unknown backend", func(c *config.Config) { c.Learning.Backend = "redis" }, true},
		{"negative delay", func(c *config.Config) { c.Rescan.StartupDelay = -time.Second }, true},
		{"no workers", func(c *config.Config) { c.Rescan.Workers = 0 }, true},
		{"negative depth", func(c *config.Config) {
			c.Catalog.Directories = []config.DirectorySource{{Path: "/x", Depth: -1}}
		}, true},
		{"bad glob", func(c *config.Config) {
			c.Catalog.Directories = []config.DirectorySource{{Path: "/x", Include: []string{"[abc"}}}
		}, true},
		{"bookmark without url", func(c *config.Config) {
			c.Catalog.Bookmarks = []config.Bookmark{{Name: "x"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := config.New()
	cfg.Rescan.Campaign = 90 * time.Minute
	cfg.Catalog.Bookmarks = []config.Bookmark{{Name: "Go", URL: "https://go.dev"}}

	require.NoError(t, config.SaveConfig(cfg, path))
	loaded, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, loaded.Rescan.Campaign)
	assert.Equal(t, cfg.Catalog.Bookmarks, loaded.Catalog.Bookmarks)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "docs"), config.ExpandPath("~/docs"))
	assert.Equal(t, "/abs", config.ExpandPath("/abs"))
	assert.Equal(t, "~user/x", config.ExpandPath("~user/x"))
}

func TestThemes(t *testing.T) {
	cfg := config.New()
	cfg.ApplyTheme("dark")
	assert.Equal(t, "dark", cfg.Theme.Name)
	assert.Equal(t, "105", cfg.Theme.Primary)
	assert.Equal(t, config.GetTheme("default"), config.GetTheme("nope"))
	assert.Contains(t, config.ListThemes(), "monochrome")
}
