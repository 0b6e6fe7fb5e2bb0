package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quarry/internal/errors"
	"quarry/pkg/atomicfile"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// DirectorySource configures one indexed directory.
type DirectorySource struct {
	Path       string   `yaml:"path"`                  // Directory to index
	Depth      int      `yaml:"depth"`                 // Levels below Path to include (0 = only Path)
	Include    []string `yaml:"include,omitempty"`     // Glob patterns a name must match
	Exclude    []string `yaml:"exclude,omitempty"`     // Glob patterns that hide a name
	ShowHidden bool     `yaml:"show_hidden,omitempty"` // Include dot files
	Watch      bool     `yaml:"watch"`                 // Rescan on filesystem changes
}

// Bookmark is a named URL offered in the catalog.
type Bookmark struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ActionSettings configures the file actions.
type ActionSettings struct {
	DryRun    bool   `yaml:"dry_run"`   // If true, simulate file operations
	Backup    bool   `yaml:"backup"`    // Create backups before overwriting
	Collision string `yaml:"collision"` // Collision strategy: rename, skip, or overwrite
}

// Config represents the application configuration structure.
type Config struct {
	Catalog struct {
		Directories []DirectorySource `yaml:"directories"`
		Bookmarks   []Bookmark        `yaml:"bookmarks"`
	} `yaml:"catalog"`
	Cache struct {
		Dir string `yaml:"dir"` // Where source snapshots are kept
	} `yaml:"cache"`
	Rescan struct {
		StartupDelay time.Duration `yaml:"startup_delay"` // Wait before the first campaign
		Period       time.Duration `yaml:"period"`        // Wait between two source rescans
		Campaign     time.Duration `yaml:"campaign"`      // Pause after a full sweep
		IdleDelay    time.Duration `yaml:"idle_delay"`    // Coalescing window for change notifications
		Workers      int           `yaml:"workers"`       // Background worker count
	} `yaml:"rescan"`
	Learning struct {
		Backend string `yaml:"backend"` // json or sqlite
		Path    string `yaml:"path"`    // Store location
	} `yaml:"learning"`
	Search struct {
		Language    string `yaml:"language"`     // BCP 47 tag used for collation
		TextSources bool   `yaml:"text_sources"` // Offer the typed text itself as an object
		CacheSize   int    `yaml:"cache_size"`   // Narrowing cache entries
	} `yaml:"search"`
	Actions ActionSettings `yaml:"actions"`
	Logging struct {
		Level string `yaml:"level"` // debug, info, warn, error
		JSON  bool   `yaml:"json"`  // Emit JSON log entries
	} `yaml:"logging"`
	Theme struct {
		Name     string `yaml:"name"`     // Theme name (default, dark, light, etc.)
		Primary  string `yaml:"primary"`  // Primary color for branding
		Success  string `yaml:"success"`  // Success message color
		Warning  string `yaml:"warning"`  // Warning message color
		Error    string `yaml:"error"`    // Error message color
		Emphasis string `yaml:"emphasis"` // Color of matched characters
	} `yaml:"theme"`
}

// DefaultPath returns ~/.config/quarry/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "quarry", "config.yaml"), nil
}

// LoadConfig loads configuration from the default location.
func LoadConfig() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFile(path)
}

// LoadConfigFile loads configuration from a specific file path.
// If the file doesn't exist, returns default configuration.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Fields absent from the file keep their defaults.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns the default configuration with safe defaults.
func defaultConfig() *Config {
	cfg := &Config{}

	home, _ := os.UserHomeDir()
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = filepath.Join(home, ".cache")
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(home, ".config")
	}

	if home != "" {
		cfg.Catalog.Directories = []DirectorySource{
			{Path: home, Depth: 0, Watch: true},
		}
	}
	cfg.Catalog.Bookmarks = []Bookmark{}

	cfg.Cache.Dir = filepath.Join(cacheDir, "quarry")

	cfg.Rescan.StartupDelay = 10 * time.Second
	cfg.Rescan.Period = 5 * time.Second
	cfg.Rescan.Campaign = time.Hour
	cfg.Rescan.IdleDelay = 2 * time.Second
	cfg.Rescan.Workers = 2

	cfg.Learning.Backend = "json"
	cfg.Learning.Path = filepath.Join(configDir, "quarry", "learning.json")

	cfg.Search.Language = "en"
	cfg.Search.TextSources = true
	cfg.Search.CacheSize = 128

	cfg.Actions.DryRun = false
	cfg.Actions.Backup = false
	cfg.Actions.Collision = "rename"

	cfg.Logging.Level = "info"

	cfg.ApplyTheme("default")
	return cfg
}

// New returns a configuration with default values.
func New() *Config {
	return defaultConfig()
}

// SaveConfig saves the configuration to the specified file.
// It creates parent directories if they don't exist.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := atomicfile.Write(path, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
// Returns error if any settings are invalid.
func (c *Config) Validate() error {
	if c == nil {
		return invalid("nil config", "")
	}

	validCollisions := map[string]bool{"rename": true, "skip": true, "overwrite": true}
	if !validCollisions[c.Actions.Collision] {
		return invalid(fmt.Sprintf("invalid collision setting: %s", c.Actions.Collision), "actions.collision")
	}

	switch c.Learning.Backend {
	case "json", "sqlite":
	default:
		return invalid(fmt.Sprintf("unknown learning backend: %s", c.Learning.Backend), "learning.backend")
	}

	if c.Rescan.StartupDelay < 0 || c.Rescan.Period < 0 || c.Rescan.Campaign < 0 || c.Rescan.IdleDelay < 0 {
		return invalid("rescan durations must be >= 0", "rescan")
	}
	if c.Rescan.Workers < 1 {
		return invalid("rescan workers must be >= 1", "rescan.workers")
	}
	if c.Search.CacheSize < 0 {
		return invalid("search cache size must be >= 0", "search.cache_size")
	}

	for i, dir := range c.Catalog.Directories {
		if strings.TrimSpace(dir.Path) == "" {
			return invalid(fmt.Sprintf("directory %d: path cannot be empty", i), "catalog.directories")
		}
		if dir.Depth < 0 {
			return invalid(fmt.Sprintf("directory %s: depth must be >= 0", dir.Path), "catalog.directories")
		}
		for _, pattern := range append(append([]string{}, dir.Include...), dir.Exclude...) {
			if _, err := glob.Compile(pattern); err != nil {
				return invalid(fmt.Sprintf("directory %s: bad pattern %q", dir.Path, pattern), "catalog.directories")
			}
		}
	}

	for i, b := range c.Catalog.Bookmarks {
		if strings.TrimSpace(b.URL) == "" {
			return invalid(fmt.Sprintf("bookmark %d: url is required", i), "catalog.bookmarks")
		}
	}

	return nil
}

func invalid(msg, param string) error {
	return errors.NewConfigError(msg, param, errors.InvalidConfig, nil)
}

// expandPaths resolves a leading ~ in every path setting.
func (c *Config) expandPaths() {
	for i := range c.Catalog.Directories {
		c.Catalog.Directories[i].Path = ExpandPath(c.Catalog.Directories[i].Path)
	}
	c.Cache.Dir = ExpandPath(c.Cache.Dir)
	c.Learning.Path = ExpandPath(c.Learning.Path)
}

// ExpandPath replaces a leading ~ with the home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GetTheme returns a predefined theme configuration by name.
// If the theme doesn't exist, returns the default theme.
func GetTheme(name string) map[string]string {
	themes := map[string]map[string]string{
		"default": {
			"primary":  "213", // Purple
			"success":  "114", // Green
			"warning":  "220", // Yellow
			"error":    "196", // Red
			"emphasis": "212", // Light Pink
		},
		"dark": {
			"primary":  "105", // Dark Blue
			"success":  "78",  // Dark Green
			"warning":  "214", // Dark Yellow
			"error":    "160", // Dark Red
			"emphasis": "147", // Light Blue
		},
		"light": {
			"primary":  "135", // Light Purple
			"success":  "150", // Light Green
			"warning":  "222", // Light Yellow
			"error":    "210", // Light Red
			"emphasis": "219", // Very Light Pink
		},
		"monochrome": {
			"primary":  "245", // Light Grey
			"success":  "252", // White
			"warning":  "241", // Medium Grey
			"error":    "232", // Black
			"emphasis": "255", // Bright White
		},
	}

	if theme, exists := themes[name]; exists {
		return theme
	}
	return themes["default"]
}

// ApplyTheme sets the theme colors by name.
func (c *Config) ApplyTheme(name string) {
	theme := GetTheme(name)

	c.Theme.Name = name
	c.Theme.Primary = theme["primary"]
	c.Theme.Success = theme["success"]
	c.Theme.Warning = theme["warning"]
	c.Theme.Error = theme["error"]
	c.Theme.Emphasis = theme["emphasis"]
}

// ListThemes returns a list of available theme names.
func ListThemes() []string {
	return []string{"default", "dark", "light", "monochrome"}
}
