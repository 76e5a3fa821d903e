// Package config loads reportsmith configuration from files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REPORTSMITH_DATABASE_PATH.
const EnvPrefix = "REPORTSMITH"

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	UI       UIConfig       `mapstructure:"ui"`
	Render   RenderConfig   `mapstructure:"render"`

	// source is the file the configuration was read from, if any.
	source string
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UIConfig configures human-readable CLI output.
type UIConfig struct {
	Theme   string `mapstructure:"theme"`
	NoColor bool   `mapstructure:"no_color"`
}

// RenderConfig configures template handling.
type RenderConfig struct {
	// DefaultUser owns templates created from the CLI.
	DefaultUser string `mapstructure:"default_user"`
	// ProjectDir is searched for .reportsmith/templates definitions.
	ProjectDir string `mapstructure:"project_dir"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	user := strings.TrimSpace(os.Getenv("USER"))
	if user == "" {
		user = "local"
	}

	return &Config{
		Database: DatabaseConfig{
			Path:        filepath.Join(DefaultDataDir(), "reportsmith.db"),
			BusyTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		UI: UIConfig{
			Theme: "default",
		},
		Render: RenderConfig{
			DefaultUser: user,
			ProjectDir:  ".",
		},
	}
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/reportsmith or ~/.config/reportsmith.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "reportsmith")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "reportsmith")
}

// DefaultDataDir returns $XDG_DATA_HOME/reportsmith or ~/.local/share/reportsmith.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "reportsmith")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "reportsmith")
}

// SearchPaths lists the config files tried when no explicit path is given.
func SearchPaths() []string {
	return []string{
		filepath.Join(DefaultConfigDir(), "config.yaml"),
		"reportsmith.yaml",
	}
}

// Load reads configuration. An explicit path must exist; otherwise the first
// file found in SearchPaths is used, and defaults apply when none exists.
// REPORTSMITH_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	source := strings.TrimSpace(path)
	if source == "" {
		for _, candidate := range SearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				source = candidate
				break
			}
		}
	}

	if source != "" {
		v.SetConfigFile(source)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", source)
			}
			return nil, fmt.Errorf("failed to read config %s: %w", source, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.source = source
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Render.ProjectDir = expandHome(cfg.Render.ProjectDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Source returns the file the configuration was loaded from, or "".
func (c *Config) Source() string {
	return c.source
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		problems = append(problems, "database.busy_timeout must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be one of trace, debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}

	switch c.UI.Theme {
	case "default", "high-contrast":
	default:
		problems = append(problems, fmt.Sprintf("ui.theme %q must be default or high-contrast", c.UI.Theme))
	}

	if strings.TrimSpace(c.Render.DefaultUser) == "" {
		problems = append(problems, "render.default_user is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.busy_timeout", cfg.Database.BusyTimeout)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("ui.theme", cfg.UI.Theme)
	v.SetDefault("ui.no_color", cfg.UI.NoColor)
	v.SetDefault("render.default_user", cfg.Render.DefaultUser)
	v.SetDefault("render.project_dir", cfg.Render.ProjectDir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
