// Package cli implements the reportsmith command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/opencode-ai/reportsmith/internal/config"
	"github.com/opencode-ai/reportsmith/internal/db"
	"github.com/opencode-ai/reportsmith/internal/logging"
	"github.com/opencode-ai/reportsmith/internal/templates"
	"github.com/spf13/cobra"
)

var (
	// persistent flags
	configFile     string
	jsonOutput     bool
	jsonlOutput    bool
	logLevel       string
	nonInteractive bool
	yesFlag        bool
	noColor        bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reportsmith",
	Short: "Manage and render report templates",
	Long: `reportsmith stores report templates and renders them with variable bindings.

Templates use {{name}} placeholders, {% if cond %}...{% else %}...{% endif %}
blocks and {% for item in items %}...{% endfor %} loops.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/reportsmith/config.yaml)")
	flags.BoolVar(&jsonOutput, "json", false, "output JSON")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "output JSON lines")
	flags.StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "never prompt; use defaults")
	flags.BoolVarP(&yesFlag, "yes", "y", false, "assume yes for confirmations")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

func initConfig() error {
	if jsonOutput && jsonlOutput {
		return fmt.Errorf("--json and --jsonl are mutually exclusive")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return &PreflightError{
			Message:  err.Error(),
			Hint:     "Fix the config file or point --config at a valid one",
			NextStep: "reportsmith --config ./reportsmith.yaml template list",
		}
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.Logging.Level = logLevel
	}
	if noColor {
		cfg.UI.NoColor = true
	}

	if err := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return err
	}
	appConfig = cfg

	if src := cfg.Source(); src != "" {
		logger := logging.Component("cli")
		logger.Debug().Str("path", src).Msg("config loaded")
	}
	return nil
}

// GetConfig returns the loaded configuration, or nil before initialization.
func GetConfig() *config.Config {
	return appConfig
}

func currentConfig() *config.Config {
	if cfg := GetConfig(); cfg != nil {
		return cfg
	}
	return config.DefaultConfig()
}

func openDatabase() (*db.DB, error) {
	cfg := currentConfig()

	database, err := db.Open(db.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
		Logger:      logging.Component("db"),
	})
	if err != nil {
		return nil, &PreflightError{
			Message:  fmt.Sprintf("cannot open database at %s: %v", cfg.Database.Path, err),
			Hint:     "Check that the directory is writable or set database.path",
			NextStep: "REPORTSMITH_DATABASE_PATH=/tmp/reportsmith.db reportsmith template list",
		}
	}

	if err := database.Migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func newTemplateService(database *db.DB) *templates.Service {
	return templates.NewService(db.NewTemplateRepository(database), db.NewEventRepository(database))
}
