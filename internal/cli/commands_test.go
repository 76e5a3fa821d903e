package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencode-ai/reportsmith/internal/db"
	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/opencode-ai/reportsmith/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupCommandEnv points config and storage at a temp dir and resets the
// global flag state after the test.
func setupCommandEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("REPORTSMITH_DATABASE_PATH", filepath.Join(dir, "reportsmith.db"))
	t.Setenv("REPORTSMITH_LOGGING_LEVEL", "error")
	t.Setenv("REPORTSMITH_NON_INTERACTIVE", "1")

	t.Cleanup(func() {
		configFile, logLevel = "", ""
		jsonOutput, jsonlOutput, nonInteractive, yesFlag, noColor = false, false, false, false, false
		tmplImportUser, tmplListUser = "", ""
		renderVars, renderVarsFile, renderFile, renderWatch = nil, "", "", false
		appConfig = nil
		rootCmd.SetArgs(nil)
	})
	return filepath.Join(dir, "reportsmith.db")
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func openTestService(t *testing.T, path string) *templates.Service {
	t.Helper()
	database, err := db.Open(db.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return newTemplateService(database)
}

func TestTemplateLifecycleCommands(t *testing.T) {
	dbPath := setupCommandEnv(t)
	ctx := context.Background()

	require.NoError(t, runCommand(t, "template", "import", "--user", "ann"))

	svc := openTestService(t, dbPath)
	listed, err := svc.List(ctx, models.TemplateListOptions{UserID: "ann", SortBy: models.SortByTitle, SortOrder: models.SortAsc})
	require.NoError(t, err)
	require.Len(t, listed.Templates, 3)
	assert.Equal(t, "CT Abdomen and Pelvis", listed.Templates[1].Title)

	// a second import skips every existing title
	require.NoError(t, runCommand(t, "template", "import", "--user", "ann"))
	count, err := svc.List(ctx, models.TemplateListOptions{UserID: "ann"})
	require.NoError(t, err)
	assert.Equal(t, 3, count.Total)

	letter := listed.Templates[2]
	require.Equal(t, "Follow-up Letter", letter.Title)

	require.NoError(t, runCommand(t, "template", "delete", letter.ID, "--yes"))
	deleted, err := svc.Get(ctx, letter.ID)
	require.NoError(t, err)
	assert.False(t, deleted.Active)

	err = runCommand(t, "render", letter.ID, "--var", "physician=Ng,patient=J. Doe,date=2026-03-01,months=3,radiologist=Dr. Ek")
	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
	assert.Contains(t, preflight.NextStep, "template restore")

	require.NoError(t, runCommand(t, "template", "restore", letter.ID))
	require.NoError(t, runCommand(t, "render", letter.ID, "--var", "physician=Ng,patient=J. Doe,date=2026-03-01,months=3,radiologist=Dr. Ek"))

	events, err := db.NewEventRepository(mustOpen(t, dbPath)).ListByEntity(ctx, models.EntityTypeTemplate, letter.ID, 10)
	require.NoError(t, err)
	types := make([]models.EventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	assert.Equal(t, []models.EventType{
		models.EventTypeTemplateRendered,
		models.EventTypeTemplateRestored,
		models.EventTypeTemplateDeleted,
		models.EventTypeTemplateCreated,
	}, types)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	dbPath := setupCommandEnv(t)

	require.NoError(t, runCommand(t, "template", "import", "--user", "ann"))
	listed, err := openTestService(t, dbPath).List(context.Background(), models.TemplateListOptions{UserID: "ann"})
	require.NoError(t, err)
	require.NotEmpty(t, listed.Templates)

	err = runCommand(t, "template", "delete", listed.Templates[0].ID)
	assert.ErrorContains(t, err, "without confirmation")
}

func TestJSONAndJSONLAreExclusive(t *testing.T) {
	setupCommandEnv(t)
	err := runCommand(t, "template", "list", "--json", "--jsonl")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func mustOpen(t *testing.T, path string) *db.DB {
	t.Helper()
	database, err := db.Open(db.Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestConfigFileIsLoadedAndLogged(t *testing.T) {
	setupCommandEnv(t)
	require.NoError(t, os.WriteFile("reportsmith.yaml", []byte("logging:\n  level: debug\nui:\n  theme: high-contrast\n"), 0o644))
	t.Setenv("REPORTSMITH_LOGGING_LEVEL", "")

	require.NoError(t, runCommand(t, "version", "--json"))

	cfg := GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "reportsmith.yaml", filepath.Base(cfg.Source()))
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "high-contrast", cfg.UI.Theme)
}
