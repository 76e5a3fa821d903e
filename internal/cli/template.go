package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/opencode-ai/reportsmith/internal/templates"
	"github.com/spf13/cobra"
)

var (
	// template create/edit flags
	tmplTitle        string
	tmplBody         string
	tmplBodyFile     string
	tmplInstructions string
	tmplUser         string

	// template list flags
	tmplListAll     bool
	tmplListUser    string
	tmplListSearch  string
	tmplListSort    string
	tmplListOrder   string
	tmplListPage    int
	tmplListPerPage int

	// template import flags
	tmplImportUser string
)

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateCreateCmd)
	templateCmd.AddCommand(templateShowCmd)
	templateCmd.AddCommand(templateEditCmd)
	templateCmd.AddCommand(templateDeleteCmd)
	templateCmd.AddCommand(templateRestoreCmd)
	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateVarsCmd)
	templateCmd.AddCommand(templateImportCmd)
	templateCmd.AddCommand(templateSchemaCmd)

	// Create/edit flags
	for _, cmd := range []*cobra.Command{templateCreateCmd, templateEditCmd} {
		cmd.Flags().StringVar(&tmplTitle, "title", "", "template title")
		cmd.Flags().StringVar(&tmplBody, "body", "", "template body")
		cmd.Flags().StringVar(&tmplBodyFile, "body-file", "", "read the body from a file (- for stdin)")
		cmd.Flags().StringVar(&tmplInstructions, "instructions", "", "free-text instructions")
	}
	templateCreateCmd.Flags().StringVar(&tmplUser, "user", "", "owning user (default: render.default_user)")

	// List flags
	templateListCmd.Flags().BoolVarP(&tmplListAll, "all", "a", false, "include deleted templates")
	templateListCmd.Flags().StringVar(&tmplListUser, "user", "", "only templates owned by this user")
	templateListCmd.Flags().StringVar(&tmplListSearch, "search", "", "filter by title substring")
	templateListCmd.Flags().StringVar(&tmplListSort, "sort", "created_at", "sort by created_at, updated_at or title")
	templateListCmd.Flags().StringVar(&tmplListOrder, "order", "desc", "sort order (asc, desc)")
	templateListCmd.Flags().IntVar(&tmplListPage, "page", 0, "page number (0 lists everything)")
	templateListCmd.Flags().IntVar(&tmplListPerPage, "per-page", 20, "templates per page")

	// Import flags
	templateImportCmd.Flags().StringVar(&tmplImportUser, "user", "", "owning user (default: render.default_user)")
}

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"tmpl", "t"},
	Short:   "Manage report templates",
	Long: `Manage stored report templates.

Deleting a template only marks it inactive; it can be restored later.`,
}

var templateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a template",
	Long: `Create a template. The body is checked for syntax errors before it is stored.

Missing title or body are prompted for when running interactively.`,
	Example: `  reportsmith template create --title "Chest X-ray" --body-file chest.txt
  echo 'Hello {{name}}' | reportsmith template create --title Greeting --body-file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		body, err := resolveBody(cmd, os.Stdin)
		if err != nil {
			return err
		}
		title := strings.TrimSpace(tmplTitle)

		if title == "" || strings.TrimSpace(body) == "" {
			if IsNonInteractive() {
				return fmt.Errorf("--title and --body (or --body-file) are required")
			}
			if title == "" {
				if title, err = promptInput("Title:", "Human-readable template name"); err != nil {
					return err
				}
			}
			if strings.TrimSpace(body) == "" {
				if body, err = promptMultiline("Body:", "Template text; use {{name}}, {% if %} and {% for %}"); err != nil {
					return err
				}
			}
		}

		user := strings.TrimSpace(tmplUser)
		if user == "" {
			user = currentConfig().Render.DefaultUser
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		tmpl, err := newTemplateService(database).Create(ctx, &models.Template{
			UserID:       user,
			Title:        title,
			Body:         body,
			Instructions: tmplInstructions,
		})
		if err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, tmpl)
		}

		fmt.Printf("Template created: %s (%s)\n", tmpl.Title, tmpl.ID)
		return nil
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		svc := newTemplateService(database)
		tmpl, err := svc.Get(ctx, args[0])
		if err != nil {
			return templateError(args[0], err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, tmpl)
		}

		s := outputStyles()
		fields := [][2]string{
			{"ID", tmpl.ID},
			{"Title", s.Title.Render(tmpl.Title)},
			{"User", tmpl.UserID},
			{"Status", formatTemplateStatus(s, tmpl.Active)},
			{"Created", tmpl.CreatedAt.Local().Format("2006-01-02 15:04")},
			{"Updated", tmpl.UpdatedAt.Local().Format("2006-01-02 15:04")},
		}
		if vars, err := svc.Variables(ctx, tmpl.ID); err == nil && len(vars) > 0 {
			fields = append(fields, [2]string{"Variables", strings.Join(vars, ", ")})
		}
		if err := writeFields(os.Stdout, s, fields); err != nil {
			return err
		}
		if tmpl.Instructions != "" {
			fmt.Printf("\n%s\n%s\n", s.Muted.Render("Instructions:"), tmpl.Instructions)
		}
		fmt.Printf("\n%s\n%s", s.Muted.Render("Body:"), tmpl.Body)
		if !strings.HasSuffix(tmpl.Body, "\n") {
			fmt.Println()
		}
		return nil
	},
}

var templateEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Update a template",
	Long: `Update the title, body or instructions of a template. Only the given
flags change; a body with syntax errors is rejected and the stored body kept.`,
	Example: `  reportsmith template edit 3f2a --title "Chest X-ray (PA)"
  reportsmith template edit 3f2a --body-file chest.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		update := models.TemplateUpdate{}
		if cmd.Flags().Changed("title") {
			update.Title = &tmplTitle
		}
		if cmd.Flags().Changed("body") || cmd.Flags().Changed("body-file") {
			body, err := resolveBody(cmd, os.Stdin)
			if err != nil {
				return err
			}
			update.Body = &body
		}
		if cmd.Flags().Changed("instructions") {
			update.Instructions = &tmplInstructions
		}
		if update.IsEmpty() {
			return fmt.Errorf("nothing to update; pass --title, --body, --body-file or --instructions")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		tmpl, err := newTemplateService(database).Update(ctx, args[0], update)
		if err != nil {
			return templateError(args[0], err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, tmpl)
		}

		fmt.Printf("Template updated: %s (%s)\n", tmpl.Title, strings.Join(update.Fields(), ", "))
		return nil
	},
}

var templateDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Soft-delete a template",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		svc := newTemplateService(database)
		tmpl, err := svc.Get(ctx, args[0])
		if err != nil {
			return templateError(args[0], err)
		}

		if !yesFlag {
			if SkipConfirmation() {
				return fmt.Errorf("refusing to delete %q without confirmation; use --yes", tmpl.Title)
			}
			if !confirm(fmt.Sprintf("Delete template %q?", tmpl.Title)) {
				fmt.Fprintln(os.Stderr, "Cancelled.")
				return nil
			}
		}

		if err := svc.Delete(ctx, tmpl.ID); err != nil {
			return templateError(tmpl.ID, err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"id": tmpl.ID, "deleted": true})
		}

		fmt.Printf("Template deleted: %s (restore with: reportsmith template restore %s)\n", tmpl.Title, tmpl.ID)
		return nil
	},
}

var templateRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a deleted template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		tmpl, err := newTemplateService(database).Restore(context.Background(), args[0])
		if err != nil {
			return templateError(args[0], err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, tmpl)
		}

		fmt.Printf("Template restored: %s\n", tmpl.Title)
		return nil
	},
}

var templateListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		result, err := newTemplateService(database).List(context.Background(), models.TemplateListOptions{
			UserID:     tmplListUser,
			ActiveOnly: !tmplListAll,
			Search:     tmplListSearch,
			SortBy:     models.TemplateSortKey(tmplListSort),
			SortOrder:  models.SortOrder(tmplListOrder),
			Page:       tmplListPage,
			PerPage:    tmplListPerPage,
		})
		if err != nil {
			return fmt.Errorf("failed to list templates: %w", err)
		}

		if IsJSONLOutput() {
			return WriteOutput(os.Stdout, result.Templates)
		}
		if IsJSONOutput() {
			return WriteOutput(os.Stdout, result)
		}

		if len(result.Templates) == 0 {
			fmt.Println("No templates found")
			return nil
		}

		s := outputStyles()
		rows := make([][]string, 0, len(result.Templates))
		for _, tmpl := range result.Templates {
			rows = append(rows, []string{
				shortID(tmpl.ID),
				truncate(tmpl.Title, 40),
				tmpl.UserID,
				formatTemplateStatus(s, tmpl.Active),
				tmpl.UpdatedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		if err := writeTable(os.Stdout, s, []string{"ID", "TITLE", "USER", "STATUS", "UPDATED"}, rows); err != nil {
			return err
		}

		if result.Page > 0 {
			fmt.Println(s.Muted.Render(fmt.Sprintf("page %d, %d of %d templates", result.Page, len(result.Templates), result.Total)))
		}
		return nil
	},
}

var templateVarsCmd = &cobra.Command{
	Use:   "vars <id>",
	Short: "List the variables a template needs",
	Long: `List the names a template reads that are not bound by its own loops.
Every listed name must be supplied when rendering.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		vars, err := newTemplateService(database).Variables(context.Background(), args[0])
		if err != nil {
			return templateError(args[0], err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, vars)
		}
		for _, name := range vars {
			fmt.Println(name)
		}
		return nil
	},
}

var templateImportCmd = &cobra.Command{
	Use:   "import [path...]",
	Short: "Import templates from definition files",
	Long: `Import YAML definition files as templates.

Paths may be files or directories. Without paths, definitions are read from
./.reportsmith/templates, ~/.config/reportsmith/templates and the built-in set.
Titles the user already has are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		defs, err := loadDefinitionArgs(args)
		if err != nil {
			return err
		}

		user := strings.TrimSpace(tmplImportUser)
		if user == "" {
			user = currentConfig().Render.DefaultUser
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		result, err := newTemplateService(database).Import(ctx, user, defs)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, result)
		}

		s := outputStyles()
		for _, tmpl := range result.Created {
			fmt.Printf("%s %s (%s)\n", s.Success.Render("imported"), tmpl.Title, shortID(tmpl.ID))
		}
		for _, title := range result.Skipped {
			fmt.Printf("%s %s (already exists)\n", s.Muted.Render("skipped "), title)
		}
		return nil
	},
}

var templateSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for definition files",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := templates.DefinitionSchemaJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	},
}

// resolveBody returns the body from --body or --body-file ("-" reads stdin).
func resolveBody(cmd *cobra.Command, stdin io.Reader) (string, error) {
	if cmd.Flags().Changed("body") && cmd.Flags().Changed("body-file") {
		return "", fmt.Errorf("--body and --body-file are mutually exclusive")
	}
	if tmplBodyFile == "" {
		return tmplBody, nil
	}
	return readSource(tmplBodyFile, stdin)
}

func readSource(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func loadDefinitionArgs(paths []string) ([]*templates.Definition, error) {
	if len(paths) == 0 {
		return templates.LoadDefinitionsFromSearchPaths(currentConfig().Render.ProjectDir)
	}

	var defs []*templates.Definition
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if info.IsDir() {
			dirDefs, err := templates.LoadDefinitionsFromDir(path)
			if err != nil {
				return nil, err
			}
			defs = append(defs, dirDefs...)
			continue
		}
		def, err := templates.LoadDefinition(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func isDefinitionFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func templateError(id string, err error) error {
	switch {
	case errors.Is(err, templates.ErrTemplateNotFound):
		return fmt.Errorf("template '%s' not found", id)
	case errors.Is(err, templates.ErrTemplateInactive):
		return &PreflightError{
			Message:  fmt.Sprintf("template '%s' is deleted", id),
			Hint:     "Restore it before rendering",
			NextStep: "reportsmith template restore " + id,
		}
	default:
		return err
	}
}
