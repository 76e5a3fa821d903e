package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/opencode-ai/reportsmith/internal/logging"
	"github.com/opencode-ai/reportsmith/internal/render"
	"github.com/opencode-ai/reportsmith/internal/templates"
	"github.com/spf13/cobra"
)

var (
	renderFile     string
	renderVars     []string
	renderVarsFile string
	renderWatch    bool
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderFile, "file", "f", "", "render a body or definition file instead of a stored template (- for stdin)")
	renderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "variable binding key=value (repeatable, comma separated)")
	renderCmd.Flags().StringVar(&renderVarsFile, "vars", "", "bindings file (.json, .yaml, .yml, .toml)")
	renderCmd.Flags().BoolVarP(&renderWatch, "watch", "w", false, "re-render --file whenever it changes")
}

// renderResult is the JSON shape of a render.
type renderResult struct {
	TemplateID string `json:"template_id,omitempty"`
	Source     string `json:"source,omitempty"`
	Output     string `json:"output"`
}

var renderCmd = &cobra.Command{
	Use:   "render [id]",
	Short: "Render a template",
	Long: `Render a stored template, a file, or a body read from stdin.

Bindings come from --vars (a file) and --var (key=value); --var wins on
conflicts. Definition files (.yaml/.yml) supply their sample variables for
any name left unbound.`,
	Example: `  reportsmith render 3f2a --var name=Ann --var urgent=true
  reportsmith render --file chest.yaml --vars findings.json
  echo '{% for x in xs %}{{x}} {% endfor %}' | reportsmith render --vars xs.yaml
  reportsmith render --file draft.txt --vars sample.toml --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := loadRenderBindings()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			if renderFile != "" || renderWatch {
				return fmt.Errorf("a template id cannot be combined with --file or --watch")
			}
			return renderStored(args[0], vars)
		}

		source := renderFile
		if source == "" {
			if isTerminal(os.Stdin) {
				return fmt.Errorf("nothing to render; pass a template id, --file, or pipe a body on stdin")
			}
			source = "-"
		}

		if renderWatch {
			if source == "-" {
				return fmt.Errorf("--watch needs --file")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchRender(ctx, source, vars, os.Stdout)
		}

		out, err := renderSource(source, vars, os.Stdin)
		if err != nil {
			return err
		}
		return writeRendered(os.Stdout, renderResult{Source: source, Output: out})
	},
}

func loadRenderBindings() (map[string]any, error) {
	var fromFile map[string]any
	if renderVarsFile != "" {
		loaded, err := templates.LoadBindings(renderVarsFile)
		if err != nil {
			return nil, err
		}
		fromFile = loaded
	}

	fromFlags, err := templates.ParseVarFlags(renderVars)
	if err != nil {
		return nil, err
	}

	return templates.MergeBindings(fromFile, fromFlags), nil
}

func renderStored(id string, vars map[string]any) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	out, err := newTemplateService(database).Render(context.Background(), id, vars)
	if err != nil {
		return templateError(id, err)
	}
	return writeRendered(os.Stdout, renderResult{TemplateID: id, Output: out})
}

// renderSource renders a definition file, a raw body file, or stdin ("-").
func renderSource(path string, vars map[string]any, stdin io.Reader) (string, error) {
	if path != "-" && isDefinitionFile(path) {
		def, err := templates.LoadDefinition(path)
		if err != nil {
			return "", err
		}
		return templates.RenderDefinition(def, vars)
	}

	body, err := readSource(path, stdin)
	if err != nil {
		return "", err
	}
	return render.Render(body, vars)
}

func writeRendered(out io.Writer, result renderResult) error {
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(out, result)
	}
	_, err := io.WriteString(out, result.Output)
	return err
}

// watchRender renders path once, then again after every write to it, until
// ctx is done. Render errors are reported and watching continues.
func watchRender(ctx context.Context, path string, vars map[string]any, out io.Writer) error {
	logger := logging.Component("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	baseName := filepath.Base(path)

	s := outputStyles()
	renderOnce := func() {
		output, err := renderSource(path, vars, nil)
		if err != nil {
			printError(out, err)
			return
		}
		if err := writeRendered(out, renderResult{Source: path, Output: output}); err != nil {
			logger.Warn().Err(err).Msg("failed to write render output")
		}
	}

	renderOnce()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != baseName {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("file changed")
			if !IsJSONOutput() && !IsJSONLOutput() {
				fmt.Fprintln(out, s.Muted.Render("--- "+baseName+" changed ---"))
			}
			renderOnce()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}
