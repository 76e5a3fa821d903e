package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/opencode-ai/reportsmith/internal/render"
	"github.com/opencode-ai/reportsmith/internal/styles"
)

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// WriteOutput writes v as indented JSON, or as one JSON document per line
// when --jsonl is set and v is a slice.
func WriteOutput(out io.Writer, v any) error {
	if IsJSONLOutput() {
		return writeJSONL(out, v)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return enc.Encode(v)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := enc.Encode(rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// PreflightError is an environment problem the user can fix, with a hint and
// a suggested next command.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	return e.Message
}

func outputStyles() styles.Styles {
	cfg := currentConfig()
	if cfg.UI.NoColor || noColor || os.Getenv("NO_COLOR") != "" || !isTerminal(os.Stdout) {
		return styles.PlainStyles()
	}
	theme, _ := styles.ThemeByName(cfg.UI.Theme)
	return styles.BuildStyles(theme)
}

func printError(out io.Writer, err error) {
	s := outputStyles()

	var preflight *PreflightError
	if errors.As(err, &preflight) {
		fmt.Fprintln(out, s.Error.Render("Error: ")+preflight.Message)
		if preflight.Hint != "" {
			fmt.Fprintln(out, s.Muted.Render("Hint: "+preflight.Hint))
		}
		if preflight.NextStep != "" {
			fmt.Fprintln(out, s.Muted.Render("Try:  ")+s.Accent.Render(preflight.NextStep))
		}
		return
	}

	var rerr *render.Error
	if errors.As(err, &rerr) {
		fmt.Fprintf(out, "%s %s\n", s.Error.Render("Render error ["+render.KindName(err)+"]:"), err.Error())
		return
	}

	fmt.Fprintln(out, s.Error.Render("Error: ")+err.Error())
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// truncate truncates a string.
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
