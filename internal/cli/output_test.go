package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/opencode-ai/reportsmith/internal/render"
	"github.com/opencode-ai/reportsmith/internal/styles"
	"github.com/opencode-ai/reportsmith/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withOutputMode(t *testing.T, json, jsonl bool) {
	t.Helper()
	origJSON, origJSONL := jsonOutput, jsonlOutput
	t.Cleanup(func() { jsonOutput, jsonlOutput = origJSON, origJSONL })
	jsonOutput, jsonlOutput = json, jsonl
}

func TestWriteOutput(t *testing.T) {
	items := []map[string]int{{"a": 1}, {"b": 2}}

	t.Run("json", func(t *testing.T) {
		withOutputMode(t, true, false)
		var buf bytes.Buffer
		require.NoError(t, WriteOutput(&buf, items))
		assert.Equal(t, "[\n  {\n    \"a\": 1\n  },\n  {\n    \"b\": 2\n  }\n]\n", buf.String())
	})

	t.Run("jsonl slice", func(t *testing.T) {
		withOutputMode(t, false, true)
		var buf bytes.Buffer
		require.NoError(t, WriteOutput(&buf, items))
		assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", buf.String())
	})

	t.Run("jsonl single value", func(t *testing.T) {
		withOutputMode(t, false, true)
		var buf bytes.Buffer
		require.NoError(t, WriteOutput(&buf, renderResult{Output: "hi"}))
		assert.Equal(t, "{\"output\":\"hi\"}\n", buf.String())
	})
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "preflight",
			err: &PreflightError{
				Message:  "cannot open database",
				Hint:     "Check permissions",
				NextStep: "reportsmith template list",
			},
			want: []string{"Error: cannot open database", "Hint: Check permissions", "Try:  reportsmith template list"},
		},
		{
			name: "render error",
			err:  &render.Error{Kind: render.ErrUndefinedVariable, Subject: "name"},
			want: []string{"Render error [undefined_variable]:", `undefined variable "name"`},
		},
		{
			name: "plain",
			err:  errors.New("boom"),
			want: []string{"Error: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err)
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestTemplateError(t *testing.T) {
	err := templateError("abc", templates.ErrTemplateNotFound)
	assert.EqualError(t, err, "template 'abc' not found")

	err = templateError("abc", templates.ErrTemplateInactive)
	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
	assert.Equal(t, "reportsmith template restore abc", preflight.NextStep)

	other := errors.New("disk full")
	assert.Same(t, other, templateError("abc", other))
}

func TestShortIDAndTruncate(t *testing.T) {
	assert.Equal(t, "1234abcd", shortID("1234abcd-5678"))
	assert.Equal(t, "abc", shortID("abc"))

	assert.Equal(t, "line one line two", truncate("line one\nline two", 40))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	err := writeTable(&buf, styles.PlainStyles(), []string{"ID", "TITLE"}, [][]string{
		{"1", "Chest X-ray"},
		{"22", "CT"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ID  TITLE\n1   Chest X-ray\n22  CT\n", buf.String())
}

func TestFormatEventType(t *testing.T) {
	s := styles.PlainStyles()
	assert.Equal(t, "render failed", formatEventType(s, models.EventTypeTemplateRenderFailed))
	assert.Equal(t, "created", formatEventType(s, models.EventTypeTemplateCreated))
	assert.Equal(t, "deleted", formatTemplateStatus(s, false))
	assert.Equal(t, "active", formatTemplateStatus(s, true))
}
