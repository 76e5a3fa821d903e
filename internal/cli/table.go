package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/opencode-ai/reportsmith/internal/styles"
)

const tablePadding = 2

// writeTable aligns rows into columns. tabwriter counts ANSI escape bytes, so
// styled columns line up only when every cell in them uses the same style.
func writeTable(out io.Writer, s styles.Styles, headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(out, 0, 0, tablePadding, ' ', 0)
	if len(headers) > 0 {
		styled := make([]string, len(headers))
		for i, h := range headers {
			styled[i] = s.Title.Render(h)
		}
		fmt.Fprintln(writer, strings.Join(styled, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(writer, strings.Join(row, "\t"))
	}
	return writer.Flush()
}

func writeFields(out io.Writer, s styles.Styles, fields [][2]string) error {
	writer := tabwriter.NewWriter(out, 0, 0, tablePadding, ' ', 0)
	for _, field := range fields {
		fmt.Fprintf(writer, "%s\t%s\n", s.Muted.Render(field[0]+":"), field[1])
	}
	return writer.Flush()
}
