package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// column describes one table column.
type column struct {
	title string
	right bool
}

// renderTable lays rows out under cols with rounded borders. Missing cells
// render empty.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(cols))
	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, col := range cols {
		header = append(header, col.title)
		cfg := table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if col.right {
			cfg.Align = text.AlignRight
		}
		configs = append(configs, cfg)
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := 0; i < len(cols) && i < len(row); i++ {
			r[i] = row[i]
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// truncate shortens s to at most width runes, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}
