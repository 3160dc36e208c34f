package fmtware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// MarkdownPlugin writes a GitHub-flavored Markdown table. Numeric columns
// are right-aligned.
func MarkdownPlugin() Plugin {
	return Plugin{
		ID:        Markdown,
		Defaults:  fileDefaults("Exported Data.md"),
		Transform: transformMarkdown,
	}
}

func transformMarkdown(_ context.Context, call *Call) Result {
	g, err := tabulate(call.Content)
	if err != nil {
		return Fail(err)
	}
	var buf bytes.Buffer
	if err := writeMarkdown(&buf, g); err != nil {
		return Fail(err)
	}
	return emit(call, Markdown, "text/markdown; charset=utf-8", buf.Bytes())
}

func writeMarkdown(w io.Writer, g *grid) error {
	if len(g.header) == 0 {
		return nil
	}
	rows := g.textRows()
	for _, row := range rows {
		for i, cell := range row {
			row[i] = escapeMarkdownCell(cell)
		}
	}
	header := make([]string, len(g.header))
	for i, col := range g.header {
		header[i] = escapeMarkdownCell(col)
	}

	// Minimum 3 leaves room for alignment markers.
	widths := computeWidths(len(header), header, rows)
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}
	aligns := g.aligns()

	if err := writeMarkdownRow(w, header, widths, aligns); err != nil {
		return err
	}
	sep := make([]string, len(widths))
	for i, width := range widths {
		switch aligns[i] {
		case alignRight:
			sep[i] = strings.Repeat("-", width-1) + ":"
		case alignCenter:
			sep[i] = ":" + strings.Repeat("-", width-2) + ":"
		default:
			sep[i] = strings.Repeat("-", width)
		}
	}
	if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(sep, " | ")); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeMarkdownRow(w, row, widths, aligns); err != nil {
			return err
		}
	}
	return nil
}

func writeMarkdownRow(w io.Writer, cells []string, widths []int, aligns []alignment) error {
	padded := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		padded[i] = alignCell(cell, width, aligns[i])
	}
	_, err := fmt.Fprintf(w, "| %s |\n", strings.Join(padded, " | "))
	return err
}

func escapeMarkdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func computeWidths(numCols int, header []string, rows [][]string) []int {
	widths := make([]int, numCols)
	for i, h := range header {
		if w := runewidth.StringWidth(h); w > widths[i] {
			widths[i] = w
		}
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); i < numCols && w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

func alignCell(s string, width int, align alignment) string {
	pad := width - runewidth.StringWidth(s)
	if pad <= 0 {
		return s
	}
	switch align {
	case alignRight:
		return strings.Repeat(" ", pad) + s
	case alignCenter:
		left := pad / 2
		right := pad - left
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
	default:
		return s + strings.Repeat(" ", pad)
	}
}
