package fmtware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

type borderChars struct {
	topLeft, topRight, bottomLeft, bottomRight string
	horizontal, vertical                       string
	topTee, bottomTee, leftTee, rightTee       string
	cross                                      string
}

// borderSets maps the "table.border" setting to its characters. "none"
// has no entry and renders space-separated columns.
var borderSets = map[string]borderChars{
	"rounded": {
		topLeft: "╭", topRight: "╮", bottomLeft: "╰", bottomRight: "╯",
		horizontal: "─", vertical: "│",
		topTee: "┬", bottomTee: "┴", leftTee: "├", rightTee: "┤",
		cross: "┼",
	},
	"ascii": {
		topLeft: "+", topRight: "+", bottomLeft: "+", bottomRight: "+",
		horizontal: "-", vertical: "|",
		topTee: "+", bottomTee: "+", leftTee: "+", rightTee: "+",
		cross: "+",
	},
	"heavy": {
		topLeft: "┏", topRight: "┓", bottomLeft: "┗", bottomRight: "┛",
		horizontal: "━", vertical: "┃",
		topTee: "┳", bottomTee: "┻", leftTee: "┣", rightTee: "┫",
		cross: "╋",
	},
	"double": {
		topLeft: "╔", topRight: "╗", bottomLeft: "╚", bottomRight: "╝",
		horizontal: "═", vertical: "║",
		topTee: "╦", bottomTee: "╩", leftTee: "╠", rightTee: "╣",
		cross: "╬",
	},
}

// TablePlugin writes a plain-text table for terminals.
//
// Settings under "table": border (rounded, ascii, heavy, double, none),
// title, numbered (prepend a row number column), maxWidth (truncate cells
// wider than this with "..."), and caption (print the row count below).
func TablePlugin() Plugin {
	defaults := fileDefaults("Exported Data.txt")
	defaults["download"] = false
	defaults["border"] = "rounded"
	defaults["title"] = ""
	defaults["numbered"] = false
	defaults["maxWidth"] = 0
	defaults["caption"] = false
	return Plugin{
		ID:        Table,
		Defaults:  defaults,
		Transform: transformTable,
	}
}

func transformTable(_ context.Context, call *Call) Result {
	g, err := tabulate(call.Content)
	if err != nil {
		return Fail(err)
	}
	s := call.Settings.Namespace(Table)
	border := s.String("border", "rounded")
	if _, ok := borderSets[border]; !ok && border != "none" {
		return Fail(fmt.Errorf("table: unknown border %q", border))
	}
	var buf bytes.Buffer
	opts := tableOptions{
		border:   border,
		title:    s.String("title", ""),
		numbered: s.Bool("numbered", false),
		maxWidth: s.Int("maxWidth", 0),
	}
	if err := writeTable(&buf, g, opts); err != nil {
		return Fail(err)
	}
	if s.Bool("caption", false) {
		fmt.Fprintf(&buf, "%d rows\n", len(g.rows))
	}
	return emit(call, Table, "text/plain; charset=utf-8", buf.Bytes())
}

type tableOptions struct {
	border   string
	title    string
	numbered bool
	maxWidth int
}

func writeTable(w io.Writer, g *grid, opts tableOptions) error {
	header := g.header
	rows := g.textRows()
	aligns := g.aligns()

	if opts.numbered {
		header = append([]string{"#"}, header...)
		for i, row := range rows {
			rows[i] = append([]string{fmt.Sprintf("%d", i+1)}, row...)
		}
		aligns = append([]alignment{alignRight}, aligns...)
	}

	widths := computeWidths(len(header), header, rows)
	if opts.maxWidth > 0 {
		for i := range widths {
			if widths[i] > opts.maxWidth {
				widths[i] = opts.maxWidth
			}
		}
	}

	if opts.border == "none" {
		return renderPlainTable(w, header, rows, widths, aligns)
	}
	return renderBorderedTable(w, opts.title, header, rows, widths, aligns, borderSets[opts.border])
}

// --- Plain table (border "none") ---

func renderPlainTable(w io.Writer, header []string, rows [][]string, widths []int, aligns []alignment) error {
	if err := writePlainRow(w, header, widths, aligns); err != nil {
		return err
	}
	sep := make([]string, len(widths))
	for i, width := range widths {
		sep[i] = strings.Repeat("-", width)
	}
	if _, err := fmt.Fprintln(w, strings.Join(sep, "  ")); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writePlainRow(w, row, widths, aligns); err != nil {
			return err
		}
	}
	return nil
}

func writePlainRow(w io.Writer, cells []string, widths []int, aligns []alignment) error {
	parts := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = formatTableCell(cell, width, aligns[i])
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	return err
}

// --- Bordered table ---

func renderBorderedTable(w io.Writer, title string, header []string, rows [][]string, widths []int, aligns []alignment, bc borderChars) error {
	if title != "" {
		if err := drawHLine(w, widths, bc.topLeft, bc.horizontal, bc.horizontal, bc.topRight); err != nil {
			return err
		}
		inner := tableInnerWidth(widths) - 2
		padded := alignCell(runewidth.Truncate(title, inner, "..."), inner, alignCenter)
		if _, err := fmt.Fprintf(w, "%s %s %s\n", bc.vertical, padded, bc.vertical); err != nil {
			return err
		}
		if err := drawHLine(w, widths, bc.leftTee, bc.horizontal, bc.topTee, bc.rightTee); err != nil {
			return err
		}
	} else {
		if err := drawHLine(w, widths, bc.topLeft, bc.horizontal, bc.topTee, bc.topRight); err != nil {
			return err
		}
	}

	if err := drawBorderedRow(w, header, widths, aligns, bc.vertical); err != nil {
		return err
	}
	if err := drawHLine(w, widths, bc.leftTee, bc.horizontal, bc.cross, bc.rightTee); err != nil {
		return err
	}
	for _, row := range rows {
		if err := drawBorderedRow(w, row, widths, aligns, bc.vertical); err != nil {
			return err
		}
	}
	return drawHLine(w, widths, bc.bottomLeft, bc.horizontal, bc.bottomTee, bc.bottomRight)
}

// tableInnerWidth is the width between the outer borders: each cell plus
// one space of padding per side, and one separator between cells.
func tableInnerWidth(widths []int) int {
	n := 0
	for _, w := range widths {
		n += w + 2
	}
	if len(widths) > 1 {
		n += len(widths) - 1
	}
	return n
}

func drawHLine(w io.Writer, widths []int, left, fill, mid, right string) error {
	var sb strings.Builder
	sb.WriteString(left)
	for i, width := range widths {
		sb.WriteString(strings.Repeat(fill, width+2))
		if i < len(widths)-1 {
			sb.WriteString(mid)
		}
	}
	sb.WriteString(right)
	_, err := fmt.Fprintln(w, sb.String())
	return err
}

func drawBorderedRow(w io.Writer, cells []string, widths []int, aligns []alignment, vert string) error {
	var sb strings.Builder
	sb.WriteString(vert)
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		sb.WriteString(" ")
		sb.WriteString(formatTableCell(cell, width, aligns[i]))
		sb.WriteString(" ")
		if i < len(widths)-1 {
			sb.WriteString(vert)
		}
	}
	sb.WriteString(vert)
	_, err := fmt.Fprintln(w, sb.String())
	return err
}

func formatTableCell(s string, width int, align alignment) string {
	if width > 0 && runewidth.StringWidth(s) > width {
		if width <= 3 {
			s = runewidth.Truncate(s, width, "")
		} else {
			s = runewidth.Truncate(s, width, "...")
		}
	}
	return alignCell(s, width, align)
}
