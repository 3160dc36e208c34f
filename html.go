package fmtware

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
)

// HTMLPlugin writes a standalone HTML document holding one table. It is
// also the first stage of [PDFPlugin].
func HTMLPlugin() Plugin {
	defaults := fileDefaults("Exported Data.html")
	defaults["title"] = "Exported Data"
	return Plugin{
		ID:        HTML,
		Defaults:  defaults,
		Transform: transformHTML,
	}
}

func transformHTML(_ context.Context, call *Call) Result {
	g, err := tabulate(call.Content)
	if err != nil {
		return Fail(err)
	}
	var buf bytes.Buffer
	if err := writeHTMLDocument(&buf, call.Settings.String("html.title", ""), g); err != nil {
		return Fail(err)
	}
	return emit(call, HTML, "text/html; charset=utf-8", buf.Bytes())
}

func writeHTMLDocument(w io.Writer, title string, g *grid) error {
	if _, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(title)); err != nil {
		return err
	}
	if err := writeHTMLTable(w, title, g); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "</body>\n</html>")
	return err
}

func writeHTMLTable(w io.Writer, caption string, g *grid) error {
	aligns := g.aligns()

	if _, err := fmt.Fprintln(w, "<table>"); err != nil {
		return err
	}
	if caption != "" {
		if _, err := fmt.Fprintf(w, "  <caption>%s</caption>\n", html.EscapeString(caption)); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(w, "  <thead>\n    <tr>"); err != nil {
		return err
	}
	for i, col := range g.header {
		if _, err := fmt.Fprintf(w, "      <th%s>%s</th>\n", alignStyle(aligns, i), html.EscapeString(col)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "    </tr>\n  </thead>"); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, "  <tbody>"); err != nil {
		return err
	}
	for _, row := range g.textRows() {
		if _, err := fmt.Fprintln(w, "    <tr>"); err != nil {
			return err
		}
		for i, cell := range row {
			if _, err := fmt.Fprintf(w, "      <td%s>%s</td>\n", alignStyle(aligns, i), html.EscapeString(cell)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, "    </tr>"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "  </tbody>\n</table>")
	return err
}

func alignStyle(aligns []alignment, col int) string {
	if col >= len(aligns) {
		return ""
	}
	switch aligns[col] {
	case alignRight:
		return ` style="text-align: right"`
	case alignCenter:
		return ` style="text-align: center"`
	default:
		return ""
	}
}
