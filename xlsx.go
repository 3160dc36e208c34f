package fmtware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"text/template"

	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TemplateDataFunc builds the rows a spreadsheet template is applied to.
// Set it as the "xlsx.templateData" setting.
type TemplateDataFunc func(r *http.Request, s Settings, content []any) ([]any, error)

// XLSXPlugin writes an Excel workbook with one sheet.
//
// Without a template, each record is flattened into a row below a header
// of dotted keys. With "xlsx.template" set to a workbook path, the first
// row of the template's first sheet holding a {{ }} expression is repeated
// once per record, with each cell executed as a text/template against the
// record.
func XLSXPlugin() Plugin {
	defaults := fileDefaults("Exported Data.xlsx")
	defaults["sheetName"] = "Exported Data"
	defaults["checkArray"] = true
	defaults["template"] = ""
	defaults["templateData"] = nil
	return Plugin{
		ID:        XLSX,
		Defaults:  defaults,
		Transform: transformXLSX,
	}
}

func transformXLSX(_ context.Context, call *Call) Result {
	items, ok := call.Content.([]any)
	if !ok {
		return Fail(errNotSequence(XLSX, call.Content))
	}
	s := call.Settings.Namespace(XLSX)
	if !s.Bool("checkArray", true) {
		items = wrapScalars(items)
	}

	var (
		data []byte
		err  error
	)
	if path := s.String("template", ""); path != "" {
		if fn := templateDataFunc(s); fn != nil {
			items, err = fn(call.Request, call.Settings, items)
			if err != nil {
				return Fail(fmt.Errorf("xlsx: template data: %w", err))
			}
		}
		data, err = applyXLSXTemplate(path, items)
	} else {
		data, err = writeXLSX(s.String("sheetName", "Exported Data"), items)
	}
	if err != nil {
		return Fail(err)
	}
	return emit(call, XLSX, xlsxContentType, data)
}

func templateDataFunc(s Settings) TemplateDataFunc {
	v, _ := s.Get("templateData")
	switch fn := v.(type) {
	case TemplateDataFunc:
		return fn
	case func(*http.Request, Settings, []any) ([]any, error):
		return fn
	}
	return nil
}

// wrapScalars turns items that are not records into {"value": item}.
func wrapScalars(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		if rec, ok := item.(Record); ok {
			out[i] = rec
			continue
		}
		out[i] = Record{{Key: "value", Value: item}}
	}
	return out
}

func writeXLSX(sheet string, items []any) ([]byte, error) {
	g, err := tabulate(items)
	if err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]any, len(g.header))
	for i, h := range g.header {
		header[i] = h
	}
	if err := setXLSXRow(f, sheet, 1, header); err != nil {
		return nil, err
	}
	for i, row := range g.rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = spreadsheetValue(v)
		}
		if err := setXLSXRow(f, sheet, i+2, cells); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setXLSXRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

// spreadsheetValue converts a flattened leaf into a cell value. Numbers
// stay numeric, nested values become JSON text.
func spreadsheetValue(v any) any {
	switch v := v.(type) {
	case nil, string, bool:
		return v
	case Record, []any:
		return cellText(v)
	default:
		return plainValue(v)
	}
}

func applyXLSXTemplate(path string, items []any) ([]byte, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open template: %w", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: read template: %w", err)
	}

	rowIndex := -1
	for i, row := range rows {
		for _, cell := range row {
			if strings.Contains(cell, "{{") {
				rowIndex = i
				break
			}
		}
		if rowIndex >= 0 {
			break
		}
	}
	if rowIndex < 0 {
		return nil, fmt.Errorf("%w: %s has no row with a {{ }} expression", ErrInvalidTemplate, path)
	}

	cells := make([]*template.Template, len(rows[rowIndex]))
	for i, text := range rows[rowIndex] {
		tmpl, err := template.New(fmt.Sprintf("cell%d", i)).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", ErrInvalidTemplate, i+1, err)
		}
		cells[i] = tmpl
	}

	rowNum := rowIndex + 1
	switch {
	case len(items) == 0:
		if err := f.RemoveRow(sheet, rowNum); err != nil {
			return nil, err
		}
	case len(items) > 1:
		if err := f.InsertRows(sheet, rowNum+1, len(items)-1); err != nil {
			return nil, err
		}
	}

	for i, item := range items {
		data := plainValue(item)
		values := make([]any, len(cells))
		for j, tmpl := range cells {
			var sb strings.Builder
			if err := tmpl.Execute(&sb, data); err != nil {
				return nil, fmt.Errorf("%w: row %d cell %d: %v", ErrInvalidTemplate, i+1, j+1, err)
			}
			values[j] = templateCell(sb.String())
		}
		if err := setXLSXRow(f, sheet, rowNum+i, values); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// templateCell stores numeric output as a number. Missing fields render
// as empty cells.
func templateCell(s string) any {
	s = strings.ReplaceAll(s, "<no value>", "")
	if n, err := strconv.ParseFloat(s, 64); err == nil && strings.TrimSpace(s) == s && s != "" {
		return n
	}
	return s
}
