package fmtware

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strconv"

	"github.com/klauspost/compress/zip"
)

const odsContentType = "application/vnd.oasis.opendocument.spreadsheet"

// ODSPlugin writes an OpenDocument spreadsheet with one sheet, laid out
// like the XLSX plugin without templates.
func ODSPlugin() Plugin {
	defaults := fileDefaults("Exported Data.ods")
	defaults["sheetName"] = "Exported Data"
	return Plugin{
		ID:        ODS,
		Defaults:  defaults,
		Transform: transformODS,
	}
}

func transformODS(_ context.Context, call *Call) Result {
	g, err := tabulate(call.Content)
	if err != nil {
		return Fail(err)
	}
	data, err := writeODS(call.Settings.String(ODS+".sheetName", "Exported Data"), g)
	if err != nil {
		return Fail(err)
	}
	return emit(call, ODS, odsContentType, data)
}

const odsManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
 <manifest:file-entry manifest:full-path="/" manifest:version="1.2" manifest:media-type="` + odsContentType + `"/>
 <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
</manifest:manifest>
`

func writeODS(sheet string, g *grid) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// The mimetype entry must come first and be stored uncompressed.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, odsContentType); err != nil {
		return nil, err
	}

	if w, err = zw.Create("META-INF/manifest.xml"); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, odsManifest); err != nil {
		return nil, err
	}

	if w, err = zw.Create("content.xml"); err != nil {
		return nil, err
	}
	if err := writeODSContent(w, sheet, g); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type odsWriter struct {
	w   io.Writer
	err error
}

func (o *odsWriter) str(s string) {
	if o.err == nil {
		_, o.err = io.WriteString(o.w, s)
	}
}

func (o *odsWriter) text(s string) {
	if o.err == nil {
		o.err = xml.EscapeText(o.w, []byte(s))
	}
}

func writeODSContent(w io.Writer, sheet string, g *grid) error {
	o := &odsWriter{w: w}
	o.str(xml.Header)
	o.str(`<office:document-content` +
		` xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"` +
		` xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"` +
		` xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"` +
		` office:version="1.2"><office:body><office:spreadsheet>`)
	o.str(`<table:table table:name="`)
	o.text(sheet)
	o.str(`">`)

	o.str("<table:table-row>")
	for _, h := range g.header {
		odsCell(o, h)
	}
	o.str("</table:table-row>")
	for _, row := range g.rows {
		o.str("<table:table-row>")
		for _, v := range row {
			odsCell(o, spreadsheetValue(v))
		}
		o.str("</table:table-row>")
	}

	o.str("</table:table></office:spreadsheet></office:body></office:document-content>")
	return o.err
}

func odsCell(o *odsWriter, v any) {
	switch v := v.(type) {
	case nil:
		o.str("<table:table-cell/>")
	case bool:
		b := strconv.FormatBool(v)
		o.str(`<table:table-cell office:value-type="boolean" office:boolean-value="` + b + `"><text:p>` + b + `</text:p></table:table-cell>`)
	case int64:
		n := strconv.FormatInt(v, 10)
		o.str(`<table:table-cell office:value-type="float" office:value="` + n + `"><text:p>` + n + `</text:p></table:table-cell>`)
	case float64:
		n := strconv.FormatFloat(v, 'g', -1, 64)
		o.str(`<table:table-cell office:value-type="float" office:value="` + n + `"><text:p>` + n + `</text:p></table:table-cell>`)
	default:
		o.str(`<table:table-cell office:value-type="string"><text:p>`)
		o.text(cellText(v))
		o.str(`</text:p></table:table-cell>`)
	}
}
