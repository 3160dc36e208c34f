package fmtware

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// CSVPlugin writes comma separated values with a header row of flattened
// keys.
func CSVPlugin() Plugin { return delimitedPlugin(CSV, ",", "text/csv", "Exported Data.csv") }

// TSVPlugin writes tab separated values.
func TSVPlugin() Plugin {
	return delimitedPlugin(TSV, "\t", "text/tab-separated-values", "Exported Data.tsv")
}

func delimitedPlugin(id, delimiter, mimeType, filename string) Plugin {
	defaults := fileDefaults(filename)
	defaults["delimiter"] = delimiter
	defaults["header"] = true
	defaults["charset"] = "utf-8"
	defaults["bom"] = false
	return Plugin{
		ID:       id,
		Defaults: defaults,
		Transform: func(_ context.Context, call *Call) Result {
			return transformDelimited(call, id, mimeType)
		},
	}
}

func transformDelimited(call *Call, id, mimeType string) Result {
	g, err := tabulate(call.Content)
	if err != nil {
		return Fail(err)
	}
	s := call.Settings.Namespace(id)

	delim := s.String("delimiter", ",")
	comma, size := utf8.DecodeRuneInString(delim)
	if size == 0 || size != len(delim) {
		return Fail(fmt.Errorf("%s: delimiter %q must be a single character", id, delim))
	}
	enc, charset, err := textEncoding(s.String("charset", "utf-8"), s.Bool("bom", false))
	if err != nil {
		return Fail(fmt.Errorf("%s: %w", id, err))
	}

	var buf bytes.Buffer
	tw := encoding.ReplaceUnsupported(enc.NewEncoder()).Writer(&buf)
	if err := writeDelimited(tw, comma, s.Bool("header", true), g); err != nil {
		return Fail(err)
	}
	if c, ok := tw.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return Fail(err)
		}
	}
	return emit(call, id, mimeType+"; charset="+charset, buf.Bytes())
}

func writeDelimited(w io.Writer, comma rune, header bool, g *grid) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if header && len(g.header) > 0 {
		if err := cw.Write(g.header); err != nil {
			return err
		}
	}
	for _, row := range g.textRows() {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// textEncoding looks up a WHATWG encoding label. With bom set, UTF-8
// output starts with a byte order mark.
func textEncoding(label string, bom bool) (encoding.Encoding, string, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", fmt.Errorf("unknown charset %q", label)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(label)
	}
	if bom && name == "utf-8" {
		return unicode.UTF8BOM, name, nil
	}
	return enc, name, nil
}
