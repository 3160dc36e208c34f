package fmtware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PDFPlugin renders the HTML plugin's document to PDF with an external
// command. "pdf.command" is the argument list; "{input}" and "{output}"
// are replaced with the paths of the HTML file and the PDF to produce.
// The default runs Prince.
func PDFPlugin() Plugin {
	defaults := fileDefaults("Exported Data.pdf")
	defaults["command"] = []any{"prince", "{input}", "-o", "{output}"}
	defaults["timeout"] = "30s"
	defaults["title"] = ""
	defaults["css"] = ""
	defaults["tempDir"] = ""
	return Plugin{
		ID:        PDF,
		Defaults:  defaults,
		Transform: transformPDF,
	}
}

func transformPDF(ctx context.Context, call *Call) Result {
	if _, ok := call.Content.([]any); !ok {
		return Fail(errNotSequence(PDF, call.Content))
	}
	s := call.Settings.Namespace(PDF)

	doc, err := call.Registry.Invoke(ctx, HTML, call)
	if err != nil {
		return Fail(fmt.Errorf("pdf: %w", err))
	}
	doc, err = decorateHTML(doc, s.String("title", ""), s.String("css", ""))
	if err != nil {
		return Fail(fmt.Errorf("%w: pdf: prepare html: %v", ErrRenderer, err))
	}

	timeout := s.Duration("timeout", 30*time.Second)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := renderPDF(ctx, s.Strings("command", nil), s.String("tempDir", ""), doc)
	if err != nil {
		return Fail(err)
	}
	return emit(call, PDF, "application/pdf", data)
}

// decorateHTML adds a stylesheet to the head and a heading to the start of
// the body.
func decorateHTML(doc []byte, title, css string) ([]byte, error) {
	if title == "" && css == "" {
		return doc, nil
	}
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	head := findElement(root, atom.Head)
	body := findElement(root, atom.Body)
	if head == nil || body == nil {
		return nil, errors.New("document has no head or body")
	}
	if css != "" {
		style := &html.Node{Type: html.ElementNode, DataAtom: atom.Style, Data: "style"}
		style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
		head.AppendChild(style)
	}
	if title != "" {
		h1 := &html.Node{Type: html.ElementNode, DataAtom: atom.H1, Data: "h1"}
		h1.AppendChild(&html.Node{Type: html.TextNode, Data: title})
		body.InsertBefore(h1, body.FirstChild)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// renderPDF writes doc to a scratch directory, runs the renderer, and
// returns the PDF it produced. The scratch directory is always removed.
func renderPDF(ctx context.Context, command []string, tempDir string, doc []byte) ([]byte, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: pdf: no render command configured", ErrRenderer)
	}
	dir, err := os.MkdirTemp(tempDir, "fmtware-pdf-")
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", ErrRenderer, err)
	}
	defer os.RemoveAll(dir)

	name := uuid.NewString()
	input := filepath.Join(dir, name+".html")
	output := filepath.Join(dir, name+".pdf")
	if err := os.WriteFile(input, doc, 0o600); err != nil {
		return nil, fmt.Errorf("%w: pdf: %v", ErrRenderer, err)
	}

	args := make([]string, len(command))
	for i, arg := range command {
		arg = strings.ReplaceAll(arg, "{input}", input)
		args[i] = strings.ReplaceAll(arg, "{output}", output)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: pdf: %s: %v: %s", ErrRenderer, args[0], err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf: read output: %v", ErrRenderer, err)
	}
	return data, nil
}
