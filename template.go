package fmtware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"text/template"
)

// TemplatePlugin executes the text/template in "template.text". With
// "template.each" (the default) the template runs once per record,
// followed by a newline; otherwise it runs once against the whole
// sequence. Records are exposed as maps keyed by field name.
func TemplatePlugin() Plugin {
	defaults := fileDefaults("")
	defaults["download"] = false
	defaults["text"] = ""
	defaults["each"] = true
	defaults["contentType"] = "text/plain; charset=utf-8"
	return Plugin{
		ID:        Template,
		Defaults:  defaults,
		Transform: transformTemplate,
	}
}

func transformTemplate(_ context.Context, call *Call) Result {
	s := call.Settings.Namespace(Template)
	text := s.String("text", "")
	if text == "" {
		return Fail(fmt.Errorf("%w: template.text is empty", ErrInvalidTemplate))
	}
	items, ok := call.Content.([]any)
	if !ok {
		return Fail(errNotSequence(Template, call.Content))
	}
	var buf bytes.Buffer
	if err := writeGoTemplate(&buf, text, items, s.Bool("each", true)); err != nil {
		return Fail(err)
	}
	return emit(call, Template, s.String("contentType", "text/plain; charset=utf-8"), buf.Bytes())
}

func writeGoTemplate(w io.Writer, text string, items []any, each bool) error {
	tmpl, err := template.New(Template).Parse(text)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTemplate, err)
	}
	if !each {
		return tmpl.Execute(w, plainValue(items))
	}
	for _, item := range items {
		if err := tmpl.Execute(w, plainValue(item)); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
