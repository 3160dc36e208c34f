package fmtware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const jsonContentType = "application/json; charset=utf-8"

// exchange is the per-request state of one pass through the pipeline.
type exchange struct {
	id     string
	hint   string
	format string

	// original is the decoded payload before shaping.
	original any

	// status is the code the wrapped handler wrote; zero outside the
	// middleware.
	status int

	// emitJSON writes content through the unwrapped JSON path.
	emitJSON func(content any) error
}

type exchangeKey struct{}

func withExchange(ctx context.Context, ex *exchange) context.Context {
	return context.WithValue(ctx, exchangeKey{}, ex)
}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}

func newRequestID() string { return uuid.NewString() }

// responseStatus is the status a plugin should write for r.
func responseStatus(r *http.Request) int {
	if r != nil {
		if ex := exchangeFrom(r.Context()); ex != nil && ex.status != 0 {
			return ex.status
		}
	}
	return http.StatusOK
}

// Original returns the decoded payload of the request before shaping, for
// plugins that need the untouched shape.
func Original(r *http.Request) any {
	if ex := exchangeFrom(r.Context()); ex != nil {
		return ex.original
	}
	return nil
}

// ResolvedFormat returns the format selected for the request.
func ResolvedFormat(r *http.Request) string {
	if ex := exchangeFrom(r.Context()); ex != nil {
		return ex.format
	}
	return ""
}

// Middleware intercepts 2xx JSON responses written by next and re-encodes
// them in the negotiated format. Other responses pass through untouched.
// The format query parameter is removed before next sees the request.
// The handler's status code is kept for every format.
func (f *Formatter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, ex := f.consumeHint(r)
		cw := &captureWriter{w: w}
		next.ServeHTTP(cw, r)
		if !cw.capture {
			return
		}

		w.Header().Del("Content-Length")
		body := cw.buf.Bytes()
		payload, err := Decode(body)
		if err != nil {
			f.log.Debug("response is not valid JSON, sending as is",
				"request_id", ex.id,
				"error", err,
			)
			w.WriteHeader(cw.status)
			_, _ = w.Write(body)
			return
		}
		ex.status = cw.status
		ex.emitJSON = func(content any) error {
			data, err := json.Marshal(content)
			if err != nil {
				return err
			}
			w.Header().Set("Content-Type", jsonContentType)
			w.WriteHeader(cw.status)
			_, err = w.Write(append(data, '\n'))
			return err
		}
		f.dispatch(w, r, ex, payload)
	})
}

// Send encodes payload in the negotiated format and writes the response.
// payload may be any JSON-encodable value.
func (f *Formatter) Send(w http.ResponseWriter, r *http.Request, payload any) {
	r, ex := f.consumeHint(r)
	ex.emitJSON = func(content any) error {
		data, err := json.Marshal(content)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", jsonContentType)
		w.WriteHeader(http.StatusOK)
		_, err = w.Write(append(data, '\n'))
		return err
	}
	content, err := Normalize(payload)
	if err != nil {
		f.report(w, r, ex, false, fmt.Errorf("%w: %v", ErrUnsuitableContent, err))
		return
	}
	f.dispatch(w, r, ex, content)
}

// Encode runs the pipeline for format outside of a request and returns the
// encoded body with the headers the plugin set.
func (f *Formatter) Encode(ctx context.Context, format string, payload any) ([]byte, http.Header, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return nil, nil, err
	}
	ex := &exchange{id: newRequestID()}
	r = r.WithContext(withExchange(ctx, ex))
	bw := &bufferWriter{header: http.Header{}}
	ex.emitJSON = func(content any) error {
		data, err := json.Marshal(content)
		if err != nil {
			return err
		}
		bw.Header().Set("Content-Type", jsonContentType)
		_, err = bw.Write(append(data, '\n'))
		return err
	}
	content, err := Normalize(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsuitableContent, err)
	}
	gw := &guardWriter{ResponseWriter: bw, log: f.log, requestID: ex.id}
	if err := f.render(ctx, gw, r, ex, format, content); err != nil {
		return nil, nil, err
	}
	return bw.buf.Bytes(), bw.header, nil
}

func (f *Formatter) dispatch(w http.ResponseWriter, r *http.Request, ex *exchange, payload any) {
	ctx := r.Context()
	gw := &guardWriter{ResponseWriter: w, log: f.log, requestID: ex.id}
	format, err := f.resolveFormat(ctx, gw, r)
	if err == nil {
		err = f.render(ctx, gw, r, ex, format, payload)
	}
	if err != nil {
		f.report(w, r, ex, gw.wrote, err)
	}
}

func (f *Formatter) render(ctx context.Context, gw *guardWriter, r *http.Request, ex *exchange, format string, payload any) error {
	ex.format = format
	ex.original = payload
	p, ok := f.registry.Lookup(format)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	f.log.Debug("encoding response",
		"request_id", ex.id,
		"format", format,
	)

	call := &Call{
		Registry: f.registry,
		Settings: f.settings,
		Content:  payload,
		Request:  r,
		Response: gw,
	}
	if !p.Raw {
		shaped, err := Shape(ctx, payload, f.shape)
		if err != nil {
			return err
		}
		call.Content = shaped
	}

	res := p.Transform(ctx, call)
	switch res.Outcome() {
	case Emitted:
		if !gw.wrote {
			return fmt.Errorf("%w: plugin %q reported emitted without writing", ErrPluginProtocol, p.ID)
		}
		return nil
	case PassedThrough:
		if gw.wrote {
			return fmt.Errorf("%w: plugin %q passed through after writing", ErrPluginProtocol, p.ID)
		}
		return ex.emitJSON(res.Content())
	case Failed:
		return res.Err()
	default:
		return fmt.Errorf("%w: plugin %q returned no result", ErrPluginProtocol, p.ID)
	}
}

func (f *Formatter) report(w http.ResponseWriter, r *http.Request, ex *exchange, wrote bool, err error) {
	attrs := []any{
		"request_id", ex.id,
		"format", ex.format,
		"path", r.URL.Path,
		"error", err,
	}
	if errors.Is(err, ErrPluginProtocol) {
		f.log.Error("plugin protocol violation", attrs...)
	} else {
		f.log.Warn("response encoding failed", attrs...)
	}
	if wrote {
		f.log.Error("failure after response was written, client sees a partial response", attrs...)
		return
	}
	f.onError(w, r, err)
}

// guardWriter records whether a plugin has written to the response and
// drops repeated WriteHeader calls.
type guardWriter struct {
	http.ResponseWriter
	log       *slog.Logger
	requestID string
	wrote     bool
}

func (g *guardWriter) WriteHeader(code int) {
	if g.wrote {
		g.log.Error("response header written twice",
			"request_id", g.requestID,
			"status", code,
		)
		return
	}
	g.wrote = true
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardWriter) Write(p []byte) (int, error) {
	g.wrote = true
	return g.ResponseWriter.Write(p)
}

func (g *guardWriter) Unwrap() http.ResponseWriter { return g.ResponseWriter }

// captureWriter buffers a 2xx JSON response and forwards anything else.
type captureWriter struct {
	w       http.ResponseWriter
	status  int
	decided bool
	capture bool
	buf     bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.w.Header() }

func (c *captureWriter) WriteHeader(code int) {
	if c.decided {
		return
	}
	c.decided = true
	c.status = code
	c.capture = code >= 200 && code < 300 && isJSON(c.w.Header().Get("Content-Type"))
	if !c.capture {
		c.w.WriteHeader(code)
	}
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if !c.decided {
		c.WriteHeader(http.StatusOK)
	}
	if c.capture {
		return c.buf.Write(p)
	}
	return c.w.Write(p)
}

func (c *captureWriter) Unwrap() http.ResponseWriter { return c.w }

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// bufferWriter is the response writer behind [Formatter.Encode].
type bufferWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func (b *bufferWriter) Header() http.Header { return b.header }

func (b *bufferWriter) WriteHeader(code int) { b.status = code }

func (b *bufferWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
