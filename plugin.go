package fmtware

import (
	"context"
	"fmt"
	"net/http"
)

// Plugin encodes shaped content into one named output format.
type Plugin struct {
	// ID is the format name the plugin is selected by. It is also the
	// settings namespace the plugin owns.
	ID string

	// Defaults is merged under ID when the [Formatter] is built.
	Defaults Settings

	// Raw plugins receive the original payload instead of shaped content.
	Raw bool

	Transform TransformFunc
}

// TransformFunc encodes call.Content. It either writes the response and
// returns [Emit], returns [PassThrough] without touching the response, or
// returns [Fail] before writing anything.
type TransformFunc func(ctx context.Context, call *Call) Result

// Call carries everything a transform may use.
type Call struct {
	Registry *Registry
	Settings Settings

	// Content is a []any of records for shaped plugins and the original
	// payload for raw plugins.
	Content any

	Request  *http.Request
	Response http.ResponseWriter
}

// Outcome tags a [Result].
type Outcome uint8

const (
	outcomeNone Outcome = iota

	// Emitted means the plugin wrote the full response.
	Emitted
	// PassedThrough means the plugin handed content back to the pipeline.
	PassedThrough
	// Failed means the plugin gave up with an error.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Emitted:
		return "emitted"
	case PassedThrough:
		return "passthrough"
	case Failed:
		return "failed"
	default:
		return "none"
	}
}

// Result is what a transform reports back. The zero Result is a protocol
// violation.
type Result struct {
	outcome Outcome
	content any
	err     error
}

// Emit reports that the response was written.
func Emit() Result { return Result{outcome: Emitted} }

// PassThrough hands content back to the caller of the transform.
func PassThrough(content any) Result { return Result{outcome: PassedThrough, content: content} }

// Fail reports err. A nil err is replaced by [ErrPluginProtocol].
func Fail(err error) Result {
	if err == nil {
		err = fmt.Errorf("%w: failure reported without an error", ErrPluginProtocol)
	}
	return Result{outcome: Failed, err: err}
}

// Outcome returns the result tag.
func (r Result) Outcome() Outcome { return r.outcome }

// Content returns the pass-through content.
func (r Result) Content() any { return r.content }

// Err returns the failure.
func (r Result) Err() error { return r.err }

// Registry maps format names to plugins. It is immutable once built.
type Registry struct {
	plugins []Plugin
	byID    map[string]int
}

// NewRegistry builds a registry. Plugins without an ID or transform, and
// duplicate IDs, are rejected.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{
		plugins: make([]Plugin, 0, len(plugins)),
		byID:    make(map[string]int, len(plugins)),
	}
	for _, p := range plugins {
		if p.ID == "" || p.Transform == nil {
			return nil, fmt.Errorf("%w: plugin %q needs an ID and a transform", ErrPluginProtocol, p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plugin %q", ErrPluginProtocol, p.ID)
		}
		r.byID[p.ID] = len(r.plugins)
		r.plugins = append(r.plugins, p)
	}
	return r, nil
}

// Lookup returns the plugin registered under id.
func (r *Registry) Lookup(id string) (Plugin, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Plugin{}, false
	}
	return r.plugins[i], true
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Formats returns the registered format names in registration order.
func (r *Registry) Formats() []string {
	out := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		out[i] = p.ID
	}
	return out
}

// Invoke runs another plugin in buffered mode and returns its encoded
// bytes. The sub-plugin sees a copy of call.Settings with "<id>.passthru"
// set, and a response writer it may not use.
func (r *Registry) Invoke(ctx context.Context, id string, call *Call) ([]byte, error) {
	p, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDependencyUnavailable, id)
	}
	sealed := &sealedWriter{header: http.Header{}}
	sub := &Call{
		Registry: r,
		Settings: call.Settings.With(id+".passthru", true),
		Content:  call.Content,
		Request:  call.Request,
		Response: sealed,
	}
	res := p.Transform(ctx, sub)
	if sealed.touched {
		return nil, fmt.Errorf("%w: plugin %q wrote to the response while buffered", ErrPluginProtocol, id)
	}
	switch res.Outcome() {
	case PassedThrough:
		body, ok := res.Content().([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: plugin %q passed through %T, want []byte", ErrPluginProtocol, id, res.Content())
		}
		return body, nil
	case Failed:
		return nil, res.Err()
	default:
		return nil, fmt.Errorf("%w: plugin %q returned %s while buffered", ErrPluginProtocol, id, res.Outcome())
	}
}

// sealedWriter is handed to buffered sub-plugins; any use is recorded.
type sealedWriter struct {
	header  http.Header
	touched bool
}

func (w *sealedWriter) Header() http.Header { return w.header }

func (w *sealedWriter) Write(p []byte) (int, error) {
	w.touched = true
	return 0, fmt.Errorf("%w: write to sealed response", ErrPluginProtocol)
}

func (w *sealedWriter) WriteHeader(int) { w.touched = true }
