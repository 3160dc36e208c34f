package fmtware

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// ResolveFunc picks the format for a request.
type ResolveFunc func(ctx context.Context, r *http.Request) (string, error)

// DeferredFunc picks the format for a request either by returning it, or
// by returning "" and calling resolve exactly once later, possibly from
// another goroutine.
type DeferredFunc func(w http.ResponseWriter, r *http.Request, resolve func(format string)) string

// FormatSource decides the format of each request. Build one with
// [Literal], [Resolver], [Deferred], or [FromQuery].
type FormatSource struct {
	literal  string
	resolve  ResolveFunc
	deferred DeferredFunc
}

// Literal always selects name.
func Literal(name string) FormatSource { return FormatSource{literal: name} }

// Resolver selects the format returned by fn.
func Resolver(fn ResolveFunc) FormatSource { return FormatSource{resolve: fn} }

// Deferred selects the format supplied by fn, waiting for a late
// resolution up to the resolve timeout.
func Deferred(fn DeferredFunc) FormatSource { return FormatSource{deferred: fn} }

// FromQuery selects the format named by the request's format hint, or
// fallback when the request carries none.
func FromQuery(fallback string) FormatSource {
	return Resolver(func(_ context.Context, r *http.Request) (string, error) {
		if hint := Hint(r); hint != "" {
			return hint, nil
		}
		return fallback, nil
	})
}

// Hint returns the format hint removed from the request's query string.
func Hint(r *http.Request) string {
	if ex := exchangeFrom(r.Context()); ex != nil {
		return ex.hint
	}
	return ""
}

// consumeHint moves the format query parameter into the request context so
// the downstream handler does not see it.
func (f *Formatter) consumeHint(r *http.Request) (*http.Request, *exchange) {
	if ex := exchangeFrom(r.Context()); ex != nil {
		return r, ex
	}
	ex := &exchange{id: newRequestID()}
	q := r.URL.Query()
	if q.Has(f.param) {
		ex.hint = q.Get(f.param)
		q.Del(f.param)
	}
	r = r.WithContext(withExchange(r.Context(), ex))
	u := *r.URL
	u.RawQuery = q.Encode()
	r.URL = &u
	if r.RequestURI != "" {
		r.RequestURI = u.RequestURI()
	}
	return r, ex
}

func (f *Formatter) resolveFormat(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	switch src := f.format; {
	case src.resolve != nil:
		return src.resolve(ctx, r)
	case src.deferred != nil:
		return f.awaitFormat(ctx, w, r, src.deferred)
	default:
		return src.literal, nil
	}
}

func (f *Formatter) awaitFormat(ctx context.Context, w http.ResponseWriter, r *http.Request, fn DeferredFunc) (string, error) {
	resolved := make(chan string, 1)
	var calls atomic.Int32
	resolve := func(format string) {
		if calls.Add(1) > 1 {
			f.log.Error("format resolved more than once",
				"format", format,
				"path", r.URL.Path,
			)
			return
		}
		resolved <- format
	}

	if format := fn(w, r, resolve); format != "" {
		if calls.Add(1) > 1 {
			return "", fmt.Errorf("%w: resolver returned %q after resolving", ErrPluginProtocol, format)
		}
		return format, nil
	}

	timer := time.NewTimer(f.resolveTimeout)
	defer timer.Stop()
	select {
	case format := <-resolved:
		if calls.Load() > 1 {
			return "", fmt.Errorf("%w: format resolved more than once", ErrPluginProtocol)
		}
		return format, nil
	case <-timer.C:
		return "", fmt.Errorf("%w: format not resolved within %s", ErrPluginProtocol, f.resolveTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
