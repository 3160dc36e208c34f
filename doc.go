// Package fmtware re-encodes JSON HTTP responses into the format a client
// asks for.
//
// A [Formatter] holds a registry of format plugins and the settings they
// run with. It is used in one of three ways:
//
//   - [Formatter.Middleware] wraps a handler and intercepts its 2xx JSON
//     responses. Everything else passes through untouched.
//   - [Formatter.Send] encodes a Go value directly from a handler.
//   - [Formatter.Encode] encodes a value outside of any request.
//
// # Format Selection
//
// By default the format comes from the "format" query parameter, which is
// removed before the wrapped handler sees the request, falling back to
// JSON. Use [WithFormat] with one of the sources to change that:
//
//   - [Literal] — always the same format
//   - [Resolver] — computed from the request
//   - [Deferred] — supplied later through a callback, bounded by
//     [WithResolveTimeout]
//   - [FromQuery] — the query hint with a custom fallback
//
// # Shaping
//
// Before a plugin runs, the payload is shaped into a sequence:
//
//	fw, _ := fmtware.New(fmtware.WithKey("data.items"))
//
// [WithKey] picks a subtree by dot path, [WithUnpack] adds transformation
// steps, and anything that is not already a sequence is wrapped in one.
// An absent key yields an empty sequence. [WithForceArray] also turns
// scalars found along the path into an empty sequence instead of
// [ErrMissingKey].
//
// # Plugins
//
// A [Plugin] has an ID, default [Settings], and a [TransformFunc] that
// must return exactly one [Result]:
//
//   - [Emit] — the plugin wrote the response itself
//   - [PassThrough] — the given content is written as JSON
//   - [Fail] — the request fails with the error
//
// Anything else is reported as [ErrPluginProtocol]. A plugin may run
// another one in buffered mode with [Registry.Invoke], which is how the
// PDF plugin renders HTML first.
//
// Tabular plugins (CSV, TSV, HTML, Markdown, Table, XLSX, ODS) flatten
// nested records into dotted column names with [Flatten]; [Unflatten]
// reverses it.
//
// # Settings
//
// Settings are a tree of namespaces keyed by plugin ID. Plugin defaults
// are merged first, then overrides from [WithSettings] or a file read with
// [LoadSettings]. Each plugin documents the keys it reads.
package fmtware
