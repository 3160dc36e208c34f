package fmtware_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/fmtware"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newFormatter(t *testing.T, opts ...fmtware.Option) *fmtware.Formatter {
	t.Helper()
	fw, err := fmtware.New(append([]fmtware.Option{fmtware.WithLogger(discard)}, opts...)...)
	require.NoError(t, err)
	return fw
}

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func serve(h http.Handler, target string, header ...string) *http.Response {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMiddlewareDefaultJSON(t *testing.T) {
	t.Parallel()
	const payload = `{"id":"user0","address":{"city":"X"}}`
	fw := newFormatter(t)

	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, payload)), "/users/0")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, payload, readBody(t, resp))
}

func TestMiddlewareJSONKeepsStatusAndOrder(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t)
	resp := serve(fw.Middleware(jsonHandler(http.StatusCreated, `{"z":1,"a":2}`)), "/")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"z":1,"a":2}`+"\n", readBody(t, resp))
}

func TestMiddlewareJSONIndent(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t, fmtware.WithSettings(fmtware.Settings{
		"json": map[string]any{"indent": "  "},
	}))
	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, `{"a":1}`)), "/")
	assert.Equal(t, "{\n  \"a\": 1\n}\n", readBody(t, resp))
	assert.NotEmpty(t, resp.Header.Get("ETag"))
}

func TestMiddlewareCSVRoundTrip(t *testing.T) {
	t.Parallel()
	const payload = `[{"id":"u1","address":{"city":"X"}},{"id":"u2","address":{"city":"Y"}}]`
	fw := newFormatter(t)

	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, payload)), "/users?format=csv")
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Exported Data.csv"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "id,address.city\nu1,X\nu2,Y\n", body)

	rows, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	require.NoError(t, err)
	var got []any
	for _, row := range rows[1:] {
		flat := fmtware.Record{}
		for i, key := range rows[0] {
			flat.Set(key, row[i])
		}
		rec, err := fmtware.Unflatten(flat)
		require.NoError(t, err)
		got = append(got, rec)
	}
	if diff := cmp.Diff(decoded(t, payload), any(got)); diff != "" {
		t.Errorf("csv round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMiddlewareKey(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t, fmtware.WithKey("data"))
	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, `{"meta":"...","data":{"id":"u1"}}`)), "/?format=csv")
	assert.Equal(t, "id\nu1\n", readBody(t, resp))
}

func TestMiddlewareMissingKeyFails(t *testing.T) {
	t.Parallel()
	var got error
	fw := newFormatter(t,
		fmtware.WithKey("data.items"),
		fmtware.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusUnprocessableEntity)
		}),
	)
	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, `{"data":"oops"}`)), "/?format=csv")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.ErrorIs(t, got, fmtware.ErrMissingKey)
}

func TestMiddlewareFilenameOverride(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t, fmtware.WithFilename("users.csv"))
	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, `[{"a":1}]`)), "/?format=csv")
	assert.Equal(t, `attachment; filename=users.csv`, resp.Header.Get("Content-Disposition"))
}

func TestMiddlewareRemovesFormatParam(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t)
	var (
		query string
		uri   string
		hint  string
	)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		uri = r.RequestURI
		hint = fmtware.Hint(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[]`)
	})
	resp := serve(fw.Middleware(h), "/list?page=2&format=csv")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "page=2", query)
	assert.Equal(t, "/list?page=2", uri)
	assert.Equal(t, "csv", hint)
}

func TestMiddlewarePassesOtherResponses(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		handler    http.Handler
		wantStatus int
		wantBody   string
		wantType   string
	}{
		"error status": {
			handler:    jsonHandler(http.StatusNotFound, `{"error":"nope"}`),
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"nope"}`,
			wantType:   "application/json",
		},
		"not json": {
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = io.WriteString(w, "hello")
			}),
			wantStatus: http.StatusOK,
			wantBody:   "hello",
			wantType:   "text/plain",
		},
		"invalid json": {
			handler:    jsonHandler(http.StatusOK, `{"broken"`),
			wantStatus: http.StatusOK,
			wantBody:   `{"broken"`,
			wantType:   "application/json",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fw := newFormatter(t)
			resp := serve(fw.Middleware(tt.handler), "/?format=csv")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantType, resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantBody, readBody(t, resp))
		})
	}
}

func TestMiddlewareVendorJSON(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t)
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json; charset=utf-8")
		_, _ = io.WriteString(w, `[{"a":1}]`)
	})
	resp := serve(fw.Middleware(h), "/?format=csv")
	assert.Equal(t, "a\n1\n", readBody(t, resp))
}

func TestMiddlewareUnknownFormat(t *testing.T) {
	t.Parallel()
	var got error
	fw := newFormatter(t, fmtware.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusBadRequest)
	}))
	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, `[]`)), "/?format=xml")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.ErrorIs(t, got, fmtware.ErrUnknownFormat)
}

func TestMiddlewareDeferredUnknownFormat(t *testing.T) {
	t.Parallel()
	var got error
	fw := newFormatter(t,
		fmtware.WithPlugins(fmtware.JSONPlugin(), fmtware.CSVPlugin()),
		fmtware.WithFormat(fmtware.Deferred(func(_ http.ResponseWriter, _ *http.Request, resolve func(string)) string {
			go resolve(fmtware.XLSX)
			return ""
		})),
		fmtware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusInternalServerError)
		}),
	)

	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, `[{"id":"u1"}]`)), "/")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, readBody(t, resp))
	assert.ErrorIs(t, got, fmtware.ErrUnknownFormat)
}

func TestMiddlewareDefaultErrorHandler(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t)
	resp := serve(fw.Middleware(jsonHandler(http.StatusOK, `[]`)), "/?format=nope")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Type"))
	assert.Empty(t, readBody(t, resp))
}

func TestMiddlewareNotModified(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t)
	h := fw.Middleware(jsonHandler(http.StatusOK, `[{"a":1}]`))

	first := serve(h, "/?format=csv")
	tag := first.Header.Get("ETag")
	require.NotEmpty(t, tag)
	assert.Equal(t, "a\n1\n", readBody(t, first))

	second := serve(h, "/?format=csv", "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, second.StatusCode)
	assert.Empty(t, readBody(t, second))
}

func TestMiddlewareKeepsStatusForEveryFormat(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t)
	h := fw.Middleware(jsonHandler(http.StatusCreated, `[{"a":1}]`))

	for _, format := range []string{"json", "csv", "html", "yaml", "xlsx"} {
		resp := serve(h, "/?format="+format)
		assert.Equal(t, http.StatusCreated, resp.StatusCode, format)
		assert.NotEmpty(t, readBody(t, resp), format)
	}
}

func TestMiddlewareNotModifiedOnlyForOK(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t)
	h := fw.Middleware(jsonHandler(http.StatusAccepted, `[{"a":1}]`))

	first := serve(h, "/?format=csv")
	tag := first.Header.Get("ETag")
	require.NotEmpty(t, tag)

	second := serve(h, "/?format=csv", "If-None-Match", tag)
	assert.Equal(t, http.StatusAccepted, second.StatusCode)
	assert.Equal(t, "a\n1\n", readBody(t, second))
}

func TestProtocolViolations(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		transform   fmtware.TransformFunc
		wantStatus  int
		wantBody    string
		wantHandled bool
		wantErr     error
	}{
		"emit without writing": {
			transform: func(context.Context, *fmtware.Call) fmtware.Result {
				return fmtware.Emit()
			},
			wantStatus:  http.StatusInternalServerError,
			wantHandled: true,
			wantErr:     fmtware.ErrPluginProtocol,
		},
		"zero result": {
			transform: func(context.Context, *fmtware.Call) fmtware.Result {
				return fmtware.Result{}
			},
			wantStatus:  http.StatusInternalServerError,
			wantHandled: true,
			wantErr:     fmtware.ErrPluginProtocol,
		},
		"fail": {
			transform: func(context.Context, *fmtware.Call) fmtware.Result {
				return fmtware.Fail(fmtware.ErrUnsuitableContent)
			},
			wantStatus:  http.StatusInternalServerError,
			wantHandled: true,
			wantErr:     fmtware.ErrUnsuitableContent,
		},
		"pass through after writing": {
			transform: func(_ context.Context, call *fmtware.Call) fmtware.Result {
				call.Response.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(call.Response, "partial")
				return fmtware.PassThrough("more")
			},
			wantStatus: http.StatusOK,
			wantBody:   "partial",
		},
		"fail after writing": {
			transform: func(_ context.Context, call *fmtware.Call) fmtware.Result {
				_, _ = io.WriteString(call.Response, "partial")
				return fmtware.Fail(errors.New("late"))
			},
			wantStatus: http.StatusOK,
			wantBody:   "partial",
		},
		"header written twice": {
			transform: func(_ context.Context, call *fmtware.Call) fmtware.Result {
				call.Response.WriteHeader(http.StatusAccepted)
				call.Response.WriteHeader(http.StatusTeapot)
				_, _ = io.WriteString(call.Response, "ok")
				return fmtware.Emit()
			},
			wantStatus: http.StatusAccepted,
			wantBody:   "ok",
		},
		"pass through content": {
			transform: func(context.Context, *fmtware.Call) fmtware.Result {
				return fmtware.PassThrough(map[string]int{"n": 1})
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"n":1}` + "\n",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var (
				handled bool
				got     error
			)
			fw := newFormatter(t,
				fmtware.WithPlugins(pluginFunc("custom", tt.transform)),
				fmtware.WithFormat(fmtware.Literal("custom")),
				fmtware.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
					handled = true
					got = err
					w.WriteHeader(http.StatusInternalServerError)
				}),
			)
			resp := serve(fw.Middleware(jsonHandler(http.StatusOK, `[]`)), "/")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, readBody(t, resp))
			assert.Equal(t, tt.wantHandled, handled)
			if tt.wantErr != nil {
				assert.ErrorIs(t, got, tt.wantErr)
			}
		})
	}
}

func TestProtocolViolationIsLogged(t *testing.T) {
	t.Parallel()
	var logs syncBuffer
	fw, err := fmtware.New(
		fmtware.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		fmtware.WithPlugins(pluginFunc("custom", func(context.Context, *fmtware.Call) fmtware.Result {
			return fmtware.Emit()
		})),
		fmtware.WithFormat(fmtware.Literal("custom")),
	)
	require.NoError(t, err)

	serve(fw.Middleware(jsonHandler(http.StatusOK, `[]`)), "/")

	out := logs.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "plugin protocol violation")
	assert.Contains(t, out, "request_id=")
}

func TestRawPluginSeesOriginalPayload(t *testing.T) {
	t.Parallel()
	var shaped, raw any
	fw := newFormatter(t,
		fmtware.WithKey("data"),
		fmtware.WithPlugins(
			pluginFunc("shaped", func(_ context.Context, call *fmtware.Call) fmtware.Result {
				shaped = call.Content
				raw = fmtware.Original(call.Request)
				return fmtware.PassThrough(nil)
			}),
		),
		fmtware.WithFormat(fmtware.Literal("shaped")),
	)
	serve(fw.Middleware(jsonHandler(http.StatusOK, `{"data":{"id":"u1"}}`)), "/")
	assert.Equal(t, decoded(t, `[{"id":"u1"}]`), shaped)
	assert.Equal(t, decoded(t, `{"data":{"id":"u1"}}`), raw)
}

func TestSend(t *testing.T) {
	t.Parallel()
	type user struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	fw := newFormatter(t)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fw.Send(w, r, []user{{ID: "u1", Name: "Alice"}})
	})

	resp := serve(h, "/?format=csv")
	assert.Equal(t, "id,name\nu1,Alice\n", readBody(t, resp))

	resp = serve(h, "/")
	assert.JSONEq(t, `[{"id":"u1","name":"Alice"}]`, readBody(t, resp))
}

func TestSendUnencodable(t *testing.T) {
	t.Parallel()
	var got error
	fw := newFormatter(t, fmtware.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fw.Send(w, r, make(chan int))
	})
	resp := serve(h, "/")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.ErrorIs(t, got, fmtware.ErrUnsuitableContent)
}

func TestEncode(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t)
	payload := []map[string]any{{"a": 1}}

	body, header, err := fw.Encode(context.Background(), fmtware.CSV, payload)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(body))
	assert.Equal(t, "text/csv; charset=utf-8", header.Get("Content-Type"))

	body, header, err = fw.Encode(context.Background(), fmtware.JSON, payload)
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1}]`+"\n", string(body))
	assert.Equal(t, "application/json; charset=utf-8", header.Get("Content-Type"))

	_, _, err = fw.Encode(context.Background(), "xml", payload)
	assert.ErrorIs(t, err, fmtware.ErrUnknownFormat)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	_, err := fmtware.New(fmtware.WithResolveTimeout(0))
	assert.Error(t, err)

	_, err = fmtware.New(fmtware.WithPlugins(fmtware.CSVPlugin(), fmtware.CSVPlugin()))
	assert.ErrorIs(t, err, fmtware.ErrPluginProtocol)
}

func TestFormatterSettings(t *testing.T) {
	t.Parallel()
	fw := newFormatter(t,
		fmtware.WithKey("items"),
		fmtware.WithSettings(fmtware.Settings{"csv": map[string]any{"delimiter": ";"}}),
		fmtware.WithSettings(fmtware.Settings{"csv": map[string]any{"header": false}}),
	)
	s := fw.Settings()
	assert.Equal(t, "items", s.String("key", ""))
	assert.Equal(t, ";", s.String("csv.delimiter", ""))
	assert.False(t, s.Bool("csv.header", true))
	assert.Equal(t, "Exported Data.csv", s.String("csv.filename", ""))
	assert.Equal(t, fmtware.DefaultPlugins()[0].ID, fw.Registry().Formats()[0])
}
