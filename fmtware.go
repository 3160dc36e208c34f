package fmtware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sentinel errors for programmatic error handling.
var (
	ErrUnknownFormat         = errors.New("unknown format")
	ErrUnsuitableContent     = errors.New("unsuitable content")
	ErrMissingKey            = errors.New("missing key")
	ErrMalformedPath         = errors.New("malformed path")
	ErrPluginProtocol        = errors.New("plugin protocol violation")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrRenderer              = errors.New("renderer failed")
	ErrInvalidTemplate       = errors.New("invalid template")
)

// Format names of the built-in plugins.
const (
	JSON     = "json"
	CSV      = "csv"
	TSV      = "tsv"
	HTML     = "html"
	Markdown = "markdown"
	Table    = "table"
	YAML     = "yaml"
	JSONL    = "jsonl"
	CBOR     = "cbor"
	XLSX     = "xlsx"
	ODS      = "ods"
	PDF      = "pdf"
	Template = "template"
)

// DefaultPlugins returns a fresh list of every built-in plugin.
func DefaultPlugins() []Plugin {
	return []Plugin{
		JSONPlugin(),
		CSVPlugin(),
		TSVPlugin(),
		HTMLPlugin(),
		MarkdownPlugin(),
		TablePlugin(),
		YAMLPlugin(),
		JSONLPlugin(),
		CBORPlugin(),
		XLSXPlugin(),
		ODSPlugin(),
		PDFPlugin(),
		TemplatePlugin(),
	}
}

// ErrorHandler writes the response for a failed request. It is only called
// when nothing has been written yet.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Formatter re-encodes JSON responses into the format negotiated for each
// request. A Formatter is safe for concurrent use.
type Formatter struct {
	registry       *Registry
	settings       Settings
	format         FormatSource
	shape          ShapeOptions
	param          string
	resolveTimeout time.Duration
	log            *slog.Logger
	onError        ErrorHandler
}

type config struct {
	plugins        []Plugin
	overrides      Settings
	format         FormatSource
	key            *string
	unpack         []UnpackFunc
	forceArray     *bool
	filename       *string
	param          string
	resolveTimeout time.Duration
	logger         *slog.Logger
	onError        ErrorHandler
}

// Option configures a [Formatter].
type Option func(*config)

// WithFormat sets how the format is chosen. Default: FromQuery("json").
func WithFormat(src FormatSource) Option { return func(c *config) { c.format = src } }

// WithKey extracts the value at a dot path before encoding.
func WithKey(key string) Option { return func(c *config) { c.key = &key } }

// WithUnpack appends steps to the unpack chain.
func WithUnpack(fns ...UnpackFunc) Option {
	return func(c *config) { c.unpack = append(c.unpack, fns...) }
}

// WithForceArray makes unusable subkeys yield an empty sequence.
func WithForceArray(force bool) Option { return func(c *config) { c.forceArray = &force } }

// WithFilename overrides the download filename of every plugin.
func WithFilename(name string) Option { return func(c *config) { c.filename = &name } }

// WithSettings layers overrides on top of plugin defaults. Later calls
// override earlier ones.
func WithSettings(s Settings) Option {
	return func(c *config) { mergeInto(c.overrides, s, true) }
}

// WithPlugins replaces the plugin set. Default: [DefaultPlugins].
func WithPlugins(plugins ...Plugin) Option { return func(c *config) { c.plugins = plugins } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithQueryParam names the query parameter carrying the format hint.
// Default: "format".
func WithQueryParam(name string) Option { return func(c *config) { c.param = name } }

// WithResolveTimeout bounds how long a [Deferred] resolver may take.
// Default: 30s.
func WithResolveTimeout(d time.Duration) Option {
	return func(c *config) { c.resolveTimeout = d }
}

// WithErrorHandler replaces the default empty 500 response.
func WithErrorHandler(h ErrorHandler) Option { return func(c *config) { c.onError = h } }

// New builds a Formatter. The registry and merged settings are fixed for
// the lifetime of the Formatter.
func New(opts ...Option) (*Formatter, error) {
	cfg := config{
		plugins:        DefaultPlugins(),
		overrides:      Settings{},
		format:         FromQuery(JSON),
		param:          "format",
		resolveTimeout: 30 * time.Second,
		logger:         slog.Default(),
		onError:        defaultErrorHandler,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.key != nil {
		cfg.overrides["key"] = *cfg.key
	}
	if cfg.forceArray != nil {
		cfg.overrides["forceArray"] = *cfg.forceArray
	}
	if cfg.filename != nil {
		cfg.overrides["filename"] = *cfg.filename
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.resolveTimeout <= 0 {
		return nil, fmt.Errorf("fmtware: resolve timeout must be positive, got %s", cfg.resolveTimeout)
	}

	registry, err := NewRegistry(cfg.plugins...)
	if err != nil {
		return nil, err
	}
	settings := MergeSettings(registry.Plugins(), cfg.overrides)

	return &Formatter{
		registry: registry,
		settings: settings,
		format:   cfg.format,
		shape: ShapeOptions{
			Key:        settings.String("key", ""),
			Unpack:     cfg.unpack,
			ForceArray: settings.Bool("forceArray", false),
		},
		param:          cfg.param,
		resolveTimeout: cfg.resolveTimeout,
		log:            cfg.logger,
		onError:        cfg.onError,
	}, nil
}

// Registry returns the plugin registry.
func (f *Formatter) Registry() *Registry { return f.registry }

// Settings returns the merged settings. The result must not be modified.
func (f *Formatter) Settings() Settings { return f.settings }

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	h := w.Header()
	h.Del("Content-Type")
	h.Del("Content-Disposition")
	h.Del("ETag")
	w.WriteHeader(http.StatusInternalServerError)
}
