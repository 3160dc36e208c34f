package fmtware_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/fmtware"
)

func stubPlugin(id string, defaults fmtware.Settings) fmtware.Plugin {
	return fmtware.Plugin{
		ID:       id,
		Defaults: defaults,
		Transform: func(context.Context, *fmtware.Call) fmtware.Result {
			return fmtware.PassThrough(nil)
		},
	}
}

func TestMergeSettingsLayering(t *testing.T) {
	t.Parallel()
	plugins := []fmtware.Plugin{
		stubPlugin("a", fmtware.Settings{"x": 1, "nested": map[string]any{"p": "a", "q": "a"}}),
		stubPlugin("b", nil),
	}
	got := fmtware.MergeSettings(plugins, fmtware.Settings{
		"a":        map[string]any{"nested": map[string]any{"q": "override"}},
		"filename": "report",
	})

	assert.Equal(t, 1, got.Int("a.x", 0))
	assert.Equal(t, "a", got.String("a.nested.p", ""))
	assert.Equal(t, "override", got.String("a.nested.q", ""))
	assert.Equal(t, "report", got.String("filename", ""))
	assert.False(t, got.Bool("forceArray", true))

	_, ok := got.Get("b")
	assert.True(t, ok, "every plugin gets a namespace")
}

func TestMergeSettingsDefaultsDoNotOverwrite(t *testing.T) {
	t.Parallel()
	// A plugin whose ID collides with a built-in key keeps the built-in.
	got := fmtware.MergeSettings([]fmtware.Plugin{
		stubPlugin("first", fmtware.Settings{"v": "first"}),
		stubPlugin("filename", fmtware.Settings{"v": "x"}),
	}, nil)
	assert.Equal(t, "", got.String("filename", "unset"))
	assert.Equal(t, "first", got.String("first.v", ""))
}

func TestMergeSettingsDoesNotAliasDefaults(t *testing.T) {
	t.Parallel()
	defaults := fmtware.Settings{"v": "default"}
	got := fmtware.MergeSettings([]fmtware.Plugin{stubPlugin("p", defaults)},
		fmtware.Settings{"p": map[string]any{"v": "override"}})
	assert.Equal(t, "override", got.String("p.v", ""))
	assert.Equal(t, "default", defaults["v"])
}

func TestSettingsWithIsCopyOnWrite(t *testing.T) {
	t.Parallel()
	base := fmtware.MergeSettings([]fmtware.Plugin{
		stubPlugin("html", fmtware.Settings{"passthru": false, "title": "T"}),
	}, nil)

	derived := base.With("html.passthru", true)

	assert.True(t, derived.Bool("html.passthru", false))
	assert.Equal(t, "T", derived.String("html.title", ""))
	assert.False(t, base.Bool("html.passthru", true), "original must be untouched")
}

func TestSettingsWithCreatesMissingPath(t *testing.T) {
	t.Parallel()
	s := fmtware.Settings{}
	got := s.With("a.b.c", 1)
	assert.Equal(t, 1, got.Int("a.b.c", 0))
	assert.Empty(t, s)
}

func TestSettingsAccessors(t *testing.T) {
	t.Parallel()
	s := fmtware.Settings{
		"p": map[string]any{
			"str":      "x",
			"boolStr":  "true",
			"int":      3,
			"float":    4.0,
			"intStr":   "5",
			"dur":      "1500ms",
			"list":     []any{"a", "b"},
			"badList":  []any{"a", 1},
			"strings":  []string{"c"},
			"notAMap":  1,
			"durValue": 2 * time.Second,
		},
	}
	assert.Equal(t, "x", s.String("p.str", ""))
	assert.Equal(t, "def", s.String("p.int", "def"))
	assert.True(t, s.Bool("p.boolStr", false))
	assert.Equal(t, 3, s.Int("p.int", 0))
	assert.Equal(t, 4, s.Int("p.float", 0))
	assert.Equal(t, 5, s.Int("p.intStr", 0))
	assert.Equal(t, 9, s.Int("p.str", 9))
	assert.Equal(t, 1500*time.Millisecond, s.Duration("p.dur", 0))
	assert.Equal(t, 2*time.Second, s.Duration("p.durValue", 0))
	assert.Equal(t, time.Minute, s.Duration("p.str", time.Minute))
	assert.Equal(t, []string{"a", "b"}, s.Strings("p.list", nil))
	assert.Equal(t, []string{"c"}, s.Strings("p.strings", nil))
	assert.Nil(t, s.Strings("p.badList", nil))
	assert.Equal(t, "d", s.String("p.notAMap.deeper", "d"))
	assert.Equal(t, "x", s.Namespace("p").String("str", ""))
	assert.Empty(t, s.Namespace("missing"))
}

func TestLoadSettings(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		file    string
		content string
	}{
		"yaml": {
			file:    "settings.yaml",
			content: "filename: report\ncsv:\n  delimiter: \";\"\ntable:\n  maxWidth: 12\n",
		},
		"jsonc": {
			file: "settings.jsonc",
			content: `{
	// shared download name
	"filename": "report",
	"csv": {"delimiter": ";"},
	"table": {"maxWidth": 12}, // trailing comma
}`,
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			s, err := fmtware.LoadSettings(path)
			require.NoError(t, err)
			assert.Equal(t, "report", s.String("filename", ""))
			assert.Equal(t, ";", s.String("csv.delimiter", ""))
			assert.Equal(t, 12, s.Int("table.maxWidth", 0))
		})
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := fmtware.LoadSettings(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	toml := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(toml, []byte("a = 1"), 0o600))
	_, err = fmtware.LoadSettings(toml)
	assert.ErrorContains(t, err, "unsupported extension")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = fmtware.LoadSettings(bad)
	assert.Error(t, err)
}
