package fmtware

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Settings is a tree of named options. Top-level keys shared by every
// plugin are "filename", "key", and "forceArray"; everything else lives
// under the namespace of the plugin that owns it.
//
// A Settings value handed to a plugin is shared between requests and must
// not be modified. Use [Settings.With] to derive a changed copy.
type Settings map[string]any

func builtinSettings() Settings {
	return Settings{
		"filename":   "",
		"key":        "",
		"forceArray": false,
	}
}

// MergeSettings builds the effective settings: built-in defaults, then the
// defaults of each plugin under its ID in registration order, then
// overrides. Plugin defaults only fill keys that are still missing;
// overrides replace values at any depth. Mappings merge key by key,
// anything else is replaced wholesale.
//
// Every plugin gets a namespace in the result, even one with no defaults.
func MergeSettings(plugins []Plugin, overrides Settings) Settings {
	out := map[string]any{}
	mergeInto(out, builtinSettings(), true)
	for _, p := range plugins {
		block := map[string]any{}
		if p.Defaults != nil {
			block = p.Defaults
		}
		mergeInto(out, map[string]any{p.ID: block}, false)
	}
	mergeInto(out, overrides, true)
	return out
}

func mergeInto(dst, src map[string]any, overwrite bool) {
	for k, v := range src {
		existing, exists := dst[k]
		if srcMap, ok := asMap(v); ok {
			dstMap, ok := asMap(existing)
			if !ok {
				if exists && !overwrite {
					continue
				}
				dstMap = map[string]any{}
				dst[k] = dstMap
			}
			mergeInto(dstMap, srcMap, overwrite)
			continue
		}
		if exists && !overwrite {
			continue
		}
		dst[k] = v
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Settings:
		return m, m != nil
	case map[string]any:
		return m, m != nil
	default:
		return nil, false
	}
}

// Get returns the value at a dot path such as "xlsx.sheetName".
func (s Settings) Get(path string) (any, bool) {
	var cur any = map[string]any(s)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Namespace returns the block stored under id, or an empty block.
func (s Settings) Namespace(id string) Settings {
	if m, ok := asMap(s[id]); ok {
		return m
	}
	return Settings{}
}

// String returns the string at path, or def.
func (s Settings) String(path, def string) string {
	if v, ok := s.Get(path); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Bool returns the boolean at path, or def.
func (s Settings) Bool(path string, def bool) bool {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

// Int returns the integer at path, or def. Numbers decoded from YAML or
// JSON override files are accepted.
func (s Settings) Int(path string, def int) int {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Duration returns the duration at path, or def. Strings are parsed with
// [time.ParseDuration].
func (s Settings) Duration(path string, def time.Duration) time.Duration {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
	}
	return def
}

// Strings returns the string list at path, or def.
func (s Settings) Strings(path string, def []string) []string {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			str, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, str)
		}
		return out
	}
	return def
}

// With returns a copy of s with the value at path replaced. Only the maps
// along path are copied; s itself is left untouched.
func (s Settings) With(path string, value any) Settings {
	return withPath(s, strings.Split(path, "."), value)
}

func withPath(m map[string]any, segs []string, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	maps.Copy(out, m)
	if len(segs) == 1 {
		out[segs[0]] = value
		return out
	}
	child, _ := asMap(m[segs[0]])
	out[segs[0]] = withPath(child, segs[1:], value)
	return out
}

// LoadSettings reads an override file. YAML (.yaml, .yml) and JSON with
// comments (.json, .jsonc) are supported.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &out); err != nil {
			return nil, fmt.Errorf("parsing settings %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("settings file %s: unsupported extension %q", path, ext)
	}
	return out, nil
}
