package fmtware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// YAMLPlugin writes the shaped sequence as a YAML document. Record key
// order is preserved.
func YAMLPlugin() Plugin {
	defaults := fileDefaults("Exported Data.yaml")
	defaults["download"] = false
	defaults["indent"] = 2
	return Plugin{
		ID:        YAML,
		Defaults:  defaults,
		Transform: transformYAML,
	}
}

func transformYAML(_ context.Context, call *Call) Result {
	indent := call.Settings.Int(YAML+".indent", 2)
	if indent < 1 {
		return Fail(fmt.Errorf("yaml: indent must be positive, got %d", indent))
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	if err := enc.Encode(yamlNode(call.Content)); err != nil {
		return Fail(err)
	}
	if err := enc.Close(); err != nil {
		return Fail(err)
	}
	return emit(call, YAML, "application/yaml; charset=utf-8", buf.Bytes())
}

// MarshalYAML encodes the record as a mapping in field order.
func (r Record) MarshalYAML() (any, error) {
	return yamlNode(r), nil
}

func yamlNode(v any) *yaml.Node {
	switch v := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case Record:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, f := range v {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key},
				yamlNode(f.Value),
			)
		}
		return n
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v {
			n.Content = append(n.Content, yamlNode(item))
		}
		return n
	case json.Number:
		tag := "!!float"
		if _, err := v.Int64(); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.String()}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(v)}
		}
		return n
	}
}
