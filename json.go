package fmtware

import (
	"bytes"
	"context"
	"encoding/json"
)

// JSONPlugin is the default format. It hands the original payload back to
// the JSON emission path unless "json.indent" asks for indented output.
func JSONPlugin() Plugin {
	return Plugin{
		ID:  JSON,
		Raw: true,
		Defaults: Settings{
			"indent":   "",
			"passthru": false,
		},
		Transform: transformJSON,
	}
}

func transformJSON(_ context.Context, call *Call) Result {
	s := call.Settings
	indent := s.String("json.indent", "")
	if indent == "" && !s.Bool("json.passthru", false) {
		return PassThrough(call.Content)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", indent)
	if err := enc.Encode(call.Content); err != nil {
		return Fail(err)
	}
	return emit(call, JSON, jsonContentType, buf.Bytes())
}
