package fmtware

import (
	"bytes"
	"context"
	"encoding/json"
)

// JSONLPlugin writes one JSON document per record.
func JSONLPlugin() Plugin {
	return Plugin{
		ID:        JSONL,
		Defaults:  fileDefaults("Exported Data.jsonl"),
		Transform: transformJSONL,
	}
}

func transformJSONL(_ context.Context, call *Call) Result {
	items, ok := call.Content.([]any)
	if !ok {
		return Fail(errNotSequence(JSONL, call.Content))
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return Fail(err)
		}
	}
	return emit(call, JSONL, "application/x-ndjson", buf.Bytes())
}
