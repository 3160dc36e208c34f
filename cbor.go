package fmtware

import (
	"context"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses Core Deterministic Encoding (RFC 8949 §4.2). Map keys
// are sorted, so record field order is not kept.
var cborEncMode cbor.EncMode

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("fmtware: CBOR encoder initialization failed: " + err.Error())
	}
}

// CBORPlugin writes the shaped sequence as a CBOR array.
func CBORPlugin() Plugin {
	return Plugin{
		ID:        CBOR,
		Defaults:  fileDefaults("Exported Data.cbor"),
		Transform: transformCBOR,
	}
}

func transformCBOR(_ context.Context, call *Call) Result {
	data, err := cborEncMode.Marshal(plainValue(call.Content))
	if err != nil {
		return Fail(err)
	}
	return emit(call, CBOR, "application/cbor", data)
}
