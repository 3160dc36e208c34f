package fmtware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// UnpackFunc transforms the payload before it is coerced into a sequence.
// It may block; steps run one after another in the order given.
type UnpackFunc func(ctx context.Context, v any) (any, error)

// ShapeOptions controls [Shape].
type ShapeOptions struct {
	// Key is a dot path selecting a sub-value of the payload, e.g. "data"
	// or "result.items". Numeric segments index into sequences.
	Key string

	Unpack []UnpackFunc

	// ForceArray makes a Key that runs into a non-object value yield an
	// empty sequence instead of [ErrMissingKey].
	ForceArray bool
}

// Shape turns a payload into the sequence of records tabular plugins
// consume: subkey extraction, then the unpack chain, then array coercion.
//
// A Key that is absent yields an empty sequence. A Key whose path crosses
// a scalar fails with [ErrMissingKey] unless ForceArray is set.
func Shape(ctx context.Context, payload any, opts ShapeOptions) ([]any, error) {
	content := payload
	if opts.Key != "" {
		v, err := lookupPath(content, opts.Key)
		if err != nil {
			if opts.ForceArray {
				return []any{}, nil
			}
			return nil, err
		}
		content = v
	}
	if len(opts.Unpack) > 0 {
		for i, fn := range opts.Unpack {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			next, err := fn(ctx, content)
			if err != nil {
				return nil, fmt.Errorf("unpack step %d: %w", i, err)
			}
			content = next
		}
		normalized, err := Normalize(content)
		if err != nil {
			return nil, fmt.Errorf("%w: unpacked content: %v", ErrUnsuitableContent, err)
		}
		content = normalized
	}
	return coerce(content), nil
}

func coerce(v any) []any {
	switch v := v.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	default:
		return []any{v}
	}
}

func lookupPath(v any, path string) (any, error) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case Record:
			next, ok := node.Get(seg)
			if !ok {
				return []any{}, nil
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: segment %q is not an index", ErrMissingKey, path, seg)
			}
			if i < 0 || i >= len(node) {
				return []any{}, nil
			}
			cur = node[i]
		case nil:
			return []any{}, nil
		default:
			return nil, fmt.Errorf("%w: %q: segment %q reached %T", ErrMissingKey, path, seg, cur)
		}
	}
	return cur, nil
}
