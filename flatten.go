package fmtware

import (
	"fmt"
	"strings"
)

// PathSeparator joins nested keys in a flat record.
const PathSeparator = "."

// Flatten collapses a nested record into a single level keyed by dot paths.
// Traversal is depth-first in key order. Sequences and scalars are leaves;
// an empty nested record is kept as a leaf so it survives [Unflatten].
// An empty key still contributes a segment, so {"":{"b":1}} flattens to
// ".b".
func Flatten(rec Record) Record {
	b := newRecordBuilder(len(rec))
	flattenInto(b, nil, rec)
	return b.rec
}

func flattenInto(b *recordBuilder, path []string, rec Record) {
	for _, f := range rec {
		segs := append(path[:len(path):len(path)], f.Key)
		if nested, ok := f.Value.(Record); ok && len(nested) > 0 {
			flattenInto(b, segs, nested)
			continue
		}
		b.set(strings.Join(segs, PathSeparator), f.Value)
	}
}

// Unflatten expands dot-path keys back into nested records. Keys without a
// separator are copied as they are; an empty segment names an empty key.
// Two keys that need different container types at the same path fail with
// [ErrMalformedPath].
//
// For any record x without sequence values and without literal separators
// in its keys, Unflatten(Flatten(x)) is structurally equal to x.
func Unflatten(flat Record) (Record, error) {
	root := newRecordBuilder(len(flat))
	for _, f := range flat {
		segs := strings.Split(f.Key, PathSeparator)
		if err := setPath(root, segs, f.Value); err != nil {
			return nil, fmt.Errorf("%w: %q conflicts with an existing path", err, f.Key)
		}
	}
	return buildTree(root), nil
}

// setPath stores value under segs. Intermediate records are held as
// builders until [buildTree] converts them.
func setPath(b *recordBuilder, segs []string, value any) error {
	head := segs[0]
	existing, exists := b.get(head)
	if len(segs) == 1 {
		if exists {
			return ErrMalformedPath
		}
		b.set(head, value)
		return nil
	}
	var child *recordBuilder
	switch c := existing.(type) {
	case *recordBuilder:
		child = c
	case Record:
		child = newRecordBuilder(len(c))
		for _, f := range c {
			child.set(f.Key, f.Value)
		}
		b.set(head, child)
	default:
		if exists {
			return ErrMalformedPath
		}
		child = newRecordBuilder(0)
		b.set(head, child)
	}
	return setPath(child, segs[1:], value)
}

func buildTree(b *recordBuilder) Record {
	for i, f := range b.rec {
		if child, ok := f.Value.(*recordBuilder); ok {
			b.rec[i].Value = buildTree(child)
		}
	}
	return b.rec
}
