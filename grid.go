package fmtware

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// grid is shaped content laid out as columns of flattened keys.
type grid struct {
	header []string
	rows   [][]any
}

// tabulate flattens every record and builds one column per key, in the
// order keys are first seen. Cells of keys a record lacks are nil.
func tabulate(content any) (*grid, error) {
	items, ok := content.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: want a sequence of records, got %T", ErrUnsuitableContent, content)
	}
	g := &grid{}
	index := map[string]int{}
	flat := make([]Record, len(items))
	for i, item := range items {
		rec, ok := item.(Record)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %T, not a record", ErrUnsuitableContent, i, item)
		}
		flat[i] = Flatten(rec)
		for _, f := range flat[i] {
			if _, seen := index[f.Key]; !seen {
				index[f.Key] = len(g.header)
				g.header = append(g.header, f.Key)
			}
		}
	}
	g.rows = make([][]any, len(flat))
	for i, rec := range flat {
		row := make([]any, len(g.header))
		for _, f := range rec {
			row[index[f.Key]] = f.Value
		}
		g.rows[i] = row
	}
	return g, nil
}

func (g *grid) textRows() [][]string {
	out := make([][]string, len(g.rows))
	for i, row := range g.rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = cellText(v)
		}
		out[i] = cells
	}
	return out
}

// aligns right-aligns columns whose non-empty cells are all numbers.
func (g *grid) aligns() []alignment {
	out := make([]alignment, len(g.header))
	for col := range g.header {
		numeric, seen := true, false
		for _, row := range g.rows {
			switch row[col].(type) {
			case nil:
			case json.Number:
				seen = true
			default:
				numeric = false
			}
		}
		if numeric && seen {
			out[col] = alignRight
		}
	}
	return out
}

// cellText renders a leaf for text formats. nil becomes an empty cell.
func cellText(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// plainValue converts the ordered value model into plain Go values:
// records become maps and numbers become int64 or float64.
func plainValue(v any) any {
	switch v := v.(type) {
	case Record:
		m := make(map[string]any, len(v))
		for _, f := range v {
			m[f.Key] = plainValue(f.Value)
		}
		return m
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	case json.Number:
		return plainNumber(v)
	default:
		return v
	}
}

func plainNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// alignment controls column text alignment.
type alignment int

const (
	alignLeft alignment = iota
	alignCenter
	alignRight
)

func errNotSequence(id string, content any) error {
	return fmt.Errorf("%w: format %q requires a sequence, got %T", ErrUnsuitableContent, id, content)
}
