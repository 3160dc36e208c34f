package fmtware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Field is a single key/value entry of a [Record].
type Field struct {
	Key   string
	Value any
}

// Record is a JSON object that keeps its keys in insertion order.
// Values follow the JSON value model produced by [Decode]: Record, []any,
// string, json.Number, bool, or nil.
type Record []Field

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key, or appends it when key is new.
func (r *Record) Set(key string, value any) {
	for i, f := range *r {
		if f.Key == key {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Field{Key: key, Value: value})
}

// recordBuilder assembles a Record with constant-time key lookup.
type recordBuilder struct {
	rec   Record
	index map[string]int
}

func newRecordBuilder(size int) *recordBuilder {
	return &recordBuilder{rec: make(Record, 0, size), index: make(map[string]int, size)}
}

func (b *recordBuilder) get(key string) (any, bool) {
	i, ok := b.index[key]
	if !ok {
		return nil, false
	}
	return b.rec[i].Value, true
}

func (b *recordBuilder) set(key string, value any) {
	if i, ok := b.index[key]; ok {
		b.rec[i].Value = value
		return
	}
	b.index[key] = len(b.rec)
	b.rec = append(b.rec, Field{Key: key, Value: value})
}

// Keys returns the keys in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON writes the record as a JSON object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	rec, ok := v.(Record)
	if !ok {
		return fmt.Errorf("fmtware: cannot unmarshal %T into Record", v)
	}
	*r = rec
	return nil
}

// Decode parses a single JSON document into the ordered value model.
// Objects become [Record], arrays []any, and numbers json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("fmtware: trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		b := newRecordBuilder(0)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			b.set(key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return b.rec, nil
	case '[':
		list := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("fmtware: unexpected delimiter %q", delim)
	}
}

// Normalize converts any JSON-encodable Go value into the ordered value
// model. Struct fields keep their declaration order.
func Normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil, Record, string, json.Number, bool:
		return v, nil
	case json.RawMessage:
		return Decode(v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
