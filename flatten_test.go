package fmtware_test

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/fmtware"
)

func mustRecord(t *testing.T, s string) fmtware.Record {
	t.Helper()
	var rec fmtware.Record
	require.NoError(t, json.Unmarshal([]byte(s), &rec))
	return rec
}

func TestFlatten(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		input string
		want  fmtware.Record
	}{
		"already flat": {
			input: `{"id":"u1","n":1}`,
			want:  fmtware.Record{{Key: "id", Value: "u1"}, {Key: "n", Value: json.Number("1")}},
		},
		"nested": {
			input: `{"id":"u1","address":{"city":"X","geo":{"lat":1}},"tail":true}`,
			want: fmtware.Record{
				{Key: "id", Value: "u1"},
				{Key: "address.city", Value: "X"},
				{Key: "address.geo.lat", Value: json.Number("1")},
				{Key: "tail", Value: true},
			},
		},
		"sequences are leaves": {
			input: `{"tags":["a","b"]}`,
			want:  fmtware.Record{{Key: "tags", Value: []any{"a", "b"}}},
		},
		"empty nested record is a leaf": {
			input: `{"meta":{}}`,
			want:  fmtware.Record{{Key: "meta", Value: fmtware.Record{}}},
		},
		"null is a leaf": {
			input: `{"a":{"b":null}}`,
			want:  fmtware.Record{{Key: "a.b", Value: nil}},
		},
		"empty key keeps its segment": {
			input: `{"":{"b":1},"b":2}`,
			want: fmtware.Record{
				{Key: ".b", Value: json.Number("1")},
				{Key: "b", Value: json.Number("2")},
			},
		},
		"empty key nested": {
			input: `{"a":{"":{"":true}}}`,
			want:  fmtware.Record{{Key: "a..", Value: true}},
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := fmtware.Flatten(mustRecord(t, tt.input))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Flatten() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnflattenRoundTrip(t *testing.T) {
	t.Parallel()
	inputs := []string{
		`{}`,
		`{"id":"u1"}`,
		`{"id":"u1","address":{"city":"X","zip":"1"},"name":{"first":"A","last":"B"}}`,
		`{"a":{"b":{"c":{"d":null}}},"e":false}`,
		`{"meta":{},"x":{"y":{}}}`,
		`{"":{"b":1},"b":2}`,
		`{"":"top","a":{"":{"c":1},"c":2}}`,
	}
	for _, input := range inputs {
		input := input
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			want := mustRecord(t, input)
			got, err := fmtware.Unflatten(fmtware.Flatten(want))
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Unflatten(Flatten()) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnflattenMalformed(t *testing.T) {
	t.Parallel()
	tests := map[string]fmtware.Record{
		"empty key twice": {{Key: ".a", Value: 1}, {Key: ".a", Value: 2}},
		"leaf then path":  {{Key: "a", Value: 1}, {Key: "a.b", Value: 2}},
		"path then leaf":  {{Key: "a.b", Value: 2}, {Key: "a", Value: 1}},
		"duplicate leafs": {{Key: "a.b", Value: 1}, {Key: "a.b", Value: 2}},
	}
	for name, flat := range tests {
		flat := flat
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := fmtware.Unflatten(flat)
			assert.ErrorIs(t, err, fmtware.ErrMalformedPath)
		})
	}
}

func TestUnflattenEmptySegments(t *testing.T) {
	t.Parallel()
	got, err := fmtware.Unflatten(fmtware.Record{
		{Key: "a..b", Value: 1},
		{Key: ".c", Value: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, fmtware.Record{
		{Key: "a", Value: fmtware.Record{{Key: "", Value: fmtware.Record{{Key: "b", Value: 1}}}}},
		{Key: "", Value: fmtware.Record{{Key: "c", Value: 2}}},
	}, got)
}

func TestFlattenWideRecord(t *testing.T) {
	t.Parallel()
	const width = 50000
	wide := make(fmtware.Record, 0, width)
	for i := 0; i < width; i++ {
		wide = append(wide, fmtware.Field{Key: "k" + strconv.Itoa(i), Value: fmtware.Record{{Key: "v", Value: i}}})
	}
	flat := fmtware.Flatten(wide)
	require.Len(t, flat, width)
	assert.Equal(t, "k49999.v", flat[width-1].Key)

	got, err := fmtware.Unflatten(flat)
	require.NoError(t, err)
	assert.Equal(t, wide, got)
}

func TestUnflattenKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()
	got, err := fmtware.Unflatten(fmtware.Record{
		{Key: "b.x", Value: 1},
		{Key: "a", Value: 2},
		{Key: "b.y", Value: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, fmtware.Record{
		{Key: "b", Value: fmtware.Record{{Key: "x", Value: 1}, {Key: "y", Value: 3}}},
		{Key: "a", Value: 2},
	}, got)
}
