package legacy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringListShapes(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want []string
	}{
		{"missing key", Record{}, nil},
		{"nil record", nil, nil},
		{"any slice", Record{"sent_to": []any{"a", "b"}}, []string{"a", "b"}},
		{"string slice", Record{"sent_to": []string{"a"}}, []string{"a"}},
		{"mixed elements skipped", Record{"sent_to": []any{"a", 3.0, nil, "", "b"}}, []string{"a", "b"}},
		{"not a list", Record{"sent_to": "a"}, nil},
		{"number", Record{"sent_to": 7.0}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rec.stringList("sent_to"))
		})
	}
}

func TestSentFlagShapes(t *testing.T) {
	cases := []struct {
		name string
		val  any
		want bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"json number one", 1.0, true},
		{"json number zero", 0.0, false},
		{"string true", "true", true},
		{"string false", "false", false},
		{"string zero", "0", false},
		{"empty string", "", false},
		{"garbage type", []any{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Record{"sent": tc.val}.sentFlag())
		})
	}

	assert.False(t, Record{}.sentFlag())
	assert.False(t, Record(nil).sentFlag())
}

func TestErrorEntriesShapes(t *testing.T) {
	rec := Record{"errors": []any{
		map[string]any{"identifier": "id-1", "number": "+111", "code": 404.0},
		map[string]any{"number": "+222"},
		map[string]any{"code": 500.0},
		"not-a-map",
		nil,
	}}

	entries := rec.errorEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, errorEntry{Identifier: "id-1", Number: "+111"}, entries[0])
	assert.Equal(t, errorEntry{Number: "+222"}, entries[1])

	assert.Nil(t, Record{"errors": "oops"}.errorEntries())
	assert.Nil(t, Record{}.errorEntries())
}

func TestRecordFromJSON(t *testing.T) {
	// Records come out of a JSON column; make sure accessors handle the
	// shapes encoding/json actually produces.
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"recipients": ["+111", "+222"],
		"sent": 1,
		"errors": [{"number": "+111", "code": 413}]
	}`), &rec))

	assert.Equal(t, []string{"+111", "+222"}, rec.stringList("recipients"))
	assert.True(t, rec.sentFlag())
	require.Len(t, rec.errorEntries(), 1)
	assert.False(t, rec.Empty())
}

func TestRecordEmpty(t *testing.T) {
	assert.True(t, Record(nil).Empty())
	assert.True(t, Record{}.Empty())
	assert.True(t, Record{"unrelated": 1}.Empty())
	assert.False(t, Record{"sent": true}.Empty())
}
