package http

import (
	"testing"
	"time"

	"firestore-typed/internal/firestore/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocument(t *testing.T) {
	doc, err := decodeDocument([]byte(`{
		"n": 3,
		"f": 1.5,
		"ref": {"$ref": "users/a"},
		"at": {"$time": "2024-05-01T10:00:00Z"},
		"inc": {"$increment": 2},
		"tags": {"$arrayUnion": ["x", 1]},
		"gone": {"$remove": true},
		"now": {"$serverDate": true},
		"nested": {"a": {"b": 1}, "c": 2}
	}`))
	require.NoError(t, err)

	assert.Equal(t, int64(3), doc["n"])
	assert.Equal(t, 1.5, doc["f"])
	ref, ok := doc["ref"].(model.Ref[any])
	require.True(t, ok)
	assert.Equal(t, "users/a", ref.Path())
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), doc["at"])
	assert.Equal(t, model.Increment(int64(2)), doc["inc"])
	assert.Equal(t, model.ArrayUnion("x", int64(1)), doc["tags"])
	assert.Equal(t, model.Remove(), doc["gone"])
	assert.Equal(t, model.ServerDate(), doc["now"])
	assert.Equal(t, map[string]any{"a": map[string]any{"b": int64(1)}, "c": int64(2)}, doc["nested"])
}

func TestDecodeDocument_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"not an object":   `[1]`,
		"null":            `null`,
		"bad ref":         `{"r": {"$ref": "users"}}`,
		"bad time":        `{"t": {"$time": "yesterday"}}`,
		"bad increment":   `{"i": {"$increment": "one"}}`,
		"bad array union": `{"a": {"$arrayUnion": 1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeDocument([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestToJSON(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ref, err := model.PathToRef[any]("users/a")
	require.NoError(t, err)

	out := toJSON(map[string]any{
		"ref":  ref,
		"at":   at,
		"list": []any{ref, "x"},
	})
	assert.Equal(t, map[string]any{
		"ref":  map[string]any{keyRef: "users/a"},
		"at":   map[string]any{keyTime: "2024-05-01T10:00:00Z"},
		"list": []any{map[string]any{keyRef: "users/a"}, "x"},
	}, out)
}
