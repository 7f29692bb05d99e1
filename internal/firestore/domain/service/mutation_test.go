package service

import (
	"testing"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func transform(v model.UpdateValue) repository.Transform {
	return repository.Transform{Kind: v.Kind, Number: v.Number, Values: v.Values}
}

func TestApplySetOverwrites(t *testing.T) {
	existing := map[string]any{"a": int64(1), "b": "keep?"}
	got := ApplySet(existing, map[string]any{
		"a":     transform(model.Increment(2)),
		"at":    transform(model.ServerDate()),
		"gone":  transform(model.Remove()),
		"union": transform(model.ArrayUnion("x")),
	}, false, now)

	assert.Equal(t, map[string]any{
		"a":     int64(2),
		"at":    now,
		"union": []any{"x"},
	}, got)
	assert.Equal(t, int64(1), existing["a"], "existing document must not be mutated")
}

func TestApplySetMerge(t *testing.T) {
	existing := map[string]any{
		"name":    "Sasha",
		"count":   int64(1),
		"address": map[string]any{"city": "London", "zip": "E1"},
		"tags":    []any{"a", "b"},
	}
	got := ApplySet(existing, map[string]any{
		"count":   transform(model.Increment(1.5)),
		"address": map[string]any{"city": "Paris"},
		"tags":    transform(model.ArrayRemove("a")),
		"name":    transform(model.Remove()),
	}, true, now)

	assert.Equal(t, map[string]any{
		"count":   2.5,
		"address": map[string]any{"city": "Paris", "zip": "E1"},
		"tags":    []any{"b"},
	}, got)
}

func TestApplyUpdates(t *testing.T) {
	existing := map[string]any{
		"address": map[string]any{"city": "London", "zip": "E1"},
		"list":    []any{int64(1)},
	}
	got := ApplyUpdates(existing, []repository.FieldUpdate{
		{Path: model.Path("address", "city"), Value: "Paris"},
		{Path: model.Path("address", "zip"), Value: transform(model.Remove())},
		{Path: model.Path("profile", "visits"), Value: transform(model.Increment(1))},
		{Path: model.Path("list"), Value: transform(model.ArrayUnion(int64(1), int64(2)))},
		{Path: model.Path("missing", "field"), Value: transform(model.Remove())},
		{Path: model.Path("obj"), Value: map[string]any{"at": transform(model.ServerDate())}},
	}, now)

	assert.Equal(t, map[string]any{
		"address": map[string]any{"city": "Paris"},
		"profile": map[string]any{"visits": int64(1)},
		"list":    []any{int64(1), int64(2)},
		"obj":     map[string]any{"at": now},
	}, got)
}

func TestApplyTransformIncrementOnNonNumber(t *testing.T) {
	v, remove := ApplyTransform("text", true, transform(model.Increment(3)), now)
	assert.False(t, remove)
	assert.Equal(t, int64(3), v)
}

func TestArrayUnionTreatsIntAndFloatAsEqual(t *testing.T) {
	v, _ := ApplyTransform([]any{int64(1)}, true, transform(model.ArrayUnion(1.0)), now)
	assert.Equal(t, []any{int64(1)}, v)
}

func TestCompareValues(t *testing.T) {
	ordered := []any{
		nil,
		false,
		true,
		int64(-1),
		0.5,
		int64(2),
		now,
		"a",
		"b",
		[]byte("a"),
		repository.RefValue{Path: "a/1"},
		repository.RefValue{Path: "a/1/b/1"},
		[]any{int64(1)},
		[]any{int64(1), int64(2)},
		map[string]any{"a": int64(1)},
	}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Equal(t, -1, CompareValues(ordered[i], ordered[i+1]), "%v < %v", ordered[i], ordered[i+1])
		assert.Equal(t, 1, CompareValues(ordered[i+1], ordered[i]), "%v > %v", ordered[i+1], ordered[i])
	}
	assert.Equal(t, 0, CompareValues(int64(1), 1.0))
}

func TestValueAt(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": "c"}}

	v, ok := ValueAt(doc, []string{"a", "b"})
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	_, ok = ValueAt(doc, []string{"a", "x"})
	assert.False(t, ok)

	_, ok = ValueAt(doc, []string{"a", "b", "c"})
	assert.False(t, ok)
}
