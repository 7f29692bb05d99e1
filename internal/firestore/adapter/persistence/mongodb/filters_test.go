package mongodb

import (
	"testing"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestSingleMongoFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter repository.Filter
		want   bson.M
	}{
		{
			name:   "equality",
			filter: repository.Filter{Field: model.Path("address", "city"), Op: model.OperatorEqual, Value: "Oslo"},
			want:   bson.M{"fields.address.city": "Oslo"},
		},
		{
			name:   "in",
			filter: repository.Filter{Field: model.Path("age"), Op: model.OperatorIn, Value: []any{int64(1), 2.5}},
			want:   bson.M{"fields.age": bson.M{"$in": []any{int64(1), 2.5}}},
		},
		{
			name:   "range",
			filter: repository.Filter{Field: model.Path("age"), Op: model.OperatorGreaterThanOrEqual, Value: int64(18)},
			want:   bson.M{"fields.age": bson.M{"$gte": int64(18)}},
		},
		{
			name:   "array contains any",
			filter: repository.Filter{Field: model.Path("tags"), Op: model.OperatorArrayContainsAny, Value: []any{"a", "b"}},
			want:   bson.M{"fields.tags": bson.M{"$in": []any{"a", "b"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := singleMongoFilter(tt.filter)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSingleMongoFilter_NotPushedDown(t *testing.T) {
	filters := []repository.Filter{
		{Field: model.DocID, Op: model.OperatorEqual, Value: "a"},
		{Field: model.Path("a.b"), Op: model.OperatorEqual, Value: "x"},
		{Field: model.Path("$where"), Op: model.OperatorEqual, Value: "x"},
		{Field: model.Path("n"), Op: model.OperatorNotEqual, Value: int64(1)},
		{Field: model.Path("n"), Op: model.OperatorNotIn, Value: []any{int64(1)}},
		{Field: model.Path("m"), Op: model.OperatorEqual, Value: map[string]any{"k": "v"}},
		{Field: model.Path("r"), Op: model.OperatorEqual, Value: repository.RefValue{Path: "a/b"}},
		{Field: model.Path("t"), Op: model.OperatorLessThan, Value: time.Now()},
		{Field: model.Path("b"), Op: model.OperatorGreaterThan, Value: true},
		{Field: model.Path("l"), Op: model.OperatorIn, Value: []any{"a", []any{"b"}}},
	}
	for _, f := range filters {
		_, ok := singleMongoFilter(f)
		assert.False(t, ok, "%v %s %v", f.Field, f.Op, f.Value)
	}
}

func TestBuildMongoFilter(t *testing.T) {
	q := repository.QuerySpec{Source: model.Source{Path: "users"}}
	assert.Equal(t, bson.M{"collectionPath": "users"}, buildMongoFilter(q))

	q.Filters = []repository.Filter{
		{Field: model.Path("n"), Op: model.OperatorNotEqual, Value: int64(1)},
		{Field: model.Path("name"), Op: model.OperatorEqual, Value: "Ann"},
	}
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"collectionPath": "users"},
		bson.M{"fields.name": "Ann"},
	}}, buildMongoFilter(q))
}

func TestDecodeValue(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := primitive.M{
		"ref":    primitive.M{refKey: "users/a"},
		"notRef": primitive.M{refKey: "users/a", "other": int32(1)},
		"doc":    primitive.D{{Key: "n", Value: int32(7)}},
		"list":   primitive.A{primitive.NewDateTimeFromTime(when), primitive.Binary{Data: []byte("x")}},
	}
	assert.Equal(t, map[string]any{
		"ref":    repository.RefValue{Path: "users/a"},
		"notRef": map[string]any{refKey: "users/a", "other": int64(1)},
		"doc":    map[string]any{"n": int64(7)},
		"list":   []any{when, []byte("x")},
	}, decodeFields(raw))
}
