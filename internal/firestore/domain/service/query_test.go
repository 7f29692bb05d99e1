package service

import (
	"testing"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"

	"github.com/stretchr/testify/assert"
)

func users() []*repository.Snapshot {
	return []*repository.Snapshot{
		snap("users/a", map[string]any{"name": "Ann", "age": int64(30), "tags": []any{"admin", "dev"}}),
		snap("users/b", map[string]any{"name": "Bob", "age": int64(25), "tags": []any{"dev"}}),
		snap("users/c", map[string]any{"name": "Cid", "age": 41.5}),
		snap("users/d", map[string]any{"name": "Dee", "age": nil}),
		snap("users/e", map[string]any{"name": "Eve"}),
		snap("users/a/posts/p1", map[string]any{"title": "nested"}),
		snap("teams/t1/posts/p2", map[string]any{"title": "group"}),
	}
}

func paths(docs []*repository.Snapshot) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Path
	}
	return out
}

func where(field string, op model.Operator, value any) repository.Filter {
	return repository.Filter{Field: model.ParseFieldPath(field), Op: op, Value: value}
}

func order(field string, dir model.Direction) repository.Order {
	return repository.Order{Field: model.ParseFieldPath(field), Direction: dir}
}

var usersSource = model.Source{Path: "users"}

func TestRunQueryAll(t *testing.T) {
	got := RunQuery(users(), repository.QuerySpec{Source: usersSource})
	assert.Equal(t, []string{"users/a", "users/b", "users/c", "users/d", "users/e"}, paths(got))
}

func TestRunQueryGroup(t *testing.T) {
	got := RunQuery(users(), repository.QuerySpec{Source: model.Source{Path: "posts", Group: true}})
	assert.Equal(t, []string{"teams/t1/posts/p2", "users/a/posts/p1"}, paths(got))
}

func TestRunQueryFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter repository.Filter
		want   []string
	}{
		{"equal", where("name", model.OperatorEqual, "Bob"), []string{"users/b"}},
		{"not equal skips null and missing", where("age", model.OperatorNotEqual, int64(30)), []string{"users/b", "users/c"}},
		{"greater than orders by field", where("age", model.OperatorGreaterThan, int64(26)), []string{"users/a", "users/c"}},
		{"less or equal", where("age", model.OperatorLessThanOrEqual, int64(30)), []string{"users/b", "users/a"}},
		{"array contains", where("tags", model.OperatorArrayContains, "admin"), []string{"users/a"}},
		{"array contains any", where("tags", model.OperatorArrayContainsAny, []any{"dev", "x"}), []string{"users/a", "users/b"}},
		{"in", where("name", model.OperatorIn, []any{"Ann", "Eve"}), []string{"users/a", "users/e"}},
		{"not in", where("age", model.OperatorNotIn, []any{int64(25)}), []string{"users/a", "users/c"}},
		{"equal null", where("age", model.OperatorEqual, nil), []string{"users/d"}},
		{"doc id", repository.Filter{Field: model.DocID, Op: model.OperatorEqual, Value: "c"}, []string{"users/c"}},
		{"doc id in", repository.Filter{Field: model.DocID, Op: model.OperatorIn, Value: []any{"a", "e"}}, []string{"users/a", "users/e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RunQuery(users(), repository.QuerySpec{Source: usersSource, Filters: []repository.Filter{tt.filter}})
			assert.Equal(t, tt.want, paths(got))
		})
	}
}

func TestRunQueryOrderAndLimit(t *testing.T) {
	q := repository.QuerySpec{
		Source: usersSource,
		Orders: []repository.Order{order("age", model.Desc)},
	}
	assert.Equal(t, []string{"users/c", "users/a", "users/b", "users/d"}, paths(RunQuery(users(), q)))

	q.Limit = 2
	assert.Equal(t, []string{"users/c", "users/a"}, paths(RunQuery(users(), q)))

	q.LimitToLast = true
	assert.Equal(t, []string{"users/b", "users/d"}, paths(RunQuery(users(), q)))
}

func TestRunQueryCursors(t *testing.T) {
	base := repository.QuerySpec{
		Source: usersSource,
		Orders: []repository.Order{order("age", model.Asc)},
	}

	q := base
	q.Cursors = []repository.CursorSpec{{Method: model.CursorStartAfter, Values: []any{int64(25)}}}
	assert.Equal(t, []string{"users/a", "users/c"}, paths(RunQuery(users(), q)))

	q = base
	q.Cursors = []repository.CursorSpec{
		{Method: model.CursorStartAt, Values: []any{int64(25)}},
		{Method: model.CursorEndBefore, Values: []any{int64(41)}},
	}
	assert.Equal(t, []string{"users/b", "users/a"}, paths(RunQuery(users(), q)))

	byID := repository.QuerySpec{
		Source:  usersSource,
		Orders:  []repository.Order{{Field: model.DocID, Direction: model.Asc}},
		Cursors: []repository.CursorSpec{{Method: model.CursorEndAt, Values: []any{"b"}}},
	}
	assert.Equal(t, []string{"users/a", "users/b"}, paths(RunQuery(users(), byID)))
}

func TestEffectiveOrders(t *testing.T) {
	orders := EffectiveOrders(repository.QuerySpec{
		Filters: []repository.Filter{where("age", model.OperatorGreaterThan, int64(1))},
	})
	assert.Equal(t, []repository.Order{
		order("age", model.Asc),
		{Field: model.DocID, Direction: model.Asc},
	}, orders)

	orders = EffectiveOrders(repository.QuerySpec{Orders: []repository.Order{order("n", model.Desc)}})
	assert.Equal(t, model.Desc, orders[1].Direction)
}
