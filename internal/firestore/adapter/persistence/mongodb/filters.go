package mongodb

import (
	"strings"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
)

// buildMongoFilter narrows the candidates of a query on the server. It only ever
// returns a superset of the matching documents: clauses Mongo cannot evaluate with
// Firestore semantics are left out and every filter is checked again in memory.
func buildMongoFilter(q repository.QuerySpec) bson.M {
	clauses := []bson.M{sourceFilter(q.Source)}
	for _, f := range q.Filters {
		if clause, ok := singleMongoFilter(f); ok {
			clauses = append(clauses, clause)
		}
	}
	return mergeFiltersWithAnd(clauses)
}

func sourceFilter(src model.Source) bson.M {
	if src.Group {
		return bson.M{"collectionId": src.Path}
	}
	return bson.M{"collectionPath": src.Path}
}

func singleMongoFilter(f repository.Filter) (bson.M, bool) {
	field, ok := mongoFieldPath(f.Field)
	if !ok {
		return nil, false
	}
	switch f.Op {
	case model.OperatorEqual, model.OperatorArrayContains:
		// Against an array field a plain match also hits arrays holding the value.
		if !isScalar(f.Value) {
			return nil, false
		}
		return bson.M{field: f.Value}, true
	case model.OperatorIn, model.OperatorArrayContainsAny:
		list, ok := f.Value.([]any)
		if !ok || !allScalars(list) {
			return nil, false
		}
		return bson.M{field: bson.M{"$in": list}}, true
	case model.OperatorLessThan, model.OperatorLessThanOrEqual, model.OperatorGreaterThan, model.OperatorGreaterThanOrEqual:
		if !isRangeValue(f.Value) {
			return nil, false
		}
		return bson.M{field: bson.M{rangeOperators[f.Op]: f.Value}}, true
	}
	return nil, false
}

var rangeOperators = map[model.Operator]string{
	model.OperatorLessThan:           "$lt",
	model.OperatorLessThanOrEqual:    "$lte",
	model.OperatorGreaterThan:        "$gt",
	model.OperatorGreaterThanOrEqual: "$gte",
}

// mongoFieldPath maps a field path into the fields sub-document. Paths Mongo cannot
// address, like segments containing dots, are not pushed down.
func mongoFieldPath(path model.FieldPath) (string, bool) {
	if len(path) == 0 || path.IsDocID() {
		return "", false
	}
	for _, segment := range path {
		if segment == "" || strings.Contains(segment, ".") || strings.HasPrefix(segment, "$") {
			return "", false
		}
	}
	return "fields." + path.String(), true
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int64, float64:
		return true
	}
	return false
}

func allScalars(list []any) bool {
	for _, v := range list {
		if !isScalar(v) {
			return false
		}
	}
	return true
}

// isRangeValue limits range pushdown to types Mongo orders the way Firestore does.
func isRangeValue(v any) bool {
	switch v.(type) {
	case string, int64, float64:
		return true
	}
	return false
}

func mergeFiltersWithAnd(filters []bson.M) bson.M {
	switch len(filters) {
	case 0:
		return bson.M{}
	case 1:
		return filters[0]
	}
	and := make(bson.A, len(filters))
	for i, f := range filters {
		and[i] = f
	}
	return bson.M{"$and": and}
}
