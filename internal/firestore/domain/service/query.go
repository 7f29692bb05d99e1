package service

import (
	"slices"
	"strings"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/firestore"
)

// InSource reports whether the document at path belongs to the query source.
func InSource(path string, src model.Source) bool {
	collection, _, err := firestore.SplitDocumentPath(path)
	if err != nil {
		return false
	}
	if src.Group {
		return firestore.CollectionID(collection) == src.Path
	}
	return collection == src.Path
}

// RunQuery evaluates a query over candidate documents with Firestore semantics. Candidates
// outside the source are dropped, so drivers may pass a superset.
func RunQuery(docs []*repository.Snapshot, q repository.QuerySpec) []*repository.Snapshot {
	orders := EffectiveOrders(q)

	var out []*repository.Snapshot
	for _, doc := range docs {
		if !doc.Exists || !InSource(doc.Path, q.Source) {
			continue
		}
		if !matchesAll(doc, q) || !hasOrderFields(doc, orders) {
			continue
		}
		out = append(out, doc)
	}

	slices.SortStableFunc(out, func(a, b *repository.Snapshot) int {
		return compareByOrders(a, b, orders)
	})

	for _, c := range q.Cursors {
		out = slices.DeleteFunc(out, func(doc *repository.Snapshot) bool {
			return !withinCursor(doc, c, orders, q.Source)
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		if q.LimitToLast {
			out = out[len(out)-q.Limit:]
		} else {
			out = out[:q.Limit]
		}
	}
	return out
}

// EffectiveOrders returns the explicit orders, preceded by the first inequality field when
// nothing is ordered, and always ending with the document id.
func EffectiveOrders(q repository.QuerySpec) []repository.Order {
	orders := slices.Clone(q.Orders)
	if len(orders) == 0 {
		for _, f := range q.Filters {
			if isInequality(f.Op) && !f.Field.IsDocID() {
				orders = append(orders, repository.Order{Field: f.Field, Direction: model.Asc})
				break
			}
		}
	}
	last := model.Asc
	if len(orders) > 0 {
		last = orders[len(orders)-1].Direction
	}
	for _, o := range orders {
		if o.Field.IsDocID() {
			return orders
		}
	}
	return append(orders, repository.Order{Field: model.DocID, Direction: last})
}

func isInequality(op model.Operator) bool {
	switch op {
	case model.OperatorLessThan, model.OperatorLessThanOrEqual, model.OperatorGreaterThan,
		model.OperatorGreaterThanOrEqual, model.OperatorNotEqual, model.OperatorNotIn:
		return true
	}
	return false
}

func matchesAll(doc *repository.Snapshot, q repository.QuerySpec) bool {
	for _, f := range q.Filters {
		if !MatchFilter(doc, f, q.Source) {
			return false
		}
	}
	return true
}

func hasOrderFields(doc *repository.Snapshot, orders []repository.Order) bool {
	for _, o := range orders {
		if o.Field.IsDocID() {
			continue
		}
		if _, ok := ValueAt(doc.Data, o.Field); !ok {
			return false
		}
	}
	return true
}

// fieldValue reads a field, resolving the document id pseudo field to a reference.
func fieldValue(doc *repository.Snapshot, field model.FieldPath) (any, bool) {
	if field.IsDocID() {
		return repository.RefValue{Path: doc.Path}, true
	}
	return ValueAt(doc.Data, field)
}

// docIDOperand turns an id or path given to a document id filter or cursor into a
// reference comparable with fieldValue.
func docIDOperand(v any, src model.Source) any {
	switch t := v.(type) {
	case string:
		if strings.Contains(t, "/") || src.Group {
			return repository.RefValue{Path: firestore.Relative(t)}
		}
		return repository.RefValue{Path: src.Path + "/" + t}
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = docIDOperand(item, src)
		}
		return out
	}
	return v
}

// MatchFilter evaluates one where clause against a document.
func MatchFilter(doc *repository.Snapshot, f repository.Filter, src model.Source) bool {
	value, exists := fieldValue(doc, f.Field)
	operand := f.Value
	if f.Field.IsDocID() {
		operand = docIDOperand(operand, src)
	}
	if !exists {
		return false
	}

	switch f.Op {
	case model.OperatorEqual:
		return equalValues(value, operand)
	case model.OperatorNotEqual:
		return value != nil && !equalValues(value, operand)
	case model.OperatorLessThan, model.OperatorLessThanOrEqual,
		model.OperatorGreaterThan, model.OperatorGreaterThanOrEqual:
		if TypeOrder(value) != TypeOrder(operand) {
			return false
		}
		c := CompareValues(value, operand)
		switch f.Op {
		case model.OperatorLessThan:
			return c < 0
		case model.OperatorLessThanOrEqual:
			return c <= 0
		case model.OperatorGreaterThan:
			return c > 0
		default:
			return c >= 0
		}
	case model.OperatorArrayContains:
		list, ok := value.([]any)
		return ok && containsValue(list, operand)
	case model.OperatorArrayContainsAny:
		list, ok := value.([]any)
		candidates, isList := operand.([]any)
		if !ok || !isList {
			return false
		}
		for _, c := range candidates {
			if containsValue(list, c) {
				return true
			}
		}
		return false
	case model.OperatorIn:
		candidates, ok := operand.([]any)
		return ok && containsValue(candidates, value)
	case model.OperatorNotIn:
		candidates, ok := operand.([]any)
		return ok && value != nil && !containsValue(candidates, value)
	}
	return false
}

func equalValues(a, b any) bool {
	return TypeOrder(a) == TypeOrder(b) && CompareValues(a, b) == 0
}

func compareByOrders(a, b *repository.Snapshot, orders []repository.Order) int {
	for _, o := range orders {
		av, _ := fieldValue(a, o.Field)
		bv, _ := fieldValue(b, o.Field)
		c := CompareValues(av, bv)
		if o.Direction == model.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// withinCursor compares the document with the cursor values over the leading orders.
func withinCursor(doc *repository.Snapshot, c repository.CursorSpec, orders []repository.Order, src model.Source) bool {
	cmp := 0
	for i, v := range c.Values {
		if i >= len(orders) {
			break
		}
		o := orders[i]
		value, _ := fieldValue(doc, o.Field)
		if o.Field.IsDocID() {
			v = docIDOperand(v, src)
		}
		cmp = CompareValues(value, v)
		if o.Direction == model.Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			break
		}
	}
	switch c.Method {
	case model.CursorStartAt:
		return cmp >= 0
	case model.CursorStartAfter:
		return cmp > 0
	case model.CursorEndAt:
		return cmp <= 0
	case model.CursorEndBefore:
		return cmp < 0
	}
	return true
}
