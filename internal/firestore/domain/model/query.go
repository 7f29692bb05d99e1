package model

// Operator is a where-clause comparison.
type Operator string

const (
	OperatorLessThan           Operator = "<"
	OperatorLessThanOrEqual    Operator = "<="
	OperatorEqual              Operator = "=="
	OperatorNotEqual           Operator = "!="
	OperatorGreaterThanOrEqual Operator = ">="
	OperatorGreaterThan        Operator = ">"
	OperatorArrayContains      Operator = "array-contains"
	OperatorArrayContainsAny   Operator = "array-contains-any"
	OperatorIn                 Operator = "in"
	OperatorNotIn              Operator = "not-in"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OperatorLessThan, OperatorLessThanOrEqual, OperatorEqual, OperatorNotEqual,
		OperatorGreaterThanOrEqual, OperatorGreaterThan, OperatorArrayContains,
		OperatorArrayContainsAny, OperatorIn, OperatorNotIn:
		return true
	}
	return false
}

// Direction is an order-by direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// CursorMethod is one of the four pagination cursors.
type CursorMethod string

const (
	CursorStartAt    CursorMethod = "startAt"
	CursorStartAfter CursorMethod = "startAfter"
	CursorEndAt      CursorMethod = "endAt"
	CursorEndBefore  CursorMethod = "endBefore"
)

// Cursor positions a query relative to its order clause. Value may be a Doc, in which case
// the value used is the document id or the document's value of the ordered field.
type Cursor struct {
	Method CursorMethod
	Value  any
}

func StartAt(value any) Cursor    { return Cursor{Method: CursorStartAt, Value: value} }
func StartAfter(value any) Cursor { return Cursor{Method: CursorStartAfter, Value: value} }
func EndAt(value any) Cursor      { return Cursor{Method: CursorEndAt, Value: value} }
func EndBefore(value any) Cursor  { return Cursor{Method: CursorEndBefore, Value: value} }

// Constraint is a where, order or limit clause.
type Constraint interface {
	constraint()
}

// WhereConstraint filters on a field.
type WhereConstraint struct {
	Field FieldPath
	Op    Operator
	Value any
}

// OrderConstraint orders by a field and optionally paginates.
type OrderConstraint struct {
	Field     FieldPath
	Direction Direction
	Cursors   []Cursor
}

// LimitConstraint caps the result size. ToLast keeps the last N instead of the first N.
type LimitConstraint struct {
	N      int
	ToLast bool
}

func (WhereConstraint) constraint() {}
func (OrderConstraint) constraint() {}
func (LimitConstraint) constraint() {}

// Where filters on a dotted field name.
func Where(field string, op Operator, value any) WhereConstraint {
	return WhereConstraint{Field: ParseFieldPath(field), Op: op, Value: value}
}

// WherePath filters on a field given as segments.
func WherePath(field FieldPath, op Operator, value any) WhereConstraint {
	return WhereConstraint{Field: field, Op: op, Value: value}
}

// WhereDocID filters on the document id.
func WhereDocID(op Operator, value any) WhereConstraint {
	return WhereConstraint{Field: DocID, Op: op, Value: value}
}

// Order orders by a dotted field name.
func Order(field string, dir Direction, cursors ...Cursor) OrderConstraint {
	return OrderConstraint{Field: ParseFieldPath(field), Direction: dir, Cursors: cursors}
}

// OrderPath orders by a field given as segments.
func OrderPath(field FieldPath, dir Direction, cursors ...Cursor) OrderConstraint {
	return OrderConstraint{Field: field, Direction: dir, Cursors: cursors}
}

// OrderByDocID orders by document id.
func OrderByDocID(dir Direction, cursors ...Cursor) OrderConstraint {
	return OrderConstraint{Field: DocID, Direction: dir, Cursors: cursors}
}

// Limit keeps the first n results.
func Limit(n int) LimitConstraint {
	return LimitConstraint{N: n}
}

// LimitToLast keeps the last n results of the ordered query.
func LimitToLast(n int) LimitConstraint {
	return LimitConstraint{N: n, ToLast: true}
}
