package http

import (
	"fmt"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/usecase"
	"firestore-typed/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
)

// QueryRequest is the body of POST /v1/query. Collection is a collection path, or a
// collection id when Group is set.
type QueryRequest struct {
	Collection  string        `json:"collection"`
	Group       bool          `json:"group"`
	Where       []WhereClause `json:"where"`
	OrderBy     []OrderClause `json:"orderBy"`
	Limit       int           `json:"limit"`
	LimitToLast bool          `json:"limitToLast"`
}

// WhereClause filters on a dotted field path. "__name__" is the document id.
type WhereClause struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

type OrderClause struct {
	Field     string         `json:"field"`
	Direction string         `json:"direction"`
	Cursors   []CursorClause `json:"cursors"`
}

// CursorClause is one of startAt, startAfter, endAt, endBefore. A null value turns
// pagination off for the whole query.
type CursorClause struct {
	Method string `json:"method"`
	Value  any    `json:"value"`
}

// Constraints converts the request into query constraints.
func (r QueryRequest) Constraints() ([]model.Constraint, error) {
	var out []model.Constraint
	for _, w := range r.Where {
		op := model.Operator(w.Op)
		if !op.Valid() {
			return nil, errors.NewInvalidQueryError(fmt.Sprintf("unknown operator %q", w.Op))
		}
		value, err := fromJSON(w.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, model.WherePath(model.ParseFieldPath(w.Field), op, value))
	}
	for _, o := range r.OrderBy {
		cursors := make([]model.Cursor, 0, len(o.Cursors))
		for _, cc := range o.Cursors {
			value, err := fromJSON(cc.Value)
			if err != nil {
				return nil, err
			}
			method := model.CursorMethod(cc.Method)
			switch method {
			case model.CursorStartAt, model.CursorStartAfter, model.CursorEndAt, model.CursorEndBefore:
			default:
				return nil, errors.NewInvalidQueryError(fmt.Sprintf("unknown cursor %q", cc.Method))
			}
			cursors = append(cursors, model.Cursor{Method: method, Value: value})
		}
		out = append(out, model.OrderPath(model.ParseFieldPath(o.Field), model.Direction(o.Direction), cursors...))
	}
	if r.Limit > 0 {
		if r.LimitToLast {
			out = append(out, model.LimitToLast(r.Limit))
		} else {
			out = append(out, model.Limit(r.Limit))
		}
	}
	return out, nil
}

// queryable resolves the request target.
func (r QueryRequest) queryable() (model.Queryable[Document], error) {
	if r.Group {
		if r.Collection == "" {
			return nil, errors.NewInvalidQueryError("group queries need a collection id")
		}
		return model.NewGroup[Document](r.Collection), nil
	}
	collection, err := collectionOf(r.Collection)
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// RunQuery answers POST /v1/query.
func (g *Gateway) RunQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := decodeJSON(c.Body(), &req); err != nil {
		return g.fail(c, err)
	}
	target, err := req.queryable()
	if err != nil {
		return g.fail(c, err)
	}
	constraints, err := req.Constraints()
	if err != nil {
		return g.fail(c, err)
	}
	docs, err := usecase.Query(requestContext(c, "query", req.Collection), g.client, target, constraints...)
	if err != nil {
		return g.fail(c, err)
	}
	return c.JSON(fiber.Map{"documents": renderDocs(docs), "size": len(docs)})
}
