package usecase

import (
	"context"
	"fmt"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/firestore/domain/service"
	"firestore-typed/internal/shared/errors"
)

// Query runs the constraints against a collection or collection group.
func Query[T any](ctx context.Context, c *Client, collection model.Queryable[T], constraints ...model.Constraint) ([]model.Doc[T], error) {
	docs, _, err := runQuery(ctx, c, collection, constraints)
	return docs, err
}

func runQuery[T any](ctx context.Context, c *Client, collection model.Queryable[T], constraints []model.Constraint) ([]model.Doc[T], []*repository.Snapshot, error) {
	spec, err := c.BuildQuery(collection.Source(), constraints...)
	if err != nil {
		return nil, nil, err
	}
	snaps, err := c.driver.Query(ctx, spec)
	if err != nil {
		return nil, nil, c.wrapErr(ctx, err, "query", spec.Source.Path)
	}
	docs, err := toDocs(c, collection, snaps)
	if err != nil {
		return nil, nil, err
	}
	return docs, snaps, nil
}

func toDocs[T any](c *Client, collection model.Queryable[T], snaps []*repository.Snapshot) ([]model.Doc[T], error) {
	docs := make([]model.Doc[T], 0, len(snaps))
	for _, snap := range snaps {
		doc, err := snapToDoc(c, collection, snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func snapToDoc[T any](c *Client, collection model.Queryable[T], snap *repository.Snapshot) (model.Doc[T], error) {
	ref, err := collection.RefFor(snap.Path)
	if err != nil {
		return model.Doc[T]{}, err
	}
	return toDoc(c, ref, snap)
}

// BuildQuery resolves constraints into a driver query. Values are converted to wire
// format and document cursors are replaced by the id or the ordered field's value.
func (c *Client) BuildQuery(source model.Source, constraints ...model.Constraint) (repository.QuerySpec, error) {
	spec := repository.QuerySpec{Source: source}

	type pending struct {
		method model.CursorMethod
		value  any
	}
	var cursors []pending
	paginate := true

	for _, constraint := range constraints {
		switch q := constraint.(type) {
		case model.WhereConstraint:
			filter, err := c.filter(q)
			if err != nil {
				return repository.QuerySpec{}, err
			}
			spec.Filters = append(spec.Filters, filter)

		case model.OrderConstraint:
			if err := q.Field.Validate(); err != nil {
				return repository.QuerySpec{}, errors.NewInvalidQueryError(err.Error())
			}
			dir := q.Direction
			if dir == "" {
				dir = model.Asc
			}
			if dir != model.Asc && dir != model.Desc {
				return repository.QuerySpec{}, errors.NewInvalidQueryError(fmt.Sprintf("unknown direction %q", dir))
			}
			spec.Orders = append(spec.Orders, repository.Order{Field: q.Field, Direction: dir})
			for _, cursor := range q.Cursors {
				value, ok, err := c.cursorValue(q.Field, cursor.Value)
				if err != nil {
					return repository.QuerySpec{}, err
				}
				if !ok {
					paginate = false
				}
				cursors = append(cursors, pending{method: cursor.Method, value: value})
			}

		case model.LimitConstraint:
			if q.N < 0 {
				return repository.QuerySpec{}, errors.NewInvalidQueryError("limit must not be negative")
			}
			spec.Limit = q.N
			spec.LimitToLast = q.ToLast

		case nil:
		default:
			return repository.QuerySpec{}, errors.NewInvalidQueryError(fmt.Sprintf("unsupported constraint %T", constraint))
		}
	}

	if spec.LimitToLast && len(spec.Orders) == 0 {
		return repository.QuerySpec{}, errors.NewInvalidQueryError("limitToLast requires at least one order clause")
	}

	if paginate {
		for _, cursor := range cursors {
			idx := -1
			for i := range spec.Cursors {
				if spec.Cursors[i].Method == cursor.method {
					idx = i
					break
				}
			}
			if idx < 0 {
				spec.Cursors = append(spec.Cursors, repository.CursorSpec{Method: cursor.method})
				idx = len(spec.Cursors) - 1
			}
			spec.Cursors[idx].Values = append(spec.Cursors[idx].Values, cursor.value)
		}
	}
	return spec, nil
}

func (c *Client) filter(q model.WhereConstraint) (repository.Filter, error) {
	if err := q.Field.Validate(); err != nil {
		return repository.Filter{}, errors.NewInvalidQueryError(err.Error())
	}
	if !q.Op.Valid() {
		return repository.Filter{}, errors.NewInvalidQueryError(fmt.Sprintf("unknown operator %q", q.Op))
	}
	value, err := c.marshaller.Unwrap(q.Value)
	if err != nil {
		return repository.Filter{}, err
	}
	switch q.Op {
	case model.OperatorIn, model.OperatorNotIn, model.OperatorArrayContainsAny:
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			return repository.Filter{}, errors.NewInvalidQueryError(fmt.Sprintf("%q requires a non-empty list", q.Op))
		}
	}
	return repository.Filter{Field: q.Field, Op: q.Op, Value: value}, nil
}

// cursorValue resolves a cursor to its wire value. ok is false when there is nothing to
// paginate on.
func (c *Client) cursorValue(field model.FieldPath, value any) (any, bool, error) {
	if value == nil {
		return nil, false, nil
	}
	if doc, isDoc := value.(model.DocValue); isDoc {
		if field.IsDocID() {
			return doc.DocID(), true, nil
		}
		data, err := c.marshaller.UnwrapDocument(doc.DocData())
		if err != nil {
			return nil, false, err
		}
		v, found := service.ValueAt(data, field)
		if !found || v == nil {
			return nil, false, nil
		}
		return v, true, nil
	}
	wire, err := c.marshaller.Unwrap(value)
	if err != nil {
		return nil, false, err
	}
	return wire, wire != nil, nil
}
