package cloudfirestore

import (
	"fmt"
	"strings"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"
	fspath "firestore-typed/internal/shared/firestore"

	"cloud.google.com/go/firestore"
)

// buildQuery translates a resolved query into an SDK query.
func (d *Driver) buildQuery(q repository.QuerySpec) (firestore.Query, error) {
	var query firestore.Query
	if q.Source.Group {
		query = d.client.CollectionGroup(q.Source.Path).Query
	} else {
		if !fspath.IsCollectionPath(q.Source.Path) {
			return firestore.Query{}, errors.NewInvalidPathError(q.Source.Path, "expected a collection path")
		}
		query = d.client.Collection(fspath.Relative(q.Source.Path)).Query
	}

	for _, f := range q.Filters {
		if f.Field.IsDocID() {
			value, err := d.docIDOperand(f.Value, q.Source)
			if err != nil {
				return firestore.Query{}, err
			}
			query = query.Where(firestore.DocumentID, string(f.Op), value)
			continue
		}
		query = query.WherePath(firestore.FieldPath(f.Field), string(f.Op), f.Value)
	}

	for _, o := range q.Orders {
		dir := firestore.Asc
		if o.Direction == model.Desc {
			dir = firestore.Desc
		}
		if o.Field.IsDocID() {
			query = query.OrderBy(firestore.DocumentID, dir)
			continue
		}
		query = query.OrderByPath(firestore.FieldPath(o.Field), dir)
	}

	for _, c := range q.Cursors {
		values := c.Values
		switch c.Method {
		case model.CursorStartAt:
			query = query.StartAt(values...)
		case model.CursorStartAfter:
			query = query.StartAfter(values...)
		case model.CursorEndAt:
			query = query.EndAt(values...)
		case model.CursorEndBefore:
			query = query.EndBefore(values...)
		default:
			return firestore.Query{}, errors.NewInvalidQueryError(fmt.Sprintf("unknown cursor %q", c.Method))
		}
	}

	if q.Limit > 0 {
		if q.LimitToLast {
			query = query.LimitToLast(q.Limit)
		} else {
			query = query.Limit(q.Limit)
		}
	}
	return query, nil
}

// docIDOperand turns document id operands into references. Plain ids are resolved
// against the queried collection; group queries need full paths.
func (d *Driver) docIDOperand(v any, src model.Source) (any, error) {
	switch x := v.(type) {
	case string:
		return d.docIDRef(x, src)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			ref, err := d.docIDOperand(item, src)
			if err != nil {
				return nil, err
			}
			out[i] = ref
		}
		return out, nil
	}
	return v, nil
}

func (d *Driver) docIDRef(id string, src model.Source) (*firestore.DocumentRef, error) {
	path := fspath.Relative(id)
	if !strings.Contains(path, "/") {
		if src.Group {
			return nil, errors.NewInvalidQueryError("document id filters on a collection group need full document paths")
		}
		path = fspath.Relative(src.Path) + "/" + path
	}
	ref := d.client.Doc(path)
	if ref == nil {
		return nil, errors.NewInvalidQueryError(fmt.Sprintf("%q is not a document path", id))
	}
	return ref, nil
}
