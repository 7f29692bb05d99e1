package usecase

import (
	"context"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/shared/errors"
)

// MissingPolicy decides what GetMany and OnGetMany do with ids that have no document.
// The zero value fails.
type MissingPolicy[T any] struct {
	ignore bool
	fill   func(id string) T
}

// MissingFail reports the first missing id as an error.
func MissingFail[T any]() MissingPolicy[T] {
	return MissingPolicy[T]{}
}

// MissingIgnore drops missing ids from the result.
func MissingIgnore[T any]() MissingPolicy[T] {
	return MissingPolicy[T]{ignore: true}
}

// MissingDefault synthesises a document for every missing id.
func MissingDefault[T any](fill func(id string) T) MissingPolicy[T] {
	return MissingPolicy[T]{fill: fill}
}

func policyOf[T any](policies []MissingPolicy[T]) MissingPolicy[T] {
	if len(policies) == 0 {
		return MissingFail[T]()
	}
	return policies[0]
}

// Get reads one document. It returns nil when the document does not exist.
func Get[T any](ctx context.Context, c *Client, ref model.Ref[T]) (*model.Doc[T], error) {
	snap, err := c.driver.Get(ctx, ref.Path())
	if err != nil {
		return nil, c.wrapErr(ctx, err, "get", ref.Path())
	}
	if !snap.Exists {
		return nil, nil
	}
	doc, err := toDoc(c, ref, snap)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetMany reads the documents with the given ids, in order and keeping duplicates.
func GetMany[T any](ctx context.Context, c *Client, collection model.Collection[T], ids []string, onMissing ...MissingPolicy[T]) ([]model.Doc[T], error) {
	if len(ids) == 0 {
		return []model.Doc[T]{}, nil
	}
	paths := make([]string, len(ids))
	for i, id := range ids {
		paths[i] = collection.Ref(id).Path()
	}
	snaps, err := c.driver.GetAll(ctx, paths)
	if err != nil {
		return nil, c.wrapErr(ctx, err, "get many in", collection.Path)
	}

	policy := policyOf(onMissing)
	docs := make([]model.Doc[T], 0, len(ids))
	for i, snap := range snaps {
		ref := collection.Ref(ids[i])
		if snap.Exists {
			doc, err := toDoc(c, ref, snap)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}
		switch {
		case policy.ignore:
		case policy.fill != nil:
			docs = append(docs, model.NewDoc(ref, policy.fill(ids[i]), metaOf(snap)))
		default:
			return nil, errors.NewMissingDocumentError(ids[i])
		}
	}
	return docs, nil
}

// All reads every document of a collection or collection group.
func All[T any](ctx context.Context, c *Client, collection model.Queryable[T]) ([]model.Doc[T], error) {
	return Query(ctx, c, collection)
}

// Add stores data under a generated id.
func Add[T any](ctx context.Context, c *Client, collection model.Collection[T], data T) (model.Ref[T], error) {
	wire, err := c.encode(collection.Path, data, false)
	if err != nil {
		return model.Ref[T]{}, err
	}
	path, err := c.driver.Add(ctx, collection.Path, wire)
	if err != nil {
		return model.Ref[T]{}, c.wrapErr(ctx, err, "add to", collection.Path)
	}
	c.logger.Debug("Document added", "path", path)
	return collection.RefFor(path)
}

// Set overwrites the document.
func Set[T any](ctx context.Context, c *Client, ref model.Ref[T], data T) error {
	wire, err := c.encode(ref.Path(), data, false)
	if err != nil {
		return err
	}
	return c.wrapErr(ctx, c.driver.Set(ctx, ref.Path(), wire, false), "set", ref.Path())
}

// Upset merges data into the document, creating it when missing.
func Upset[T any](ctx context.Context, c *Client, ref model.Ref[T], data T) error {
	wire, err := c.encode(ref.Path(), data, true)
	if err != nil {
		return err
	}
	return c.wrapErr(ctx, c.driver.Set(ctx, ref.Path(), wire, true), "upset", ref.Path())
}

// UpsetData is Upset with a partial body that may carry sentinels.
func UpsetData[T any](ctx context.Context, c *Client, ref model.Ref[T], data model.Data) error {
	wire, err := c.encode(ref.Path(), data, true)
	if err != nil {
		return err
	}
	return c.wrapErr(ctx, c.driver.Set(ctx, ref.Path(), wire, true), "upset", ref.Path())
}

// Update changes the given fields of an existing document.
func Update[T any](ctx context.Context, c *Client, ref model.Ref[T], fields ...model.Field) error {
	updates, err := c.fieldUpdates(fields)
	if err != nil {
		return err
	}
	return c.wrapErr(ctx, c.driver.Update(ctx, ref.Path(), updates), "update", ref.Path())
}

// UpdateData is Update with a partial body. Keys are dotted field paths.
func UpdateData[T any](ctx context.Context, c *Client, ref model.Ref[T], data model.Data) error {
	updates, err := c.dataUpdates(data)
	if err != nil {
		return err
	}
	return c.wrapErr(ctx, c.driver.Update(ctx, ref.Path(), updates), "update", ref.Path())
}

// Remove deletes the document. Removing a missing document is not an error.
func Remove[T any](ctx context.Context, c *Client, ref model.Ref[T]) error {
	return c.wrapErr(ctx, c.driver.Delete(ctx, ref.Path()), "remove", ref.Path())
}
