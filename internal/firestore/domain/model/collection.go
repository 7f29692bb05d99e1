package model

import (
	"strings"

	"firestore-typed/internal/shared/errors"
	"firestore-typed/internal/shared/firestore"
)

// Source identifies what a query runs against: a single collection path, or every
// collection whose id equals Path when Group is set.
type Source struct {
	Path  string
	Group bool
}

// Queryable is implemented by Collection and CollectionGroup.
type Queryable[T any] interface {
	Source() Source
	// RefFor builds the typed reference of a document returned by a query.
	RefFor(documentPath string) (Ref[T], error)
}

// Collection identifies a location holding documents of type T. It is a plain value.
type Collection[T any] struct {
	Path string `json:"path"`
}

// NewCollection creates a collection for the given slash separated path.
func NewCollection[T any](path string) Collection[T] {
	return Collection[T]{Path: strings.Trim(path, "/")}
}

// ID returns the last segment of the collection path.
func (c Collection[T]) ID() string {
	return firestore.CollectionID(c.Path)
}

// Ref returns the reference of the document id inside the collection.
func (c Collection[T]) Ref(id string) Ref[T] {
	return Ref[T]{Collection: c, ID: id}
}

func (c Collection[T]) Source() Source {
	return Source{Path: c.Path}
}

func (c Collection[T]) RefFor(documentPath string) (Ref[T], error) {
	_, id, err := firestore.SplitDocumentPath(documentPath)
	if err != nil {
		return Ref[T]{}, err
	}
	return c.Ref(id), nil
}

// Validate checks that the path has an odd number of valid segments.
func (c Collection[T]) Validate() error {
	info, err := firestore.ParsePath(c.Path)
	if err != nil {
		return err
	}
	if !info.IsCollection {
		return errors.NewInvalidPathError(c.Path, "collection paths need an odd number of segments")
	}
	return nil
}

// CollectionGroup spans every collection whose last path segment is ID.
type CollectionGroup[T any] struct {
	ID string `json:"id"`
}

// NewGroup creates a collection group for id.
func NewGroup[T any](id string) CollectionGroup[T] {
	return CollectionGroup[T]{ID: id}
}

func (g CollectionGroup[T]) Source() Source {
	return Source{Path: g.ID, Group: true}
}

// RefFor rebuilds the reference from the full document path, since documents in a group
// live under different parents.
func (g CollectionGroup[T]) RefFor(documentPath string) (Ref[T], error) {
	return PathToRef[T](documentPath)
}

// Subcollection builds collections of T nested under documents of P.
type Subcollection[T, P any] struct {
	name   string
	depth  int
	parent func(ids []string) (Collection[P], error)
}

// NewSubcollection declares a subcollection called name under documents of parent.
func NewSubcollection[T, P any](name string, parent Collection[P]) Subcollection[T, P] {
	return Subcollection[T, P]{
		name:  name,
		depth: 1,
		parent: func(ids []string) (Collection[P], error) {
			return parent, nil
		},
	}
}

// NestSubcollection declares a subcollection under documents of another subcollection.
// Its OfID takes one more id than the parent's.
func NestSubcollection[T, P, G any](name string, parent Subcollection[P, G]) Subcollection[T, P] {
	return Subcollection[T, P]{
		name:  name,
		depth: parent.depth + 1,
		parent: func(ids []string) (Collection[P], error) {
			return parent.OfID(ids...)
		},
	}
}

// Name returns the subcollection id.
func (s Subcollection[T, P]) Name() string {
	return s.name
}

// Of returns the subcollection under the referenced parent document.
func (s Subcollection[T, P]) Of(parent Ref[P]) Collection[T] {
	return NewCollection[T](parent.Path() + "/" + s.name)
}

// OfID resolves the subcollection from the chain of ancestor ids, outermost first.
func (s Subcollection[T, P]) OfID(ids ...string) (Collection[T], error) {
	if len(ids) != s.depth {
		return Collection[T]{}, errors.NewInvalidPathError(s.name, "wrong number of parent ids")
	}
	parent, err := s.parent(ids[:len(ids)-1])
	if err != nil {
		return Collection[T]{}, err
	}
	return s.Of(parent.Ref(ids[len(ids)-1])), nil
}

// Group returns the collection group spanning every instance of this subcollection.
func (s Subcollection[T, P]) Group() CollectionGroup[T] {
	return NewGroup[T](s.name)
}
