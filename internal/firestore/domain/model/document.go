package model

import (
	"time"

	"firestore-typed/internal/shared/firestore"
)

// Reference is satisfied by every Ref[T]. It lets untyped APIs (batches, transactions,
// the marshaller) accept references of any model.
type Reference interface {
	Path() string
	isRef()
}

// PathAssigner is implemented by *Ref[T] so decoders can fill typed reference fields.
type PathAssigner interface {
	AssignPath(path string) error
}

// Ref points at a document slot, whether or not the document exists.
type Ref[T any] struct {
	Collection Collection[T] `json:"collection"`
	ID         string        `json:"id"`
}

// NewRef creates a reference to id inside collection.
func NewRef[T any](collection Collection[T], id string) Ref[T] {
	return Ref[T]{Collection: collection, ID: id}
}

// Path returns the slash separated document path.
func (r Ref[T]) Path() string {
	return r.Collection.Path + "/" + r.ID
}

func (r Ref[T]) isRef() {}

// AssignPath replaces the reference with the one described by path.
func (r *Ref[T]) AssignPath(path string) error {
	ref, err := PathToRef[T](path)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// PathToRef converts a document path, relative or fully qualified, into a reference.
func PathToRef[T any](path string) (Ref[T], error) {
	collectionPath, id, err := firestore.SplitDocumentPath(path)
	if err != nil {
		return Ref[T]{}, err
	}
	return Ref[T]{Collection: NewCollection[T](collectionPath), ID: id}, nil
}

// Cast retypes a reference. Wire data only carries untyped references.
func Cast[T any](ref Reference) Ref[T] {
	r, err := PathToRef[T](ref.Path())
	if err != nil {
		return Ref[T]{}
	}
	return r
}

// DocMeta carries snapshot metadata.
type DocMeta struct {
	FromCache        bool      `json:"fromCache"`
	HasPendingWrites bool      `json:"hasPendingWrites"`
	CreateTime       time.Time `json:"createTime,omitempty"`
	UpdateTime       time.Time `json:"updateTime,omitempty"`
	ReadTime         time.Time `json:"readTime,omitempty"`
}

// Doc is the result of a successful read.
type Doc[T any] struct {
	Ref  Ref[T]  `json:"ref"`
	Data T       `json:"data"`
	Meta DocMeta `json:"meta"`
}

// NewDoc assembles a document.
func NewDoc[T any](ref Ref[T], data T, meta DocMeta) Doc[T] {
	return Doc[T]{Ref: ref, Data: data, Meta: meta}
}

// DocID and DocData let a Doc be used as a query cursor.
func (d Doc[T]) DocID() string { return d.Ref.ID }
func (d Doc[T]) DocData() any  { return d.Data }

// DocValue is anything usable as a document cursor.
type DocValue interface {
	DocID() string
	DocData() any
}
