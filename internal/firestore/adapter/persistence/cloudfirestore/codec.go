package cloudfirestore

import (
	"fmt"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"
	fspath "firestore-typed/internal/shared/firestore"

	"cloud.google.com/go/firestore"
)

// codec produces the SDK's own reference and sentinel values so writes can be handed
// to the client untouched.
type codec struct {
	client *firestore.Client
}

var _ repository.Codec = codec{}

func (c codec) EncodeRef(path string) (any, error) {
	if !fspath.IsDocumentPath(path) {
		return nil, errors.NewInvalidPathError(path, "reference must point at a document")
	}
	ref := c.client.Doc(fspath.Relative(path))
	if ref == nil {
		return nil, errors.NewInvalidPathError(path, "reference must point at a document")
	}
	return ref, nil
}

func (codec) EncodeTime(t time.Time) any { return t }

func (codec) EncodeTransform(t repository.Transform) (any, error) {
	switch t.Kind {
	case model.KindRemove:
		return firestore.Delete, nil
	case model.KindServerDate:
		return firestore.ServerTimestamp, nil
	case model.KindIncrement:
		return firestore.Increment(t.Number), nil
	case model.KindArrayUnion:
		return firestore.ArrayUnion(t.Values...), nil
	case model.KindArrayRemove:
		return firestore.ArrayRemove(t.Values...), nil
	}
	return nil, errors.NewUnsupportedValueError("", fmt.Sprintf("transform %q", t.Kind))
}

func (codec) DecodeRef(v any) (string, bool) {
	ref, ok := v.(*firestore.DocumentRef)
	if !ok || ref == nil {
		return "", false
	}
	return relativePath(ref), true
}

func (codec) DecodeTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func relativePath(ref *firestore.DocumentRef) string {
	return fspath.Relative(ref.Path)
}
