package repository

import (
	"time"

	"firestore-typed/internal/firestore/domain/model"
)

// Codec converts between the marshaller's vocabulary and a backend's native values.
type Codec interface {
	EncodeRef(path string) (any, error)
	EncodeTime(t time.Time) any
	// EncodeTransform receives operands that are already wire encoded.
	EncodeTransform(t Transform) (any, error)

	DecodeRef(v any) (path string, ok bool)
	DecodeTime(v any) (time.Time, bool)
}

// Transform is a field mutation in backend-neutral form.
type Transform struct {
	Kind   model.UpdateKind
	Number any
	Values []any
}

// RefValue is the backend-neutral reference representation.
type RefValue struct {
	Path string
}

// NeutralCodec keeps references as RefValue, times as time.Time and transforms as
// Transform. Drivers without an SDK of their own use it and translate at storage time.
type NeutralCodec struct{}

func (NeutralCodec) EncodeRef(path string) (any, error) { return RefValue{Path: path}, nil }
func (NeutralCodec) EncodeTime(t time.Time) any         { return t.UTC() }

func (NeutralCodec) EncodeTransform(t Transform) (any, error) { return t, nil }

func (NeutralCodec) DecodeRef(v any) (string, bool) {
	switch r := v.(type) {
	case RefValue:
		return r.Path, true
	case *RefValue:
		if r != nil {
			return r.Path, true
		}
	}
	return "", false
}

func (NeutralCodec) DecodeTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}
