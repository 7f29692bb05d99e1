package service

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"

	goreflect "github.com/goccy/go-reflect"
)

// TagName is the struct tag the marshaller reads field names and options from.
const TagName = "firestore"

const (
	tagOmitEmpty       = "omitempty"
	tagServerTimestamp = "serverTimestamp"
)

var (
	timeTyp = goreflect.TypeOf(time.Time{})
	byteTyp = goreflect.TypeOf(byte(0))
)

// Marshaller converts application values to a driver's wire format and back.
type Marshaller struct {
	codec repository.Codec

	// replace is set for whole document writes, where Remove() has no field to delete.
	replace bool
}

// NewMarshaller binds a marshaller to the driver codec.
func NewMarshaller(codec repository.Codec) *Marshaller {
	return &Marshaller{codec: codec}
}

// Codec returns the driver codec.
func (m *Marshaller) Codec() repository.Codec {
	return m.codec
}

// Unwrap converts an application value to wire format. Sentinels become driver
// transforms, references and times become driver natives, nil becomes nil.
func (m *Marshaller) Unwrap(v any) (any, error) {
	return m.unwrap("", v)
}

// UnwrapReplacement is UnwrapDocument for writes that replace the whole document.
// Remove() sentinels are rejected instead of being handed to the driver.
func (m *Marshaller) UnwrapReplacement(v any) (map[string]any, error) {
	replace := *m
	replace.replace = true
	return replace.UnwrapDocument(v)
}

// UnwrapDocument is Unwrap for top level document bodies, which must be maps or structs.
func (m *Marshaller) UnwrapDocument(v any) (map[string]any, error) {
	out, err := m.unwrap("", v)
	if err != nil {
		return nil, err
	}
	switch doc := out.(type) {
	case map[string]any:
		return doc, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, errors.NewValidationError(fmt.Sprintf("document data must be a map or struct, got %T", v)).
		WithKind(errors.ErrUnsupportedValue)
}

func (m *Marshaller) unwrap(path string, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case model.UpdateValue:
		return m.unwrapSentinel(path, t)
	case *model.UpdateValue:
		if t == nil {
			return nil, nil
		}
		return m.unwrapSentinel(path, *t)
	case model.Reference:
		if rv := goreflect.ValueNoEscapeOf(t); (rv.Kind() == reflect.Pointer && rv.IsNil()) || rv.IsZero() {
			return nil, nil
		}
		return m.codec.EncodeRef(t.Path())
	case time.Time:
		return m.codec.EncodeTime(t), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return m.codec.EncodeTime(*t), nil
	case string, bool, int64, float64, []byte:
		return t, nil
	case map[string]any:
		return m.unwrapMap(path, t)
	case model.Data:
		return m.unwrapMap(path, t)
	case []any:
		return m.unwrapList(path, t)
	}
	return m.unwrapReflect(path, goreflect.ValueNoEscapeOf(v))
}

func (m *Marshaller) unwrapSentinel(path string, v model.UpdateValue) (any, error) {
	t := repository.Transform{Kind: v.Kind, Number: v.Number}
	switch v.Kind {
	case model.KindArrayUnion, model.KindArrayRemove:
		values, err := m.unwrapList(path, v.Values)
		if err != nil {
			return nil, err
		}
		t.Values = values
	case model.KindRemove:
		if m.replace {
			return nil, errors.NewValidationError(fmt.Sprintf("Remove() at %q requires a merge write", path)).
				WithKind(errors.ErrUnsupportedValue)
		}
	case model.KindIncrement, model.KindServerDate:
	default:
		return nil, errors.NewUnsupportedValueError(path, v)
	}
	return m.codec.EncodeTransform(t)
}

func (m *Marshaller) unwrapMap(path string, in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		w, err := m.unwrap(join(path, k), v)
		if err != nil {
			return nil, err
		}
		out[k] = w
	}
	return out, nil
}

func (m *Marshaller) unwrapList(path string, in []any) ([]any, error) {
	out := make([]any, len(in))
	for i, v := range in {
		w, err := m.unwrap(fmt.Sprintf("%s[%d]", path, i), v)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func (m *Marshaller) unwrapReflect(path string, r goreflect.Value) (any, error) {
	for r.Kind() == reflect.Pointer || r.Kind() == reflect.Interface {
		if r.IsNil() {
			return nil, nil
		}
		r = r.Elem()
		if r.CanInterface() {
			if _, special := specialValue(r.Interface()); special {
				return m.unwrap(path, r.Interface())
			}
		}
	}

	switch r.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Bool:
		return r.Bool(), nil
	case reflect.String:
		return r.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return r.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if r.Uint() > math.MaxInt64 {
			return nil, errors.NewUnsupportedValueError(path, r.Interface())
		}
		return int64(r.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return r.Float(), nil
	case reflect.Slice:
		if r.IsNil() {
			return nil, nil
		}
		if r.Type().Elem() == byteTyp {
			return r.Bytes(), nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, r.Len())
		for i := range r.Len() {
			w, err := m.unwrap(fmt.Sprintf("%s[%d]", path, i), r.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case reflect.Map:
		if r.IsNil() {
			return nil, nil
		}
		if r.Type().Key().Kind() != reflect.String {
			return nil, errors.NewUnsupportedValueError(path, r.Interface())
		}
		out := make(map[string]any, r.Len())
		for _, k := range r.MapKeys() {
			w, err := m.unwrap(join(path, k.String()), r.MapIndex(k).Interface())
			if err != nil {
				return nil, err
			}
			out[k.String()] = w
		}
		return out, nil
	case reflect.Struct:
		if r.Type() == timeTyp {
			return m.codec.EncodeTime(r.Interface().(time.Time)), nil
		}
		out := map[string]any{}
		if err := m.unwrapStruct(path, r, out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, errors.NewUnsupportedValueError(path, r.Interface())
}

// unwrapStruct writes the exported fields of r into out. Untagged embedded structs are
// flattened into the parent.
func (m *Marshaller) unwrapStruct(path string, r goreflect.Value, out map[string]any) error {
	typ := r.Type()
	for n := range r.NumField() {
		field := typ.Field(n)
		fieldValue := r.Field(n)

		name, opts, skip := parseTag(field)
		if skip {
			continue
		}
		if field.Anonymous && name == "" && field.PkgPath == "" {
			embedded := fieldValue
			if embedded.Kind() == reflect.Pointer {
				if embedded.IsNil() {
					continue
				}
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct && embedded.Type() != timeTyp {
				if err := m.unwrapStruct(path, embedded, out); err != nil {
					return err
				}
				continue
			}
		}
		if field.PkgPath != "" {
			continue
		}
		if name == "" {
			name = field.Name
		}

		if slices.Contains(opts, tagServerTimestamp) && fieldValue.IsZero() {
			w, err := m.unwrapSentinel(join(path, name), model.ServerDate())
			if err != nil {
				return err
			}
			out[name] = w
			continue
		}
		if slices.Contains(opts, tagOmitEmpty) && fieldValue.IsZero() {
			continue
		}

		w, err := m.unwrap(join(path, name), fieldValue.Interface())
		if err != nil {
			return err
		}
		out[name] = w
	}
	return nil
}

func parseTag(field goreflect.StructField) (name string, opts []string, skip bool) {
	tag, ok := field.Tag.Lookup(TagName)
	if !ok {
		return "", nil, false
	}
	if tag == "-" {
		return "", nil, true
	}
	segments := strings.Split(tag, ",")
	return segments[0], segments[1:], false
}

func specialValue(v any) (any, bool) {
	switch v.(type) {
	case model.UpdateValue, model.Reference, time.Time:
		return v, true
	}
	return nil, false
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Wrap converts wire data back to application values: driver references become
// untyped refs, driver timestamps become time.Time.
func (m *Marshaller) Wrap(v any) any {
	if v == nil {
		return nil
	}
	if p, ok := m.codec.DecodeRef(v); ok {
		ref, err := model.PathToRef[any](p)
		if err != nil {
			return p
		}
		return ref
	}
	if t, ok := m.codec.DecodeTime(v); ok {
		return t
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = m.Wrap(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = m.Wrap(val)
		}
		return out
	}
	return v
}

// WrapDocument is Wrap for document bodies.
func (m *Marshaller) WrapDocument(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	return m.Wrap(data).(map[string]any)
}
