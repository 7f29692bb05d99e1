package service

import (
	"fmt"
	"reflect"
	"time"

	"firestore-typed/internal/firestore/domain/model"

	"github.com/mitchellh/mapstructure"
)

var (
	pathAssignerType = reflect.TypeOf((*model.PathAssigner)(nil)).Elem()
	timeType         = reflect.TypeOf(time.Time{})
)

// Decode wraps wire data and decodes it into T using the firestore struct tags.
func Decode[T any](m *Marshaller, wire map[string]any) (T, error) {
	var out T
	if err := m.DecodeInto(wire, &out); err != nil {
		return out, err
	}
	return out, nil
}

// DecodeInto is the non generic form of Decode. target must be a pointer.
func (m *Marshaller) DecodeInto(wire map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    TagName,
		Squash:     true,
		Result:     target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(refHook, timeHook),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(m.WrapDocument(wire)); err != nil {
		return fmt.Errorf("decode document into %T: %w", target, err)
	}
	return nil
}

// refHook assigns untyped references to typed Ref fields.
func refHook(from reflect.Value, to reflect.Value) (interface{}, error) {
	ref, ok := from.Interface().(model.Reference)
	if !ok || !to.IsValid() {
		return from.Interface(), nil
	}
	target := to.Type()
	if target.Kind() == reflect.Interface {
		return from.Interface(), nil
	}
	if !reflect.PointerTo(target).Implements(pathAssignerType) {
		return from.Interface(), nil
	}
	out := reflect.New(target)
	if err := out.Interface().(model.PathAssigner).AssignPath(ref.Path()); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}

// timeHook lets time values land in string fields as RFC 3339.
func timeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from != timeType || to.Kind() != reflect.String {
		return data, nil
	}
	return data.(time.Time).Format(time.RFC3339Nano), nil
}
