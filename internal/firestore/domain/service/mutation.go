package service

import (
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
)

// ApplySet resolves a set write against the stored document. Without merge the stored
// document is ignored and transforms apply to empty fields. With merge, nested maps are
// merged leaf by leaf. Data must be in neutral form.
func ApplySet(existing, data map[string]any, merge bool, now time.Time) map[string]any {
	if !merge {
		return mergeInto(map[string]any{}, data, now)
	}
	return mergeInto(CloneData(existing), data, now)
}

// ApplyUpdates resolves field-path updates against the stored document. Map values
// replace the addressed field wholesale, intermediate maps are created as needed.
func ApplyUpdates(existing map[string]any, updates []repository.FieldUpdate, now time.Time) map[string]any {
	out := CloneData(existing)
	if out == nil {
		out = map[string]any{}
	}
	for _, u := range updates {
		setPath(out, u.Path, u.Value, now)
	}
	return out
}

// ApplyTransform computes the new value of a field. remove is true when the field must
// be deleted.
func ApplyTransform(current any, exists bool, t repository.Transform, now time.Time) (value any, remove bool) {
	switch t.Kind {
	case model.KindRemove:
		return nil, true
	case model.KindServerDate:
		return now.UTC(), false
	case model.KindIncrement:
		if !exists || !isNumber(current) {
			return t.Number, false
		}
		return addNumbers(current, t.Number), false
	case model.KindArrayUnion:
		list, _ := current.([]any)
		out := append([]any{}, list...)
		for _, v := range t.Values {
			if !containsValue(out, v) {
				out = append(out, v)
			}
		}
		return out, false
	case model.KindArrayRemove:
		list, _ := current.([]any)
		out := make([]any, 0, len(list))
		for _, v := range list {
			if !containsValue(t.Values, v) {
				out = append(out, v)
			}
		}
		return out, false
	}
	return current, false
}

// CloneData deep copies maps and slices of a neutral document.
func CloneData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	}
	return v
}

// ResolveTransforms replaces transforms nested in a value with their result against
// empty fields.
func ResolveTransforms(v any, now time.Time) (any, bool) {
	switch t := v.(type) {
	case repository.Transform:
		return ApplyTransform(nil, false, t, now)
	case map[string]any:
		return mergeInto(map[string]any{}, t, now), false
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i], _ = ResolveTransforms(item, now)
		}
		return out, false
	}
	return v, false
}

func mergeInto(dst, src map[string]any, now time.Time) map[string]any {
	for k, v := range src {
		switch t := v.(type) {
		case repository.Transform:
			current, exists := dst[k]
			value, remove := ApplyTransform(current, exists, t, now)
			if remove {
				delete(dst, k)
				continue
			}
			dst[k] = value
		case map[string]any:
			child, ok := dst[k].(map[string]any)
			if !ok {
				child = map[string]any{}
			}
			dst[k] = mergeInto(child, t, now)
		default:
			dst[k], _ = ResolveTransforms(v, now)
		}
	}
	return dst
}

func setPath(doc map[string]any, path model.FieldPath, value any, now time.Time) {
	if len(path) == 0 {
		return
	}
	parent := doc
	for _, segment := range path[:len(path)-1] {
		child, ok := parent[segment].(map[string]any)
		if !ok {
			if t, isTransform := value.(repository.Transform); isTransform && t.Kind == model.KindRemove {
				return
			}
			child = map[string]any{}
			parent[segment] = child
		}
		parent = child
	}
	leaf := path[len(path)-1]
	if t, ok := value.(repository.Transform); ok {
		current, exists := parent[leaf]
		v, remove := ApplyTransform(current, exists, t, now)
		if remove {
			delete(parent, leaf)
			return
		}
		parent[leaf] = v
		return
	}
	parent[leaf], _ = ResolveTransforms(value, now)
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if CompareValues(item, v) == 0 && TypeOrder(item) == TypeOrder(v) {
			return true
		}
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

func addNumbers(a, b any) any {
	ai, aInt := asInt(a)
	bi, bInt := asInt(b)
	if aInt && bInt {
		return ai + bi
	}
	af, _ := AsFloat(a)
	bf, _ := AsFloat(b)
	return af + bf
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	}
	return 0, false
}

// AsFloat widens any neutral number to float64.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
