package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/shared/errors"
)

// Document is the untyped body the gateway reads and writes.
type Document = map[string]any

// Special JSON objects. A single-key object with one of these keys is converted to
// the matching client value instead of being stored as a map.
const (
	keyRef         = "$ref"
	keyTime        = "$time"
	keyIncrement   = "$increment"
	keyArrayUnion  = "$arrayUnion"
	keyArrayRemove = "$arrayRemove"
	keyServerDate  = "$serverDate"
	keyRemove      = "$remove"
)

// decodeJSON decodes body into target keeping integers exact.
func decodeJSON(body []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return errors.NewValidationError("invalid JSON body").WithCause(err)
	}
	return nil
}

// decodeDocument parses a request body into client values.
func decodeDocument(body []byte) (Document, error) {
	var raw map[string]any
	if err := decodeJSON(body, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.NewValidationError("request body must be a JSON object")
	}
	v, err := fromJSON(raw)
	if err != nil {
		return nil, err
	}
	return v.(Document), nil
}

func fromJSON(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("invalid number %s", x))
		}
		return f, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			value, err := fromJSON(item)
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	case map[string]any:
		if len(x) == 1 {
			for key, arg := range x {
				if special, ok, err := fromSpecial(key, arg); ok || err != nil {
					return special, err
				}
			}
		}
		out := make(map[string]any, len(x))
		for key, item := range x {
			value, err := fromJSON(item)
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil
	}
	return v, nil
}

func fromSpecial(key string, arg any) (any, bool, error) {
	switch key {
	case keyRef:
		path, _ := arg.(string)
		ref, err := model.PathToRef[any](path)
		if err != nil {
			return nil, true, err
		}
		return ref, true, nil
	case keyTime:
		s, _ := arg.(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, true, errors.NewValidationError(fmt.Sprintf("invalid %s value %q", keyTime, s)).WithCause(err)
		}
		return t, true, nil
	case keyIncrement:
		n, err := fromJSON(arg)
		if err != nil {
			return nil, true, err
		}
		switch x := n.(type) {
		case int64:
			return model.Increment(x), true, nil
		case float64:
			return model.Increment(x), true, nil
		}
		return nil, true, errors.NewValidationError(keyIncrement + " needs a number")
	case keyArrayUnion, keyArrayRemove:
		list, ok := arg.([]any)
		if !ok {
			return nil, true, errors.NewValidationError(key + " needs an array")
		}
		values, err := fromJSON(list)
		if err != nil {
			return nil, true, err
		}
		if key == keyArrayUnion {
			return model.ArrayUnion(values.([]any)...), true, nil
		}
		return model.ArrayRemove(values.([]any)...), true, nil
	case keyServerDate:
		return model.ServerDate(), true, nil
	case keyRemove:
		return model.Remove(), true, nil
	}
	return nil, false, nil
}

// toJSON renders client values so that fromJSON can read them back.
func toJSON(v any) any {
	switch x := v.(type) {
	case model.Reference:
		return map[string]any{keyRef: x.Path()}
	case time.Time:
		return map[string]any{keyTime: x.UTC().Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(x))
		for key, item := range x {
			out[key] = toJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = toJSON(item)
		}
		return out
	}
	return v
}

type documentJSON struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	Data       map[string]any `json:"data"`
	CreateTime *time.Time     `json:"createTime,omitempty"`
	UpdateTime *time.Time     `json:"updateTime,omitempty"`
}

func renderDoc(doc model.Doc[Document]) documentJSON {
	out := documentJSON{
		ID:   doc.Ref.ID,
		Path: doc.Ref.Path(),
		Data: map[string]any{},
	}
	if doc.Data != nil {
		out.Data = toJSON(map[string]any(doc.Data)).(map[string]any)
	}
	if !doc.Meta.CreateTime.IsZero() {
		t := doc.Meta.CreateTime.UTC()
		out.CreateTime = &t
	}
	if !doc.Meta.UpdateTime.IsZero() {
		t := doc.Meta.UpdateTime.UTC()
		out.UpdateTime = &t
	}
	return out
}

func renderDocs(docs []model.Doc[Document]) []documentJSON {
	out := make([]documentJSON, len(docs))
	for i, doc := range docs {
		out[i] = renderDoc(doc)
	}
	return out
}
