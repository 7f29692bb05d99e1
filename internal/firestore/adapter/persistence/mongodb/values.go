package mongodb

import (
	"time"

	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/firestore"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// refKey marks an embedded document that stands for a document reference.
const refKey = "__ref__"

// storedDocument is the shape of one document in the documents collection. Fields hold
// the document data; references are embedded as {"__ref__": path}.
type storedDocument struct {
	Path           string    `bson:"_id"`
	CollectionPath string    `bson:"collectionPath"`
	CollectionID   string    `bson:"collectionId"`
	DocumentID     string    `bson:"documentId"`
	Fields         bson.M    `bson:"fields"`
	CreateTime     time.Time `bson:"createTime"`
	UpdateTime     time.Time `bson:"updateTime"`
	Version        int64     `bson:"version"`
}

func newStoredDocument(path string, data map[string]any) (*storedDocument, error) {
	collection, id, err := firestore.SplitDocumentPath(path)
	if err != nil {
		return nil, err
	}
	return &storedDocument{
		Path:           path,
		CollectionPath: collection,
		CollectionID:   firestore.CollectionID(collection),
		DocumentID:     id,
		Fields:         encodeFields(data),
	}, nil
}

func versionOf(doc *storedDocument) int64 {
	if doc == nil {
		return 0
	}
	return doc.Version
}

func (d *storedDocument) snapshot(path string, readTime time.Time) *repository.Snapshot {
	snap := &repository.Snapshot{Path: path, ReadTime: readTime}
	if d == nil {
		return snap
	}
	snap.Exists = true
	snap.Data = decodeFields(d.Fields)
	snap.CreateTime = d.CreateTime.UTC()
	snap.UpdateTime = d.UpdateTime.UTC()
	return snap
}

func encodeFields(data map[string]any) bson.M {
	out := make(bson.M, len(data))
	for k, v := range data {
		out[k] = encodeValue(v)
	}
	return out
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case repository.RefValue:
		return bson.M{refKey: x.Path}
	case *repository.RefValue:
		if x == nil {
			return nil
		}
		return bson.M{refKey: x.Path}
	case map[string]any:
		return encodeFields(x)
	case []any:
		out := make(bson.A, len(x))
		for i, item := range x {
			out[i] = encodeValue(item)
		}
		return out
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

func decodeFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = decodeValue(v)
	}
	return out
}

// decodeValue turns what the mongo driver hands back into wire values.
func decodeValue(v any) any {
	switch x := v.(type) {
	case primitive.M:
		return decodeMap(x)
	case map[string]any:
		return decodeMap(x)
	case primitive.D:
		return decodeMap(x.Map())
	case primitive.A:
		return decodeList(x)
	case []any:
		return decodeList(x)
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case primitive.Binary:
		return x.Data
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func decodeMap(m map[string]any) any {
	if len(m) == 1 {
		if path, ok := m[refKey].(string); ok {
			return repository.RefValue{Path: path}
		}
	}
	return decodeFields(m)
}

func decodeList(list []any) []any {
	out := make([]any, len(list))
	for i, item := range list {
		out[i] = decodeValue(item)
	}
	return out
}
