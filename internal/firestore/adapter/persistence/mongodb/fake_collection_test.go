package mongodb

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeCollection keeps BSON-encoded documents in memory so values go through the real
// codec. Find only honours the _id, collectionPath and collectionId keys; field
// clauses are ignored, which yields the superset the driver tolerates.
type fakeCollection struct {
	mu   sync.Mutex
	docs map[string]bson.Raw

	// missReplaces makes the next ReplaceOne calls match nothing, as if another
	// writer got there first.
	missReplaces int
	lastFilter   bson.M
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]bson.Raw)}
}

func (f *fakeCollection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	id := bson.Raw(raw).Lookup("_id").StringValue()

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.docs[id]; exists {
		return nil, mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
	}
	f.docs[id] = raw
	return id, nil
}

func (f *fakeCollection) FindOne(ctx context.Context, filter interface{}) SingleResultInterface {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := filter.(bson.M)["_id"].(string)
	raw, ok := f.docs[id]
	if !ok {
		return fakeResult{err: mongo.ErrNoDocuments}
	}
	return fakeResult{raw: raw}
}

func (f *fakeCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error) {
	raw, err := bson.Marshal(replacement)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missReplaces > 0 {
		f.missReplaces--
		return fakeUpdateResult(0), nil
	}
	id, ok := f.matchVersion(filter.(bson.M))
	if !ok {
		return fakeUpdateResult(0), nil
	}
	f.docs[id] = raw
	return fakeUpdateResult(1), nil
}

func (f *fakeCollection) DeleteOne(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.matchVersion(filter.(bson.M))
	if !ok {
		return fakeDeleteResult(0), nil
	}
	delete(f.docs, id)
	return fakeDeleteResult(1), nil
}

func (f *fakeCollection) matchVersion(filter bson.M) (string, bool) {
	id, _ := filter["_id"].(string)
	raw, ok := f.docs[id]
	if !ok {
		return "", false
	}
	if version, ok := filter["version"].(int64); ok && raw.Lookup("version").Int64() != version {
		return "", false
	}
	return id, true
}

func (f *fakeCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := filter.(bson.M)
	f.lastFilter = m

	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cur := &fakeCursor{}
	for _, id := range ids {
		if matches(f.docs[id], m) {
			cur.docs = append(cur.docs, f.docs[id])
		}
	}
	return cur, nil
}

func (f *fakeCollection) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func matches(raw bson.Raw, filter bson.M) bool {
	for key, want := range filter {
		switch key {
		case "$and":
			for _, clause := range want.(bson.A) {
				if !matches(raw, clause.(bson.M)) {
					return false
				}
			}
		case "_id":
			id := raw.Lookup("_id").StringValue()
			switch w := want.(type) {
			case string:
				if id != w {
					return false
				}
			case bson.M:
				found := false
				for _, candidate := range w["$in"].([]string) {
					if candidate == id {
						found = true
					}
				}
				if !found {
					return false
				}
			}
		case "collectionPath", "collectionId":
			if raw.Lookup(key).StringValue() != want.(string) {
				return false
			}
		}
	}
	return true
}

type fakeResult struct {
	raw bson.Raw
	err error
}

func (r fakeResult) Decode(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	return bson.Unmarshal(r.raw, v)
}

type fakeUpdateResult int64

func (r fakeUpdateResult) Matched() int64 { return int64(r) }

type fakeDeleteResult int64

func (r fakeDeleteResult) Deleted() int64 { return int64(r) }

type fakeCursor struct {
	docs []bson.Raw
	pos  int
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val interface{}) error {
	return bson.Unmarshal(c.docs[c.pos-1], val)
}

func (c *fakeCursor) Close(ctx context.Context) error { return nil }
func (c *fakeCursor) Err() error                      { return nil }
