// Package mongodb stores documents in a single MongoDB collection keyed by document
// path. Filters are pushed down where Mongo agrees with Firestore semantics; ordering,
// cursors and limits are evaluated in memory. Listeners are served from a change feed.
package mongodb

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"firestore-typed/internal/firestore/adapter/persistence"
	"firestore-typed/internal/firestore/config"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/firestore/domain/service"
	"firestore-typed/internal/shared/errors"
	"firestore-typed/internal/shared/firestore"
	"firestore-typed/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	// DocumentsCollection holds every document regardless of its Firestore collection.
	DocumentsCollection = "documents"
	// DefaultMaxAttempts is how often a conflicting commit is retried.
	DefaultMaxAttempts = 5
)

// Driver implements repository.Driver on MongoDB.
type Driver struct {
	docs        CollectionInterface
	runner      TxRunner
	feed        repository.ChangeFeed
	listeners   *persistence.Listeners
	logger      logger.Logger
	maxAttempts int
	disconnect  func(context.Context) error

	mu      sync.Mutex
	lastNow time.Time
	closed  atomic.Bool
}

var _ repository.Driver = (*Driver)(nil)

// Option customises a Driver.
type Option func(*Driver)

// WithFeed replaces the private in-process feed, e.g. with a Redis feed shared by
// several processes.
func WithFeed(feed repository.ChangeFeed) Option {
	return func(d *Driver) { d.feed = feed }
}

// WithMaxAttempts sets the retry budget of transactions and conflicting writes.
func WithMaxAttempts(n int) Option {
	return func(d *Driver) { d.maxAttempts = n }
}

// WithTxRunner sets how commits are made atomic.
func WithTxRunner(r TxRunner) Option {
	return func(d *Driver) { d.runner = r }
}

// Connect dials MongoDB, prepares the documents collection and returns a driver
// owning the connection.
func Connect(ctx context.Context, cfg *config.FirestoreConfig, log logger.Logger, opts ...Option) (*Driver, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, errors.NewInfrastructureError("failed to connect to MongoDB").WithCause(err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.NewInfrastructureError("failed to ping MongoDB").WithCause(err)
	}
	col := client.Database(cfg.DatabaseName).Collection(DocumentsCollection)
	if err := ensureIndexes(ctx, col); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.NewInfrastructureError("failed to create indexes").WithCause(err)
	}

	base := []Option{func(d *Driver) { d.disconnect = client.Disconnect }}
	if cfg.MongoDBSessions {
		base = append(base, WithTxRunner(SessionRunner{Client: client}))
	}
	return NewDriver(NewMongoCollectionAdapter(col), log, append(base, opts...)...), nil
}

// ensureIndexes backs the source filters of collection and group queries.
func ensureIndexes(ctx context.Context, col *mongo.Collection) error {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "collectionPath", Value: 1}}},
		{Keys: bson.D{{Key: "collectionId", Value: 1}}},
	})
	return err
}

// NewDriver wraps a documents collection. Without a TxRunner, multi-document commits
// rely on version checks alone and are not atomic.
func NewDriver(docs CollectionInterface, log logger.Logger, opts ...Option) *Driver {
	if log == nil {
		log = logger.NewNopLogger()
	}
	d := &Driver{
		docs:        docs,
		runner:      directRunner{},
		logger:      log.WithComponent("mongodb_driver"),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.feed == nil {
		d.feed = persistence.NewBusChangeFeed(nil, d.logger)
	}
	d.listeners = persistence.NewListeners(d, d.feed, d.logger)
	return d
}

func (d *Driver) Name() string { return "mongodb" }

func (d *Driver) Codec() repository.Codec { return repository.NeutralCodec{} }

// now returns a strictly increasing commit time at BSON date precision.
func (d *Driver) now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := time.Now().UTC().Truncate(time.Millisecond)
	if !t.After(d.lastNow) {
		t = d.lastNow.Add(time.Millisecond)
	}
	d.lastNow = t
	return t
}

func validateDocumentPath(path string) error {
	if !firestore.IsDocumentPath(path) {
		return errors.NewInvalidPathError(path, "expected a document path with an even number of segments")
	}
	_, err := firestore.ParsePath(path)
	return err
}

// load returns the stored document or nil when it does not exist.
func (d *Driver) load(ctx context.Context, path string) (*storedDocument, error) {
	var doc storedDocument
	err := d.docs.FindOne(ctx, bson.M{"_id": path}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInfrastructureError("failed to read " + path).WithCause(err)
	}
	return &doc, nil
}

func (d *Driver) find(ctx context.Context, filter bson.M) ([]*storedDocument, error) {
	cur, err := d.docs.Find(ctx, filter)
	if err != nil {
		return nil, errors.NewInfrastructureError("failed to query documents").WithCause(err)
	}
	defer cur.Close(ctx)

	var out []*storedDocument
	for cur.Next(ctx) {
		var doc storedDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.NewInfrastructureError("failed to decode document").WithCause(err)
		}
		out = append(out, &doc)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.NewInfrastructureError("cursor failed").WithCause(err)
	}
	return out, nil
}

func (d *Driver) Get(ctx context.Context, path string) (*repository.Snapshot, error) {
	if err := validateDocumentPath(path); err != nil {
		return nil, err
	}
	if d.closed.Load() {
		return nil, errors.ErrDriverClosed
	}
	doc, err := d.load(ctx, path)
	if err != nil {
		return nil, err
	}
	return doc.snapshot(path, time.Now().UTC()), nil
}

func (d *Driver) GetAll(ctx context.Context, paths []string) ([]*repository.Snapshot, error) {
	for _, p := range paths {
		if err := validateDocumentPath(p); err != nil {
			return nil, err
		}
	}
	if d.closed.Load() {
		return nil, errors.ErrDriverClosed
	}
	if len(paths) == 0 {
		return []*repository.Snapshot{}, nil
	}
	docs, err := d.find(ctx, bson.M{"_id": bson.M{"$in": paths}})
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*storedDocument, len(docs))
	for _, doc := range docs {
		byPath[doc.Path] = doc
	}
	readTime := time.Now().UTC()
	out := make([]*repository.Snapshot, len(paths))
	for i, p := range paths {
		out[i] = byPath[p].snapshot(p, readTime)
	}
	return out, nil
}

func (d *Driver) Query(ctx context.Context, q repository.QuerySpec) ([]*repository.Snapshot, error) {
	if d.closed.Load() {
		return nil, errors.ErrDriverClosed
	}
	filter := buildMongoFilter(q)
	docs, err := d.find(ctx, filter)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("Query candidates loaded",
		zap.String("source", q.Source.Path),
		zap.Int("candidates", len(docs)))

	readTime := time.Now().UTC()
	candidates := make([]*repository.Snapshot, len(docs))
	for i, doc := range docs {
		candidates[i] = doc.snapshot(doc.Path, readTime)
	}
	return service.RunQuery(candidates, q), nil
}

func (d *Driver) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	return d.commit(ctx, []write{{kind: writeSet, path: path, data: data, merge: merge}}, nil)
}

func (d *Driver) Add(ctx context.Context, collectionPath string, data map[string]any) (string, error) {
	path := collectionPath + "/" + firestore.AutoID()
	if err := d.Set(ctx, path, data, false); err != nil {
		return "", err
	}
	return path, nil
}

func (d *Driver) Update(ctx context.Context, path string, updates []repository.FieldUpdate) error {
	return d.commit(ctx, []write{{kind: writeUpdate, path: path, updates: updates}}, nil)
}

func (d *Driver) Delete(ctx context.Context, path string) error {
	return d.commit(ctx, []write{{kind: writeDelete, path: path}}, nil)
}

func (d *Driver) ListenDocument(ctx context.Context, path string, onNext repository.SnapshotHandler, onErr repository.ErrorHandler) repository.StopFunc {
	return d.listeners.ListenDocument(ctx, path, onNext, onErr)
}

func (d *Driver) ListenQuery(ctx context.Context, q repository.QuerySpec, onNext repository.QuerySnapshotHandler, onErr repository.ErrorHandler) repository.StopFunc {
	return d.listeners.ListenQuery(ctx, q, onNext, onErr)
}

func (d *Driver) NewBatch() repository.WriteBatch {
	return &batch{driver: d}
}

// Close rejects further operations, closes the feed and drops the connection when
// the driver dialed it.
func (d *Driver) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	err := d.feed.Close()
	if d.disconnect != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if derr := d.disconnect(ctx); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}
