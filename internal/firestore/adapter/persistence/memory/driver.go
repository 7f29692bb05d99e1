// Package memory is an in-process driver. It keeps documents in a map, evaluates queries
// with Firestore ordering and serves listeners from a change feed.
package memory

import (
	"context"
	"sync"
	"time"

	"firestore-typed/internal/firestore/adapter/persistence"
	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/firestore/domain/service"
	"firestore-typed/internal/shared/errors"
	"firestore-typed/internal/shared/firestore"
	"firestore-typed/internal/shared/logger"

	"go.uber.org/zap"
)

// DefaultMaxAttempts is how often a conflicting transaction is retried.
const DefaultMaxAttempts = 5

type record struct {
	data       map[string]any
	createTime time.Time
	updateTime time.Time
	version    int64
}

// Driver stores documents in memory.
type Driver struct {
	mu      sync.RWMutex
	docs    map[string]*record
	lastNow time.Time
	closed  bool

	feed        repository.ChangeFeed
	listeners   *persistence.Listeners
	logger      logger.Logger
	maxAttempts int
}

var _ repository.Driver = (*Driver)(nil)

// Option customises a Driver.
type Option func(*Driver)

// WithFeed replaces the private in-process feed, e.g. with a Redis feed shared by
// several processes.
func WithFeed(feed repository.ChangeFeed) Option {
	return func(d *Driver) { d.feed = feed }
}

// WithMaxAttempts sets the transaction retry budget.
func WithMaxAttempts(n int) Option {
	return func(d *Driver) { d.maxAttempts = n }
}

// NewDriver creates an empty store.
func NewDriver(log logger.Logger, opts ...Option) *Driver {
	if log == nil {
		log = logger.NewNopLogger()
	}
	d := &Driver{
		docs:        make(map[string]*record),
		logger:      log.WithComponent("memory_driver"),
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

func (d *Driver) Name() string { return "memory" }

func (d *Driver) Codec() repository.Codec { return repository.NeutralCodec{} }

// now returns a strictly increasing commit time. Callers hold the write lock.
func (d *Driver) now() time.Time {
	t := time.Now().UTC()
	if !t.After(d.lastNow) {
		t = d.lastNow.Add(time.Microsecond)
	}
	d.lastNow = t
	return t
}

func (d *Driver) snapshot(path string, rec *record) *repository.Snapshot {
	snap := &repository.Snapshot{Path: path, ReadTime: time.Now().UTC()}
	if rec == nil {
		return snap
	}
	snap.Exists = true
	snap.Data = service.CloneData(rec.data)
	snap.CreateTime = rec.createTime
	snap.UpdateTime = rec.updateTime
	return snap
}

func validateDocumentPath(path string) error {
	if !firestore.IsDocumentPath(path) {
		return errors.NewInvalidPathError(path, "expected a document path with an even number of segments")
	}
	_, err := firestore.ParsePath(path)
	return err
}

func (d *Driver) Get(ctx context.Context, path string) (*repository.Snapshot, error) {
	if err := validateDocumentPath(path); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errors.ErrDriverClosed
	}
	return d.snapshot(path, d.docs[path]), nil
}

func (d *Driver) GetAll(ctx context.Context, paths []string) ([]*repository.Snapshot, error) {
	for _, p := range paths {
		if err := validateDocumentPath(p); err != nil {
			return nil, err
		}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, errors.ErrDriverClosed
	}
	out := make([]*repository.Snapshot, len(paths))
	for i, p := range paths {
		out[i] = d.snapshot(p, d.docs[p])
	}
	return out, nil
}

func (d *Driver) Query(ctx context.Context, q repository.QuerySpec) ([]*repository.Snapshot, error) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, errors.ErrDriverClosed
	}
	candidates := make([]*repository.Snapshot, 0, len(d.docs))
	for path, rec := range d.docs {
		if service.InSource(path, q.Source) {
			candidates = append(candidates, d.snapshot(path, rec))
		}
	}
	d.mu.RUnlock()
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

// Close rejects further operations. The feed is closed too.
func (d *Driver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.feed.Close()
}

type writeKind int

const (
	writeSet writeKind = iota
	writeUpdate
	writeDelete
)

type write struct {
	kind    writeKind
	path    string
	data    map[string]any
	merge   bool
	updates []repository.FieldUpdate
}

// commit applies writes atomically. reads, when set, holds the versions a transaction
// observed; any difference aborts the commit with a conflict.
func (d *Driver) commit(ctx context.Context, writes []write, reads map[string]int64) error {
	for _, w := range writes {
		if err := validateDocumentPath(w.path); err != nil {
			return err
		}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.ErrDriverClosed
	}
	for path, version := range reads {
		var current int64
		if rec := d.docs[path]; rec != nil {
			current = rec.version
		}
		if current != version {
			d.mu.Unlock()
			return errors.NewConflictError("document " + path + " changed during the transaction").
				WithKind(errors.ErrTransactionConflict)
		}
	}

	// Resolve every write against a staged view first so a failing update leaves the
	// store untouched.
	staged := make(map[string]*record)
	lookup := func(path string) *record {
		if rec, ok := staged[path]; ok {
			return rec
		}
		return d.docs[path]
	}
	now := d.now()
	events := make([]model.RealtimeEvent, 0, len(writes))
	for _, w := range writes {
		current := lookup(w.path)
		var next *record
		switch w.kind {
		case writeSet:
			var existing map[string]any
			if current != nil {
				existing = current.data
			}
			next = &record{data: service.ApplySet(existing, w.data, w.merge, now)}
		case writeUpdate:
			if current == nil {
				d.mu.Unlock()
				return errors.NewDocumentNotFoundError(w.path)
			}
			next = &record{data: service.ApplyUpdates(current.data, w.updates, now)}
		case writeDelete:
			next = nil
		}

		eventType := model.EventTypeDeleted
		if next != nil {
			eventType = model.EventTypeUpdated
			next.createTime = now
			next.version = 1
			if current != nil {
				next.createTime = current.createTime
				next.version = current.version + 1
			} else {
				eventType = model.EventTypeCreated
			}
			next.updateTime = now
		}
		staged[w.path] = next
		collection, _, _ := firestore.SplitDocumentPath(w.path)
		events = append(events, model.RealtimeEvent{
			Type:           eventType,
			DocumentPath:   w.path,
			CollectionPath: collection,
			Timestamp:      now,
		})
	}

	for path, rec := range staged {
		if rec == nil {
			delete(d.docs, path)
			continue
		}
		d.docs[path] = rec
	}
	d.mu.Unlock()

	for _, event := range events {
		if err := d.feed.Publish(ctx, event); err != nil {
			d.logger.Warn("Failed to publish change",
				zap.String("path", event.DocumentPath),
				zap.Error(err))
		}
	}
	return nil
}

// version returns the current version of a document, 0 when missing.
func (d *Driver) version(path string) int64 {
	if rec := d.docs[path]; rec != nil {
		return rec.version
	}
	return 0
}
