package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/firestore/domain/service"
	"firestore-typed/internal/shared/errors"
	"firestore-typed/internal/shared/firestore"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// TxRunner runs fn so that every collection call it makes through ctx commits or
// aborts together.
type TxRunner interface {
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
}

type directRunner struct{}

func (directRunner) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// SessionRunner uses a multi-document transaction. It needs a replica set or a
// sharded cluster.
type SessionRunner struct {
	Client *mongo.Client
}

func (r SessionRunner) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := r.Client.StartSession()
	if err != nil {
		return errors.NewInfrastructureError("failed to start session").WithCause(err)
	}
	defer session.EndSession(ctx)

	return mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := session.StartTransaction(); err != nil {
			return errors.NewInfrastructureError("failed to start transaction").WithCause(err)
		}
		if err := fn(sc); err != nil {
			_ = session.AbortTransaction(context.Background())
			return err
		}
		return session.CommitTransaction(sc)
	})
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

func conflictError(path string) error {
	return errors.NewConflictError("document " + path + " changed concurrently").
		WithKind(errors.ErrTransactionConflict)
}

// isConflict also recognises server side write conflicts inside sessions.
func isConflict(err error) bool {
	if stderrors.Is(err, errors.ErrTransactionConflict) {
		return true
	}
	var se mongo.ServerError
	return stderrors.As(err, &se) && se.HasErrorLabel("TransientTransactionError")
}

// commit applies writes. reads, when set, holds the versions a transaction observed
// and a difference fails the commit with a conflict for the caller to retry. Plain
// writes retry on their own.
func (d *Driver) commit(ctx context.Context, writes []write, reads map[string]int64) error {
	for _, w := range writes {
		if err := validateDocumentPath(w.path); err != nil {
			return err
		}
	}
	attempts := 1
	if reads == nil {
		attempts = d.maxAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if d.closed.Load() {
			return errors.ErrDriverClosed
		}
		var events []model.RealtimeEvent
		err = d.runner.Atomically(ctx, func(ctx context.Context) error {
			var aerr error
			events, aerr = d.apply(ctx, writes, reads)
			return aerr
		})
		if err == nil {
			d.publish(ctx, events)
			return nil
		}
		if !isConflict(err) {
			return err
		}
		d.logger.Debug("Write conflict",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	if !stderrors.Is(err, errors.ErrTransactionConflict) {
		err = errors.NewConflictError("write conflict").WithKind(errors.ErrTransactionConflict).WithCause(err)
	}
	return err
}

// apply resolves every write against a staged view before touching the collection so
// a failing update leaves stored documents unchanged.
func (d *Driver) apply(ctx context.Context, writes []write, reads map[string]int64) ([]model.RealtimeEvent, error) {
	for path, version := range reads {
		current, err := d.load(ctx, path)
		if err != nil {
			return nil, err
		}
		if versionOf(current) != version {
			return nil, conflictError(path)
		}
	}

	now := d.now()
	var (
		order  []string
		base   = make(map[string]int64)
		staged = make(map[string]*storedDocument)
		events = make([]model.RealtimeEvent, 0, len(writes))
	)
	for _, w := range writes {
		current, seen := staged[w.path]
		if !seen {
			loaded, err := d.load(ctx, w.path)
			if err != nil {
				return nil, err
			}
			current = loaded
			base[w.path] = versionOf(loaded)
			order = append(order, w.path)
		}

		var existing map[string]any
		if current != nil {
			existing = decodeFields(current.Fields)
		}
		var data map[string]any
		switch w.kind {
		case writeSet:
			data = service.ApplySet(existing, w.data, w.merge, now)
		case writeUpdate:
			if current == nil {
				return nil, errors.NewDocumentNotFoundError(w.path)
			}
			data = service.ApplyUpdates(existing, w.updates, now)
		}

		var next *storedDocument
		eventType := model.EventTypeDeleted
		if w.kind != writeDelete {
			doc, err := newStoredDocument(w.path, data)
			if err != nil {
				return nil, err
			}
			next = doc
			next.CreateTime = now
			next.UpdateTime = now
			next.Version = base[w.path] + 1
			eventType = model.EventTypeCreated
			if current != nil {
				next.CreateTime = current.CreateTime
				eventType = model.EventTypeUpdated
			}
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

	_, direct := d.runner.(directRunner)
	for i, path := range order {
		if err := d.persist(ctx, path, base[path], staged[path]); err != nil {
			if direct && i > 0 {
				// Earlier documents are already stored, so a retry would apply them twice.
				return nil, errors.NewInternalError(fmt.Sprintf("commit stopped after %d of %d documents", i, len(order))).
					WithCause(err)
			}
			return nil, err
		}
	}
	return events, nil
}

// persist stores next in place of the version the commit was computed from.
func (d *Driver) persist(ctx context.Context, path string, version int64, next *storedDocument) error {
	switch {
	case next == nil && version == 0:
		return nil
	case next == nil:
		res, err := d.docs.DeleteOne(ctx, bson.M{"_id": path, "version": version})
		if err != nil {
			return errors.NewInfrastructureError("failed to delete " + path).WithCause(err)
		}
		if res.Deleted() == 0 {
			return conflictError(path)
		}
	case version == 0:
		if _, err := d.docs.InsertOne(ctx, next); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return conflictError(path)
			}
			return errors.NewInfrastructureError("failed to insert " + path).WithCause(err)
		}
	default:
		res, err := d.docs.ReplaceOne(ctx, bson.M{"_id": path, "version": version}, next)
		if err != nil {
			return errors.NewInfrastructureError("failed to replace " + path).WithCause(err)
		}
		if res.Matched() == 0 {
			return conflictError(path)
		}
	}
	return nil
}

func (d *Driver) publish(ctx context.Context, events []model.RealtimeEvent) {
	for _, event := range events {
		if err := d.feed.Publish(ctx, event); err != nil {
			d.logger.Warn("Failed to publish change",
				zap.String("path", event.DocumentPath),
				zap.Error(err))
		}
	}
}

// transaction records the version of every document it reads and buffers writes until
// the callback returns.
type transaction struct {
	driver *Driver
	reads  map[string]int64
	writes []write
}

func (t *transaction) Get(ctx context.Context, path string) (*repository.Snapshot, error) {
	if len(t.writes) > 0 {
		return nil, errors.NewValidationError("transactions require all reads to be executed before all writes").
			WithKind(errors.ErrInvalidTransaction)
	}
	if err := validateDocumentPath(path); err != nil {
		return nil, err
	}
	if t.driver.closed.Load() {
		return nil, errors.ErrDriverClosed
	}
	doc, err := t.driver.load(ctx, path)
	if err != nil {
		return nil, err
	}
	t.reads[path] = versionOf(doc)
	return doc.snapshot(path, time.Now().UTC()), nil
}

func (t *transaction) Set(path string, data map[string]any, merge bool) error {
	t.writes = append(t.writes, write{kind: writeSet, path: path, data: data, merge: merge})
	return nil
}

func (t *transaction) Update(path string, updates []repository.FieldUpdate) error {
	t.writes = append(t.writes, write{kind: writeUpdate, path: path, updates: updates})
	return nil
}

func (t *transaction) Delete(path string) error {
	t.writes = append(t.writes, write{kind: writeDelete, path: path})
	return nil
}

// RunTransaction runs fn with optimistic concurrency: the commit fails when a document
// read by fn changed in the meantime, and fn is run again up to the retry budget.
func (d *Driver) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Transaction) error) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &transaction{driver: d, reads: make(map[string]int64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		err := d.commit(ctx, tx.writes, tx.reads)
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}
		lastErr = err
		d.logger.Debug("Transaction conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return lastErr
}

type batch struct {
	driver    *Driver
	writes    []write
	committed bool
}

func (b *batch) Set(path string, data map[string]any, merge bool) {
	b.writes = append(b.writes, write{kind: writeSet, path: path, data: data, merge: merge})
}

func (b *batch) Update(path string, updates []repository.FieldUpdate) {
	b.writes = append(b.writes, write{kind: writeUpdate, path: path, updates: updates})
}

func (b *batch) Delete(path string) {
	b.writes = append(b.writes, write{kind: writeDelete, path: path})
}

// Commit applies every write or none.
func (b *batch) Commit(ctx context.Context) error {
	if b.committed {
		return errors.NewValidationError("batch already committed").WithKind(errors.ErrInvalidTransaction)
	}
	b.committed = true
	if len(b.writes) == 0 {
		return nil
	}
	return b.driver.commit(ctx, b.writes, nil)
}
