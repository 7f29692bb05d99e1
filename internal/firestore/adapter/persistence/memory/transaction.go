package memory

import (
	"context"
	stderrors "errors"

	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"

	"go.uber.org/zap"
)

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
	t.driver.mu.RLock()
	defer t.driver.mu.RUnlock()
	if t.driver.closed {
		return nil, errors.ErrDriverClosed
	}
	t.reads[path] = t.driver.version(path)
	return t.driver.snapshot(path, t.driver.docs[path]), nil
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
		if !stderrors.Is(err, errors.ErrTransactionConflict) {
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
