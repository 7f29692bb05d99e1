package cloudfirestore

import (
	"context"

	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type transaction struct {
	driver *Driver
	tx     *firestore.Transaction
	wrote  bool
}

func (t *transaction) Get(ctx context.Context, path string) (*repository.Snapshot, error) {
	if t.wrote {
		return nil, errors.NewValidationError("transactions require all reads to be executed before all writes").
			WithKind(errors.ErrInvalidTransaction)
	}
	ref, err := t.driver.doc(path)
	if err != nil {
		return nil, err
	}
	snap, err := t.tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return toSnapshot(path, snap), nil
	}
	if err != nil {
		// Aborted must reach the SDK unchanged so it can retry.
		return nil, err
	}
	return toSnapshot(path, snap), nil
}

func (t *transaction) Set(path string, data map[string]any, merge bool) error {
	ref, err := t.driver.doc(path)
	if err != nil {
		return err
	}
	t.wrote = true
	return t.tx.Set(ref, setData(data), setOptions(merge)...)
}

func (t *transaction) Update(path string, updates []repository.FieldUpdate) error {
	ref, err := t.driver.doc(path)
	if err != nil {
		return err
	}
	t.wrote = true
	return t.tx.Update(ref, toUpdates(updates))
}

func (t *transaction) Delete(path string) error {
	ref, err := t.driver.doc(path)
	if err != nil {
		return err
	}
	t.wrote = true
	return t.tx.Delete(ref)
}

// RunTransaction delegates retries to the SDK, which reruns fn when the server aborts
// the commit.
func (d *Driver) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Transaction) error) error {
	if d.closed.Load() {
		return errors.ErrDriverClosed
	}
	attempts := 0
	err := d.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		if attempts > 1 {
			d.logger.Debug("Transaction conflict, retrying", zap.Int("attempt", attempts))
		}
		return fn(ctx, &transaction{driver: d, tx: tx})
	}, firestore.MaxAttempts(d.maxAttempts))
	return mapError(err, "transaction")
}

// batch buffers writes and commits them in a write-only transaction, which is atomic
// and retried by the SDK.
type batch struct {
	driver    *Driver
	writes    []func(tx repository.Transaction) error
	committed bool
}

func (d *Driver) NewBatch() repository.WriteBatch {
	return &batch{driver: d}
}

func (b *batch) Set(path string, data map[string]any, merge bool) {
	b.writes = append(b.writes, func(tx repository.Transaction) error { return tx.Set(path, data, merge) })
}

func (b *batch) Update(path string, updates []repository.FieldUpdate) {
	b.writes = append(b.writes, func(tx repository.Transaction) error { return tx.Update(path, updates) })
}

func (b *batch) Delete(path string) {
	b.writes = append(b.writes, func(tx repository.Transaction) error { return tx.Delete(path) })
}

func (b *batch) Commit(ctx context.Context) error {
	if b.committed {
		return errors.NewValidationError("batch already committed").WithKind(errors.ErrInvalidTransaction)
	}
	b.committed = true
	if len(b.writes) == 0 {
		return nil
	}
	return b.driver.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		for _, w := range b.writes {
			if err := w(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
