package usecase

import (
	"context"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"
)

// sink receives encoded writes. Batches and transactions differ only here.
type sink interface {
	set(path string, data map[string]any, merge bool) error
	update(path string, updates []repository.FieldUpdate) error
	delete(path string) error
}

// Writes is the write API shared by batches and transactions. References are untyped so
// one batch can touch several collections. The first failure is kept and reported on
// commit; later writes are ignored.
type Writes struct {
	client *Client
	sink   sink
	err    error
}

// Err returns the first write error.
func (w *Writes) Err() error {
	return w.err
}

func (w *Writes) record(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Set overwrites the referenced document with data.
func (w *Writes) Set(ref model.Reference, data any) {
	w.write(ref, data, false)
}

// Upset merges data, a model value or model.Data, into the referenced document.
func (w *Writes) Upset(ref model.Reference, data any) {
	w.write(ref, data, true)
}

func (w *Writes) write(ref model.Reference, data any, merge bool) {
	if w.err != nil {
		return
	}
	wire, err := w.client.encode(ref.Path(), data, merge)
	if err != nil {
		w.record(err)
		return
	}
	w.record(w.sink.set(ref.Path(), wire, merge))
}

// Update changes fields of an existing document.
func (w *Writes) Update(ref model.Reference, fields ...model.Field) {
	if w.err != nil {
		return
	}
	updates, err := w.client.fieldUpdates(fields)
	if err != nil {
		w.record(err)
		return
	}
	w.record(w.sink.update(ref.Path(), updates))
}

// UpdateData changes fields of an existing document. Keys are dotted field paths.
func (w *Writes) UpdateData(ref model.Reference, data model.Data) {
	if w.err != nil {
		return
	}
	updates, err := w.client.dataUpdates(data)
	if err != nil {
		w.record(err)
		return
	}
	w.record(w.sink.update(ref.Path(), updates))
}

// Remove deletes the referenced document.
func (w *Writes) Remove(ref model.Reference) {
	if w.err != nil {
		return
	}
	w.record(w.sink.delete(ref.Path()))
}

type batchSink struct {
	batch repository.WriteBatch
	size  int
}

func (s *batchSink) set(path string, data map[string]any, merge bool) error {
	s.batch.Set(path, data, merge)
	s.size++
	return nil
}

func (s *batchSink) update(path string, updates []repository.FieldUpdate) error {
	s.batch.Update(path, updates)
	s.size++
	return nil
}

func (s *batchSink) delete(path string) error {
	s.batch.Delete(path)
	s.size++
	return nil
}

// Batch collects writes that are committed atomically.
type Batch struct {
	Writes
	sink *batchSink
}

// NewBatch starts an empty batch.
func NewBatch(c *Client) *Batch {
	s := &batchSink{batch: c.driver.NewBatch()}
	return &Batch{Writes: Writes{client: c, sink: s}, sink: s}
}

// Size returns how many writes were queued.
func (b *Batch) Size() int {
	return b.sink.size
}

// Commit applies every queued write or none of them.
func (b *Batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if err := b.sink.batch.Commit(ctx); err != nil {
		return b.client.wrapErr(ctx, err, "commit batch of", "writes")
	}
	b.client.logger.Debug("Batch committed", "writes", b.sink.size)
	return nil
}

type txSink struct {
	tx repository.Transaction
}

func (s txSink) set(path string, data map[string]any, merge bool) error {
	return s.tx.Set(path, data, merge)
}

func (s txSink) update(path string, updates []repository.FieldUpdate) error {
	return s.tx.Update(path, updates)
}

func (s txSink) delete(path string) error {
	return s.tx.Delete(path)
}

// TxRead is the read API of a transaction.
type TxRead struct {
	client *Client
	tx     repository.Transaction
}

// TxGet reads a document inside a transaction. It returns nil when the document does
// not exist.
func TxGet[T any](ctx context.Context, r *TxRead, ref model.Ref[T]) (*model.Doc[T], error) {
	snap, err := r.tx.Get(ctx, ref.Path())
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, nil
	}
	doc, err := toDoc(r.client, ref, snap)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// TxWrite is the write API of a transaction. Data holds what the read function returned.
type TxWrite[R any] struct {
	Writes
	Data R
}

// Transaction runs read and then write inside one backend transaction. Reads are
// tracked by the backend, which reruns both functions on conflict. The result of write
// is returned.
func Transaction[R, W any](
	ctx context.Context,
	c *Client,
	read func(ctx context.Context, r *TxRead) (R, error),
	write func(w *TxWrite[R]) (W, error),
) (W, error) {
	var result W
	err := c.driver.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		data, err := read(ctx, &TxRead{client: c, tx: tx})
		if err != nil {
			return err
		}
		w := &TxWrite[R]{Writes: Writes{client: c, sink: txSink{tx: tx}}, Data: data}
		out, err := write(w)
		if err != nil {
			return err
		}
		if w.err != nil {
			return w.err
		}
		result = out
		return nil
	})
	if err != nil {
		var zero W
		if errors.IsConflict(err) {
			c.logger.Warn("Transaction gave up after conflicts", "error", err)
		}
		return zero, err
	}
	return result, nil
}
