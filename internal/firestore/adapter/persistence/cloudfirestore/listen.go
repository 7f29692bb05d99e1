package cloudfirestore

import (
	"context"
	"sync"

	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// stream runs next until it fails or the listener is stopped. Errors caused by
// stopping are not reported.
func (d *Driver) stream(ctx context.Context, cancel context.CancelFunc, path string, next func() error, stopIter func(), onErr repository.ErrorHandler) repository.StopFunc {
	go func() {
		defer cancel()
		for {
			err := next()
			if err == nil {
				continue
			}
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return
			}
			d.logger.Warn("Listener stopped",
				zap.String("path", path),
				zap.Error(err))
			if onErr != nil {
				onErr(mapError(err, path))
			}
			return
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			stopIter()
		})
	}
}

func (d *Driver) ListenDocument(ctx context.Context, path string, onNext repository.SnapshotHandler, onErr repository.ErrorHandler) repository.StopFunc {
	ref, err := d.doc(path)
	if err != nil {
		if onErr != nil {
			onErr(err)
		}
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	iter := ref.Snapshots(ctx)
	return d.stream(ctx, cancel, path, func() error {
		snap, err := iter.Next()
		if status.Code(err) == codes.NotFound {
			onNext(toSnapshot(path, nil))
			return nil
		}
		if err != nil {
			return err
		}
		onNext(toSnapshot(path, snap))
		return nil
	}, iter.Stop, onErr)
}

func (d *Driver) ListenQuery(ctx context.Context, q repository.QuerySpec, onNext repository.QuerySnapshotHandler, onErr repository.ErrorHandler) repository.StopFunc {
	if d.closed.Load() {
		if onErr != nil {
			onErr(errors.ErrDriverClosed)
		}
		return func() {}
	}
	query, err := d.buildQuery(q)
	if err != nil {
		if onErr != nil {
			onErr(err)
		}
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	iter := query.Snapshots(ctx)
	return d.stream(ctx, cancel, q.Source.Path, func() error {
		qs, err := iter.Next()
		if err != nil {
			return err
		}
		out, err := toQuerySnapshot(qs)
		if err != nil {
			return err
		}
		onNext(out)
		return nil
	}, iter.Stop, onErr)
}

func toQuerySnapshot(qs *firestore.QuerySnapshot) (*repository.QuerySnapshot, error) {
	docs, err := qs.Documents.GetAll()
	if err != nil {
		return nil, err
	}
	out := &repository.QuerySnapshot{
		Docs:     make([]*repository.Snapshot, len(docs)),
		Changes:  make([]repository.Change, len(qs.Changes)),
		ReadTime: qs.ReadTime,
	}
	for i, doc := range docs {
		out.Docs[i] = toSnapshot("", doc)
	}
	for i, change := range qs.Changes {
		out.Changes[i] = repository.Change{
			Type:     changeType(change.Kind),
			OldIndex: change.OldIndex,
			NewIndex: change.NewIndex,
			Doc:      toSnapshot("", change.Doc),
		}
	}
	return out, nil
}
