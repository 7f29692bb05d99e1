package persistence

import (
	"context"
	"reflect"
	"sync"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/firestore/domain/service"
	"firestore-typed/internal/shared/logger"

	"go.uber.org/zap"
)

// Reader is the read side of a driver the listeners re-run on every relevant change.
type Reader interface {
	Get(ctx context.Context, path string) (*repository.Snapshot, error)
	Query(ctx context.Context, q repository.QuerySpec) ([]*repository.Snapshot, error)
}

// Listeners implements document and query listeners for drivers without native
// snapshot streams: a change feed event triggers a re-read and the result is diffed
// against the previous delivery.
type Listeners struct {
	reader Reader
	feed   repository.ChangeFeed
	logger logger.Logger
}

// NewListeners wires the reader to the feed.
func NewListeners(reader Reader, feed repository.ChangeFeed, log logger.Logger) *Listeners {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Listeners{reader: reader, feed: feed, logger: log}
}

// Feed returns the change feed writes must be published to.
func (l *Listeners) Feed() repository.ChangeFeed {
	return l.feed
}

// ListenDocument delivers the document now and after every change to it.
func (l *Listeners) ListenDocument(ctx context.Context, path string, onNext repository.SnapshotHandler, onErr repository.ErrorHandler) repository.StopFunc {
	return l.listen(ctx, func(event model.RealtimeEvent) bool {
		return event.DocumentPath == path
	}, func(ctx context.Context, prev any) (any, error) {
		snap, err := l.reader.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil || (prev != nil && sameSnapshot(prev.(*repository.Snapshot), snap)) {
			return prev, nil
		}
		snap.ReadTime = time.Now().UTC()
		onNext(snap)
		return snap, nil
	}, onErr, zap.String("path", path))
}

// ListenQuery delivers the query results now and whenever they change.
func (l *Listeners) ListenQuery(ctx context.Context, q repository.QuerySpec, onNext repository.QuerySnapshotHandler, onErr repository.ErrorHandler) repository.StopFunc {
	return l.listen(ctx, func(event model.RealtimeEvent) bool {
		return service.InSource(event.DocumentPath, q.Source)
	}, func(ctx context.Context, prev any) (any, error) {
		docs, err := l.reader.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		var before []*repository.Snapshot
		if prev != nil {
			before = prev.([]*repository.Snapshot)
		}
		changes := service.DiffSnapshots(before, docs)
		if ctx.Err() != nil || (prev != nil && len(changes) == 0) {
			return prev, nil
		}
		if docs == nil {
			docs = []*repository.Snapshot{}
		}
		onNext(&repository.QuerySnapshot{Docs: docs, Changes: changes, ReadTime: time.Now().UTC()})
		return docs, nil
	}, onErr, zap.String("source", q.Source.Path), zap.Bool("group", q.Source.Group))
}

// listen runs refresh once and then after every matching event. Events arriving while a
// refresh runs collapse into a single follow-up refresh.
func (l *Listeners) listen(
	ctx context.Context,
	relevant func(model.RealtimeEvent) bool,
	refresh func(ctx context.Context, prev any) (any, error),
	onErr repository.ErrorHandler,
	fields ...any,
) repository.StopFunc {
	ctx, cancel := context.WithCancel(ctx)
	trigger := make(chan struct{}, 1)

	unsubscribe := l.feed.Subscribe(func(event model.RealtimeEvent) {
		if !relevant(event) {
			return
		}
		select {
		case trigger <- struct{}{}:
		default:
		}
	})

	go func() {
		defer unsubscribe()

		var state any
		for {
			next, err := refresh(ctx, state)
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Error(logArgs("Listener refresh failed", fields, zap.Error(err))...)
					if onErr != nil {
						onErr(err)
					}
				}
				return
			}
			state = next

			select {
			case <-ctx.Done():
				return
			case <-trigger:
			}
		}
	}()

	l.logger.Debug(logArgs("Listener attached", fields)...)
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			l.logger.Debug(logArgs("Listener detached", fields)...)
		})
	}
}

func sameSnapshot(a, b *repository.Snapshot) bool {
	if a.Exists != b.Exists {
		return false
	}
	if !a.UpdateTime.Equal(b.UpdateTime) {
		return false
	}
	return reflect.DeepEqual(a.Data, b.Data)
}

func logArgs(msg string, fields []any, extra ...any) []any {
	args := make([]any, 0, 1+len(fields)+len(extra))
	args = append(args, msg)
	args = append(args, fields...)
	return append(args, extra...)
}
