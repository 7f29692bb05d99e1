package usecase

import (
	"context"
	"sync"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"
)

// Unsubscribe detaches a listener. Calling it more than once is harmless.
type Unsubscribe func()

func noop() {}

func report(onError func(error), err error) {
	if onError != nil {
		onError(err)
	}
}

// OnGet delivers the document now and after every change. A missing document is
// delivered as nil.
func OnGet[T any](ctx context.Context, c *Client, ref model.Ref[T], onResult func(*model.Doc[T]), onError func(error)) Unsubscribe {
	stop := c.driver.ListenDocument(ctx, ref.Path(), func(snap *repository.Snapshot) {
		if !snap.Exists {
			onResult(nil)
			return
		}
		doc, err := toDoc(c, ref, snap)
		if err != nil {
			report(onError, err)
			return
		}
		onResult(&doc)
	}, onError)
	return Unsubscribe(stop)
}

// OnAll delivers every document of the collection now and whenever the set changes.
func OnAll[T any](ctx context.Context, c *Client, collection model.Queryable[T], onResult func([]model.Doc[T], model.SnapshotInfo[T]), onError func(error)) Unsubscribe {
	return OnQuery(ctx, c, collection, nil, onResult, onError)
}

// OnQuery delivers the query results now and whenever they change.
func OnQuery[T any](
	ctx context.Context,
	c *Client,
	collection model.Queryable[T],
	constraints []model.Constraint,
	onResult func([]model.Doc[T], model.SnapshotInfo[T]),
	onError func(error),
) Unsubscribe {
	spec, err := c.BuildQuery(collection.Source(), constraints...)
	if err != nil {
		report(onError, err)
		return noop
	}
	stop := c.driver.ListenQuery(ctx, spec, func(qs *repository.QuerySnapshot) {
		docs, err := toDocs(c, collection, qs.Docs)
		if err != nil {
			report(onError, err)
			return
		}
		changes := qs.Changes
		info := model.NewSnapshotInfo(len(docs), func() []model.DocChange[T] {
			return docChanges(c, collection, docs, changes)
		})
		onResult(docs, info)
	}, onError)
	return Unsubscribe(stop)
}

// docChanges maps driver changes onto typed documents. Removed documents are no longer
// part of docs and are restored from the change itself.
func docChanges[T any](c *Client, collection model.Queryable[T], docs []model.Doc[T], changes []repository.Change) []model.DocChange[T] {
	out := make([]model.DocChange[T], 0, len(changes))
	for _, change := range changes {
		dc := model.DocChange[T]{Type: change.Type, OldIndex: change.OldIndex, NewIndex: change.NewIndex}
		if change.Type != model.ChangeRemoved && change.NewIndex >= 0 && change.NewIndex < len(docs) {
			dc.Doc = docs[change.NewIndex]
		} else if change.Doc != nil {
			doc, err := snapToDoc(c, collection, change.Doc)
			if err != nil {
				c.logger.Warn("Failed to decode changed document", "path", change.Doc.Path, "error", err)
				continue
			}
			dc.Doc = doc
		}
		out = append(out, dc)
	}
	return out
}

// OnGetMany listens to the documents with the given ids and delivers them, in order,
// once every document has reported at least once and after each change. With the
// failing policy a missing document ends the subscription with an error.
func OnGetMany[T any](
	ctx context.Context,
	c *Client,
	collection model.Collection[T],
	ids []string,
	onResult func([]model.Doc[T]),
	onError func(error),
	onMissing ...MissingPolicy[T],
) Unsubscribe {
	if len(ids) == 0 {
		onResult([]model.Doc[T]{})
		return noop
	}
	policy := policyOf(onMissing)

	ctx, cancel := context.WithCancel(ctx)
	var (
		// mu guards the listener state. emit serialises deliveries so they reach the
		// caller in order; it is never held by stopAll, so callbacks may unsubscribe.
		mu      sync.Mutex
		emit    sync.Mutex
		snaps   = make(map[string]*repository.Snapshot, len(ids))
		stops   []repository.StopFunc
		done    bool
		stopped bool
	)
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	stopAll := func() {
		cancel()
		mu.Lock()
		pending := stops
		stops = nil
		stopped = true
		mu.Unlock()
		for _, stop := range pending {
			stop()
		}
	}

	fail := func(err error) {
		emit.Lock()
		defer emit.Unlock()
		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		done = true
		mu.Unlock()
		report(onError, err)
		go stopAll()
	}

	// build turns the current snapshots into the delivery. missing reports the first
	// absent id under the failing policy.
	build := func(current []*repository.Snapshot) (docs []model.Doc[T], missing bool, err error) {
		docs = make([]model.Doc[T], 0, len(ids))
		for i, id := range ids {
			ref := collection.Ref(id)
			snap := current[i]
			if snap.Exists {
				doc, err := toDoc(c, ref, snap)
				if err != nil {
					return nil, false, err
				}
				docs = append(docs, doc)
				continue
			}
			switch {
			case policy.ignore:
			case policy.fill != nil:
				docs = append(docs, model.NewDoc(ref, policy.fill(id), metaOf(snap)))
			default:
				return nil, true, errors.NewMissingDocumentError(id)
			}
		}
		return docs, false, nil
	}

	for _, id := range unique {
		stop := c.driver.ListenDocument(ctx, collection.Ref(id).Path(), func(snap *repository.Snapshot) {
			emit.Lock()
			defer emit.Unlock()

			mu.Lock()
			if done || ctx.Err() != nil {
				mu.Unlock()
				return
			}
			snaps[id] = snap
			if len(snaps) < len(unique) {
				mu.Unlock()
				return
			}
			current := make([]*repository.Snapshot, len(ids))
			for i, want := range ids {
				current[i] = snaps[want]
			}
			mu.Unlock()

			docs, missing, err := build(current)
			if missing {
				mu.Lock()
				done = true
				mu.Unlock()
				report(onError, err)
				go stopAll()
				return
			}
			if err != nil {
				report(onError, err)
				return
			}
			onResult(docs)
		}, fail)

		mu.Lock()
		if stopped {
			mu.Unlock()
			stop()
			continue
		}
		stops = append(stops, stop)
		mu.Unlock()
	}

	var once sync.Once
	return func() {
		once.Do(stopAll)
	}
}
