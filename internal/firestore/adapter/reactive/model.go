package reactive

import (
	"context"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/usecase"
	"firestore-typed/internal/shared/logger"
)

// Model exposes the typed operations on one collection as reactive states owned by a
// scope.
type Model[T any] struct {
	scope      *Scope
	client     *usecase.Client
	collection model.Collection[T]
	logger     logger.Logger
}

// NewModel binds collection to client. Every state it returns is torn down with scope.
func NewModel[T any](scope *Scope, client *usecase.Client, collection model.Collection[T], log logger.Logger) *Model[T] {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Model[T]{
		scope:      scope,
		client:     client,
		collection: collection,
		logger:     log.WithComponent("reactive_model").WithFields(map[string]interface{}{"collection": collection.Path}),
	}
}

// Collection returns the bound collection.
func (m *Model[T]) Collection() model.Collection[T] {
	return m.collection
}

func (m *Model[T]) Add(data T) *State[model.Ref[T]] {
	return Await(m.scope, func(ctx context.Context) (model.Ref[T], error) {
		return usecase.Add(ctx, m.client, m.collection, data)
	}, Options[model.Ref[T]]{})
}

func (m *Model[T]) All() *State[[]model.Doc[T]] {
	return Await(m.scope, func(ctx context.Context) ([]model.Doc[T], error) {
		return usecase.All(ctx, m.client, m.collection)
	}, Options[[]model.Doc[T]]{Default: []model.Doc[T]{}})
}

// Get reads the document with the signal's id, again whenever the id changes.
func (m *Model[T]) Get(id *Signal[string]) *State[*model.Doc[T]] {
	return Run(m.scope, id, nil, func(ctx context.Context, id string) (*model.Doc[T], error) {
		return usecase.Get(ctx, m.client, m.collection.Ref(id))
	})
}

func (m *Model[T]) GetMany(ids *Signal[[]string], onMissing ...usecase.MissingPolicy[T]) *State[[]model.Doc[T]] {
	return Run(m.scope, ids, []model.Doc[T]{}, func(ctx context.Context, ids []string) ([]model.Doc[T], error) {
		return usecase.GetMany(ctx, m.client, m.collection, ids, onMissing...)
	})
}

func (m *Model[T]) Query(constraints *Signal[[]model.Constraint]) *State[[]model.Doc[T]] {
	return Run(m.scope, constraints, []model.Doc[T]{}, func(ctx context.Context, constraints []model.Constraint) ([]model.Doc[T], error) {
		return usecase.Query(ctx, m.client, m.collection, constraints...)
	})
}

// GetInRadius re-runs when either the center or the radius changes. maxLimit <= 0
// means usecase.DefaultRadiusLimit.
func (m *Model[T]) GetInRadius(center *Signal[[2]float64], radiusM *Signal[float64], maxLimit int) *State[[]model.Doc[T]] {
	area := Join(m.scope, center, radiusM)
	return Run(m.scope, area, []model.Doc[T]{}, func(ctx context.Context, a Pair[[2]float64, float64]) ([]model.Doc[T], error) {
		return usecase.GetInRadius(ctx, m.client, m.collection, a.First, a.Second, maxLimit)
	})
}

func (m *Model[T]) OnAll() *State[[]model.Doc[T]] {
	return Follow(m.scope, Static(struct{}{}), []model.Doc[T]{},
		func(ctx context.Context, _ struct{}, onResult func([]model.Doc[T]), onError func(error)) func() {
			return usecase.OnAll(ctx, m.client, m.collection, func(docs []model.Doc[T], _ model.SnapshotInfo[T]) {
				onResult(docs)
			}, onError)
		})
}

// OnGet follows the document with the signal's id. A new id replaces the listener.
func (m *Model[T]) OnGet(id *Signal[string]) *State[*model.Doc[T]] {
	return Follow(m.scope, id, nil,
		func(ctx context.Context, id string, onResult func(*model.Doc[T]), onError func(error)) func() {
			m.logger.Debug("Subscribing", "id", id)
			return usecase.OnGet(ctx, m.client, m.collection.Ref(id), onResult, onError)
		})
}

func (m *Model[T]) OnGetMany(ids *Signal[[]string], onMissing ...usecase.MissingPolicy[T]) *State[[]model.Doc[T]] {
	return Follow(m.scope, ids, []model.Doc[T]{},
		func(ctx context.Context, ids []string, onResult func([]model.Doc[T]), onError func(error)) func() {
			m.logger.Debug("Subscribing", "ids", len(ids))
			return usecase.OnGetMany(ctx, m.client, m.collection, ids, onResult, onError, onMissing...)
		})
}

func (m *Model[T]) OnQuery(constraints *Signal[[]model.Constraint]) *State[[]model.Doc[T]] {
	return Follow(m.scope, constraints, []model.Doc[T]{},
		func(ctx context.Context, constraints []model.Constraint, onResult func([]model.Doc[T]), onError func(error)) func() {
			m.logger.Debug("Subscribing", "constraints", len(constraints))
			return usecase.OnQuery(ctx, m.client, m.collection, constraints, func(docs []model.Doc[T], _ model.SnapshotInfo[T]) {
				onResult(docs)
			}, onError)
		})
}

func (m *Model[T]) Set(id string, data T) *State[bool] {
	return AwaitFlag(m.scope, func(ctx context.Context) error {
		return usecase.Set(ctx, m.client, m.collection.Ref(id), data)
	})
}

func (m *Model[T]) Upset(id string, data T) *State[bool] {
	return AwaitFlag(m.scope, func(ctx context.Context) error {
		return usecase.Upset(ctx, m.client, m.collection.Ref(id), data)
	})
}

func (m *Model[T]) Update(id string, fields ...model.Field) *State[bool] {
	return AwaitFlag(m.scope, func(ctx context.Context) error {
		return usecase.Update(ctx, m.client, m.collection.Ref(id), fields...)
	})
}

// UpdateData updates with a partial body whose keys are dotted field paths.
func (m *Model[T]) UpdateData(id string, data model.Data) *State[bool] {
	return AwaitFlag(m.scope, func(ctx context.Context) error {
		return usecase.UpdateData(ctx, m.client, m.collection.Ref(id), data)
	})
}

func (m *Model[T]) Remove(id string) *State[bool] {
	return AwaitFlag(m.scope, func(ctx context.Context) error {
		return usecase.Remove(ctx, m.client, m.collection.Ref(id))
	})
}
