package memory

import (
	"context"
	"testing"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"
	"firestore-typed/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver() *Driver {
	return NewDriver(logger.NewNopLogger())
}

func TestDriver_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()

	snap, err := d.Get(ctx, "users/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	require.NoError(t, d.Set(ctx, "users/a", map[string]any{"name": "Ann", "n": int64(1)}, false))
	snap, err = d.Get(ctx, "users/a")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, "Ann", snap.Data["name"])
	assert.False(t, snap.CreateTime.IsZero())
	created := snap.CreateTime

	require.NoError(t, d.Set(ctx, "users/a", map[string]any{"n": repository.Transform{Kind: model.KindIncrement, Number: int64(2)}}, true))
	snap, err = d.Get(ctx, "users/a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ann", "n": int64(3)}, snap.Data)
	assert.Equal(t, created, snap.CreateTime)
	assert.True(t, snap.UpdateTime.After(created))

	require.NoError(t, d.Set(ctx, "users/a", map[string]any{"only": true}, false))
	snap, _ = d.Get(ctx, "users/a")
	assert.Equal(t, map[string]any{"only": true}, snap.Data)

	require.NoError(t, d.Delete(ctx, "users/a"))
	snap, _ = d.Get(ctx, "users/a")
	assert.False(t, snap.Exists)
}

func TestDriver_ReturnedDataIsIsolated(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()
	data := map[string]any{"nested": map[string]any{"k": "v"}}
	require.NoError(t, d.Set(ctx, "c/1", data, false))
	data["nested"].(map[string]any)["k"] = "changed"

	snap, _ := d.Get(ctx, "c/1")
	snap.Data["nested"].(map[string]any)["k"] = "mutated"

	again, _ := d.Get(ctx, "c/1")
	assert.Equal(t, "v", again.Data["nested"].(map[string]any)["k"])
}

func TestDriver_Add(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()

	path, err := d.Add(ctx, "users", map[string]any{"name": "Gen"})
	require.NoError(t, err)
	ref, err := model.PathToRef[any](path)
	require.NoError(t, err)
	assert.Equal(t, "users", ref.Collection.Path)
	assert.Len(t, ref.ID, 20)

	snap, _ := d.Get(ctx, path)
	assert.True(t, snap.Exists)
}

func TestDriver_Update(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()

	err := d.Update(ctx, "users/missing", []repository.FieldUpdate{{Path: model.Path("a"), Value: int64(1)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, d.Set(ctx, "users/a", map[string]any{"address": map[string]any{"city": "London", "zip": "E1"}}, false))
	require.NoError(t, d.Update(ctx, "users/a", []repository.FieldUpdate{
		{Path: model.Path("address", "city"), Value: "Paris"},
	}))
	snap, _ := d.Get(ctx, "users/a")
	assert.Equal(t, map[string]any{"city": "Paris", "zip": "E1"}, snap.Data["address"])
}

func TestDriver_InvalidPaths(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()

	_, err := d.Get(ctx, "users")
	assert.ErrorIs(t, err, errors.ErrInvalidPath)

	err = d.Set(ctx, "users/__bad__", map[string]any{}, false)
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
}

func TestDriver_GetAllAndQuery(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()
	require.NoError(t, d.Set(ctx, "users/a", map[string]any{"age": int64(30)}, false))
	require.NoError(t, d.Set(ctx, "users/b", map[string]any{"age": int64(20)}, false))
	require.NoError(t, d.Set(ctx, "users/a/posts/p", map[string]any{"title": "x"}, false))

	snaps, err := d.GetAll(ctx, []string{"users/b", "users/zzz", "users/a"})
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.True(t, snaps[0].Exists)
	assert.False(t, snaps[1].Exists)
	assert.Equal(t, "users/a", snaps[2].Path)

	docs, err := d.Query(ctx, repository.QuerySpec{
		Source: model.Source{Path: "users"},
		Orders: []repository.Order{{Field: model.Path("age"), Direction: model.Asc}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "users/b", docs[0].Path)

	docs, err = d.Query(ctx, repository.QuerySpec{Source: model.Source{Path: "posts", Group: true}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "users/a/posts/p", docs[0].Path)
}

func TestDriver_Batch(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()
	require.NoError(t, d.Set(ctx, "c/keep", map[string]any{"v": int64(1)}, false))

	b := d.NewBatch()
	b.Set("c/new", map[string]any{"v": int64(2)}, false)
	b.Update("c/missing", []repository.FieldUpdate{{Path: model.Path("v"), Value: int64(3)}})
	b.Delete("c/keep")
	err := b.Commit(ctx)
	require.ErrorIs(t, err, errors.ErrDocumentNotFound)

	// nothing was applied
	snap, _ := d.Get(ctx, "c/new")
	assert.False(t, snap.Exists)
	snap, _ = d.Get(ctx, "c/keep")
	assert.True(t, snap.Exists)

	b = d.NewBatch()
	b.Set("c/new", map[string]any{"v": int64(2)}, false)
	b.Update("c/new", []repository.FieldUpdate{{Path: model.Path("w"), Value: int64(3)}})
	b.Delete("c/keep")
	require.NoError(t, b.Commit(ctx))

	snap, _ = d.Get(ctx, "c/new")
	assert.Equal(t, map[string]any{"v": int64(2), "w": int64(3)}, snap.Data)
	snap, _ = d.Get(ctx, "c/keep")
	assert.False(t, snap.Exists)

	assert.ErrorIs(t, b.Commit(ctx), errors.ErrInvalidTransaction)
}

func TestDriver_TransactionRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()
	require.NoError(t, d.Set(ctx, "counters/c", map[string]any{"n": int64(0)}, false))

	attempts := 0
	err := d.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		attempts++
		snap, err := tx.Get(ctx, "counters/c")
		if err != nil {
			return err
		}
		if attempts == 1 {
			// a concurrent writer sneaks in between read and commit
			require.NoError(t, d.Set(ctx, "counters/c", map[string]any{"n": int64(10)}, false))
		}
		return tx.Set("counters/c", map[string]any{"n": snap.Data["n"].(int64) + 1}, false)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	snap, _ := d.Get(ctx, "counters/c")
	assert.Equal(t, int64(11), snap.Data["n"])
}

func TestDriver_TransactionGivesUp(t *testing.T) {
	ctx := context.Background()
	d := NewDriver(nil, WithMaxAttempts(2))

	attempts := 0
	err := d.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		attempts++
		if _, err := tx.Get(ctx, "c/x"); err != nil {
			return err
		}
		require.NoError(t, d.Set(ctx, "c/x", map[string]any{"a": int64(attempts)}, false))
		return tx.Delete("c/x")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransactionConflict)
	assert.Equal(t, 2, attempts)
}

func TestDriver_TransactionReadAfterWrite(t *testing.T) {
	d := newTestDriver()
	err := d.RunTransaction(context.Background(), func(ctx context.Context, tx repository.Transaction) error {
		require.NoError(t, tx.Set("c/1", map[string]any{}, false))
		_, err := tx.Get(ctx, "c/1")
		return err
	})
	assert.ErrorIs(t, err, errors.ErrInvalidTransaction)
}

func TestDriver_TransactionCallbackErrorAborts(t *testing.T) {
	d := newTestDriver()
	err := d.RunTransaction(context.Background(), func(ctx context.Context, tx repository.Transaction) error {
		require.NoError(t, tx.Set("c/1", map[string]any{"a": int64(1)}, false))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	snap, _ := d.Get(context.Background(), "c/1")
	assert.False(t, snap.Exists)
}

func TestDriver_ListenQuery(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()
	require.NoError(t, d.Set(ctx, "users/a", map[string]any{"n": int64(1)}, false))

	got := make(chan *repository.QuerySnapshot, 10)
	stop := d.ListenQuery(ctx, repository.QuerySpec{Source: model.Source{Path: "users"}},
		func(s *repository.QuerySnapshot) { got <- s }, nil)
	defer stop()

	first := wait(t, got)
	assert.Len(t, first.Docs, 1)

	require.NoError(t, d.Set(ctx, "users/a", map[string]any{"n": int64(2)}, true))
	second := wait(t, got)
	require.Len(t, second.Changes, 1)
	assert.Equal(t, model.ChangeModified, second.Changes[0].Type)
	assert.Equal(t, int64(2), second.Docs[0].Data["n"])
}

func TestDriver_ListenDocument(t *testing.T) {
	ctx := context.Background()
	d := newTestDriver()

	got := make(chan *repository.Snapshot, 10)
	stop := d.ListenDocument(ctx, "users/a", func(s *repository.Snapshot) { got <- s }, nil)
	defer stop()

	assert.False(t, wait(t, got).Exists)
	require.NoError(t, d.Set(ctx, "users/a", map[string]any{"n": int64(1)}, false))
	assert.True(t, wait(t, got).Exists)
}

func TestDriver_Close(t *testing.T) {
	d := newTestDriver()
	require.NoError(t, d.Close())
	_, err := d.Get(context.Background(), "a/b")
	assert.ErrorIs(t, err, errors.ErrDriverClosed)
	assert.ErrorIs(t, d.Set(context.Background(), "a/b", nil, false), errors.ErrDriverClosed)
}

func wait[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}
