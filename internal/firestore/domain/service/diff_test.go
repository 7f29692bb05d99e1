package service

import (
	"testing"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"

	"github.com/stretchr/testify/assert"
)

func snap(path string, data map[string]any) *repository.Snapshot {
	return &repository.Snapshot{Path: path, Exists: true, Data: data}
}

func TestDiffSnapshotsInitial(t *testing.T) {
	a, b := snap("c/a", nil), snap("c/b", nil)

	changes := DiffSnapshots(nil, []*repository.Snapshot{a, b})

	assert.Equal(t, []repository.Change{
		{Type: model.ChangeAdded, OldIndex: -1, NewIndex: 0, Doc: a},
		{Type: model.ChangeAdded, OldIndex: -1, NewIndex: 1, Doc: b},
	}, changes)
}

func TestDiffSnapshots(t *testing.T) {
	a := snap("c/a", map[string]any{"v": int64(1)})
	b := snap("c/b", map[string]any{"v": int64(2)})
	c := snap("c/c", map[string]any{"v": int64(3)})
	b2 := snap("c/b", map[string]any{"v": int64(20)})
	d := snap("c/d", nil)

	changes := DiffSnapshots([]*repository.Snapshot{a, b, c}, []*repository.Snapshot{b2, c, d})

	assert.Equal(t, []repository.Change{
		{Type: model.ChangeRemoved, OldIndex: 0, NewIndex: -1, Doc: a},
		{Type: model.ChangeModified, OldIndex: 0, NewIndex: 0, Doc: b2},
		{Type: model.ChangeAdded, OldIndex: -1, NewIndex: 2, Doc: d},
	}, changes)
}

func TestDiffSnapshotsReorder(t *testing.T) {
	a, b := snap("c/a", nil), snap("c/b", nil)

	changes := DiffSnapshots([]*repository.Snapshot{a, b}, []*repository.Snapshot{b, a})

	assert.Equal(t, []repository.Change{
		{Type: model.ChangeModified, OldIndex: 1, NewIndex: 0, Doc: b},
	}, changes)
}

func TestDiffSnapshotsNoChange(t *testing.T) {
	a := snap("c/a", map[string]any{"v": "x"})
	assert.Empty(t, DiffSnapshots([]*repository.Snapshot{a}, []*repository.Snapshot{snap("c/a", map[string]any{"v": "x"})}))
}
