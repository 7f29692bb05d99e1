package service

import (
	"reflect"
	"slices"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
)

// DiffSnapshots lists the changes that turn prev into next. Removals come first with
// indexes into prev, then additions and modifications with indexes into next, the order
// Firestore reports them in. A nil prev reports every document as added.
func DiffSnapshots(prev, next []*repository.Snapshot) []repository.Change {
	prevIndex := make(map[string]int, len(prev))
	for i, doc := range prev {
		prevIndex[doc.Path] = i
	}
	nextIndex := make(map[string]int, len(next))
	for i, doc := range next {
		nextIndex[doc.Path] = i
	}

	var changes []repository.Change

	// Indexes shift as changes are applied one by one.
	working := make([]string, len(prev))
	for i, doc := range prev {
		working[i] = doc.Path
	}
	for _, doc := range prev {
		if _, ok := nextIndex[doc.Path]; ok {
			continue
		}
		idx := slices.Index(working, doc.Path)
		working = slices.Delete(working, idx, idx+1)
		changes = append(changes, repository.Change{
			Type:     model.ChangeRemoved,
			OldIndex: idx,
			NewIndex: -1,
			Doc:      doc,
		})
	}

	for i, doc := range next {
		pi, existed := prevIndex[doc.Path]
		if !existed {
			working = slices.Insert(working, i, doc.Path)
			changes = append(changes, repository.Change{
				Type:     model.ChangeAdded,
				OldIndex: -1,
				NewIndex: i,
				Doc:      doc,
			})
			continue
		}
		old := prev[pi]
		oldIdx := slices.Index(working, doc.Path)
		if oldIdx == i && !documentChanged(old, doc) {
			continue
		}
		working = slices.Delete(working, oldIdx, oldIdx+1)
		working = slices.Insert(working, i, doc.Path)
		changes = append(changes, repository.Change{
			Type:     model.ChangeModified,
			OldIndex: oldIdx,
			NewIndex: i,
			Doc:      doc,
		})
	}
	return changes
}

func documentChanged(a, b *repository.Snapshot) bool {
	if !a.UpdateTime.IsZero() && !b.UpdateTime.IsZero() && !a.UpdateTime.Equal(b.UpdateTime) {
		return true
	}
	return !reflect.DeepEqual(a.Data, b.Data)
}
