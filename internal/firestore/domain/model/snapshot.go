package model

// ChangeType classifies a document change between two query snapshots.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// DocChange describes how one document moved between snapshots. OldIndex is -1 for added
// documents and NewIndex is -1 for removed ones.
type DocChange[T any] struct {
	Type     ChangeType `json:"type"`
	OldIndex int        `json:"oldIndex"`
	NewIndex int        `json:"newIndex"`
	Doc      Doc[T]     `json:"doc"`
}

// SnapshotInfo accompanies every query listener delivery.
type SnapshotInfo[T any] struct {
	Size    int
	Empty   bool
	changes func() []DocChange[T]
}

// NewSnapshotInfo builds the info; changes is evaluated lazily.
func NewSnapshotInfo[T any](size int, changes func() []DocChange[T]) SnapshotInfo[T] {
	return SnapshotInfo[T]{Size: size, Empty: size == 0, changes: changes}
}

// Changes returns the changes since the previous delivery. The first delivery reports
// every document as added.
func (s SnapshotInfo[T]) Changes() []DocChange[T] {
	if s.changes == nil {
		return nil
	}
	return s.changes()
}
