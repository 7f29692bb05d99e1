package repository

import (
	"context"
	"time"

	"firestore-typed/internal/firestore/domain/model"
)

// Snapshot is one document as read from a driver. Data is in the driver's wire format.
type Snapshot struct {
	Path             string
	Exists           bool
	Data             map[string]any
	CreateTime       time.Time
	UpdateTime       time.Time
	ReadTime         time.Time
	FromCache        bool
	HasPendingWrites bool
}

// Change is a document movement between two query snapshots.
type Change struct {
	Type     model.ChangeType
	OldIndex int
	NewIndex int
	Doc      *Snapshot
}

// QuerySnapshot is one delivery of a query listener.
type QuerySnapshot struct {
	Docs     []*Snapshot
	Changes  []Change
	ReadTime time.Time
}

// FieldUpdate sets one field path to a wire value, which may be a transform.
type FieldUpdate struct {
	Path  model.FieldPath
	Value any
}

// Filter is a where clause with a wire-encoded value.
type Filter struct {
	Field model.FieldPath
	Op    model.Operator
	Value any
}

// Order is an order-by clause.
type Order struct {
	Field     model.FieldPath
	Direction model.Direction
}

// CursorSpec groups the wire values of one cursor method, in order-by order.
type CursorSpec struct {
	Method model.CursorMethod
	Values []any
}

// QuerySpec is a fully resolved query ready for a driver.
type QuerySpec struct {
	Source      model.Source
	Filters     []Filter
	Orders      []Order
	Limit       int
	LimitToLast bool
	Cursors     []CursorSpec
}

// SnapshotHandler receives document listener deliveries. A nil snapshot never arrives;
// missing documents come with Exists false.
type SnapshotHandler func(*Snapshot)

// QuerySnapshotHandler receives query listener deliveries.
type QuerySnapshotHandler func(*QuerySnapshot)

// ErrorHandler receives the error that terminated a listener.
type ErrorHandler func(error)

// StopFunc detaches a listener. It is safe to call more than once.
type StopFunc func()

// Driver is the port every backend implements. Paths are relative ("users/1").
type Driver interface {
	// Name identifies the backend in logs.
	Name() string
	// Codec describes how the backend represents references, timestamps and transforms.
	Codec() Codec

	Get(ctx context.Context, path string) (*Snapshot, error)
	// GetAll returns one snapshot per path, in order, including missing ones.
	GetAll(ctx context.Context, paths []string) ([]*Snapshot, error)
	Query(ctx context.Context, q QuerySpec) ([]*Snapshot, error)

	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	// Add stores data under a generated id and returns the new document path.
	Add(ctx context.Context, collectionPath string, data map[string]any) (string, error)
	// Update fails with errors.ErrDocumentNotFound when the document does not exist.
	Update(ctx context.Context, path string, updates []FieldUpdate) error
	Delete(ctx context.Context, path string) error

	ListenDocument(ctx context.Context, path string, onNext SnapshotHandler, onErr ErrorHandler) StopFunc
	ListenQuery(ctx context.Context, q QuerySpec, onNext QuerySnapshotHandler, onErr ErrorHandler) StopFunc

	// RunTransaction runs fn, retrying it when the backend detects a conflict.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
	NewBatch() WriteBatch

	Close() error
}

// Transaction is the per-attempt handle passed to RunTransaction callbacks. Reads must
// come before writes.
type Transaction interface {
	Get(ctx context.Context, path string) (*Snapshot, error)
	Set(path string, data map[string]any, merge bool) error
	Update(path string, updates []FieldUpdate) error
	Delete(path string) error
}

// WriteBatch accumulates writes that commit atomically.
type WriteBatch interface {
	Set(path string, data map[string]any, merge bool)
	Update(path string, updates []FieldUpdate)
	Delete(path string)
	Commit(ctx context.Context) error
}

// ChangeFeed fans document change events out to listeners.
type ChangeFeed interface {
	Publish(ctx context.Context, event model.RealtimeEvent) error
	Subscribe(fn func(model.RealtimeEvent)) (cancel func())
	Close() error
}
