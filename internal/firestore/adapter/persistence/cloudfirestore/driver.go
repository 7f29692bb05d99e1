// Package cloudfirestore drives the managed database through the official Go SDK.
// Queries, listeners, transactions and retries are all native.
package cloudfirestore

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"firestore-typed/internal/firestore/config"
	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"
	fspath "firestore-typed/internal/shared/firestore"
	"firestore-typed/internal/shared/logger"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// DefaultMaxAttempts matches the SDK's own transaction retry budget.
const DefaultMaxAttempts = 5

// Driver implements repository.Driver on a *firestore.Client.
type Driver struct {
	client      *firestore.Client
	codec       codec
	logger      logger.Logger
	maxAttempts int
	closed      atomic.Bool
}

var _ repository.Driver = (*Driver)(nil)

// Option customises a Driver.
type Option func(*Driver)

// WithMaxAttempts sets how often the SDK retries an aborted transaction.
func WithMaxAttempts(n int) Option {
	return func(d *Driver) { d.maxAttempts = n }
}

// Connect creates an SDK client for the configured project and database. When the
// emulator is enabled the client talks to it without credentials.
func Connect(ctx context.Context, cfg *config.FirestoreConfig, log logger.Logger, opts ...Option) (*Driver, error) {
	var clientOpts []option.ClientOption
	if addr := cfg.EmulatorAddr(); addr != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint(addr),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID, clientOpts...)
	if err != nil {
		return nil, errors.NewInfrastructureError("failed to create firestore client").WithCause(err)
	}
	return NewDriver(client, log, opts...), nil
}

// NewDriver wraps an existing client. Close closes it.
func NewDriver(client *firestore.Client, log logger.Logger, opts ...Option) *Driver {
	if log == nil {
		log = logger.NewNopLogger()
	}
	d := &Driver{
		client:      client,
		codec:       codec{client: client},
		logger:      log.WithComponent("cloudfirestore_driver"),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string { return "firestore" }

func (d *Driver) Codec() repository.Codec { return d.codec }

func (d *Driver) doc(path string) (*firestore.DocumentRef, error) {
	if d.closed.Load() {
		return nil, errors.ErrDriverClosed
	}
	if !fspath.IsDocumentPath(path) {
		return nil, errors.NewInvalidPathError(path, "expected a document path with an even number of segments")
	}
	if _, err := fspath.ParsePath(path); err != nil {
		return nil, err
	}
	return d.client.Doc(fspath.Relative(path)), nil
}

// mapError translates gRPC status codes into the shared error kinds.
func mapError(err error, path string) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return errors.NewDocumentNotFoundError(path).WithCause(err)
	case codes.Aborted:
		return errors.NewConflictError("transaction aborted on " + path).
			WithKind(errors.ErrTransactionConflict).WithCause(err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return errors.NewInvalidQueryError(status.Convert(err).Message()).WithCause(err)
	case codes.Canceled:
		return err
	}
	var app *errors.AppError
	if stderrors.As(err, &app) {
		return err
	}
	return errors.NewInfrastructureError("firestore request failed for " + path).WithCause(err)
}

func toSnapshot(path string, snap *firestore.DocumentSnapshot) *repository.Snapshot {
	out := &repository.Snapshot{Path: path}
	if snap == nil {
		return out
	}
	if snap.Ref != nil {
		out.Path = relativePath(snap.Ref)
	}
	out.ReadTime = snap.ReadTime
	if !snap.Exists() {
		return out
	}
	out.Exists = true
	out.Data = snap.Data()
	out.CreateTime = snap.CreateTime
	out.UpdateTime = snap.UpdateTime
	return out
}

func (d *Driver) Get(ctx context.Context, path string) (*repository.Snapshot, error) {
	ref, err := d.doc(path)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return toSnapshot(path, snap), nil
	}
	if err != nil {
		return nil, mapError(err, path)
	}
	return toSnapshot(path, snap), nil
}

func (d *Driver) GetAll(ctx context.Context, paths []string) ([]*repository.Snapshot, error) {
	refs := make([]*firestore.DocumentRef, len(paths))
	for i, p := range paths {
		ref, err := d.doc(p)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}
	if len(refs) == 0 {
		return []*repository.Snapshot{}, nil
	}
	snaps, err := d.client.GetAll(ctx, refs)
	if err != nil {
		return nil, mapError(err, "getAll")
	}
	out := make([]*repository.Snapshot, len(paths))
	for i, p := range paths {
		var snap *firestore.DocumentSnapshot
		if i < len(snaps) {
			snap = snaps[i]
		}
		out[i] = toSnapshot(fspath.Relative(p), snap)
	}
	return out, nil
}

func (d *Driver) Query(ctx context.Context, q repository.QuerySpec) ([]*repository.Snapshot, error) {
	if d.closed.Load() {
		return nil, errors.ErrDriverClosed
	}
	query, err := d.buildQuery(q)
	if err != nil {
		return nil, err
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []*repository.Snapshot
	for {
		snap, err := iter.Next()
		if stderrors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError(err, q.Source.Path)
		}
		out = append(out, toSnapshot("", snap))
	}
	return out, nil
}

func setOptions(merge bool) []firestore.SetOption {
	if merge {
		return []firestore.SetOption{firestore.MergeAll}
	}
	return nil
}

func setData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return data
}

func toUpdates(updates []repository.FieldUpdate) []firestore.Update {
	out := make([]firestore.Update, len(updates))
	for i, u := range updates {
		out[i] = firestore.Update{FieldPath: firestore.FieldPath(u.Path), Value: u.Value}
	}
	return out
}

func (d *Driver) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	ref, err := d.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, setData(data), setOptions(merge)...)
	return mapError(err, path)
}

func (d *Driver) Add(ctx context.Context, collectionPath string, data map[string]any) (string, error) {
	if d.closed.Load() {
		return "", errors.ErrDriverClosed
	}
	if !fspath.IsCollectionPath(collectionPath) {
		return "", errors.NewInvalidPathError(collectionPath, "expected a collection path with an odd number of segments")
	}
	ref, _, err := d.client.Collection(fspath.Relative(collectionPath)).Add(ctx, setData(data))
	if err != nil {
		return "", mapError(err, collectionPath)
	}
	return relativePath(ref), nil
}

func (d *Driver) Update(ctx context.Context, path string, updates []repository.FieldUpdate) error {
	ref, err := d.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, toUpdates(updates))
	return mapError(err, path)
}

func (d *Driver) Delete(ctx context.Context, path string) error {
	ref, err := d.doc(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return mapError(err, path)
}

// Close closes the SDK client. Listeners still running end with an error.
func (d *Driver) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.logger.Debug("Closing firestore client", zap.String("driver", d.Name()))
	return d.client.Close()
}

func changeType(kind firestore.DocumentChangeKind) model.ChangeType {
	switch kind {
	case firestore.DocumentAdded:
		return model.ChangeAdded
	case firestore.DocumentRemoved:
		return model.ChangeRemoved
	default:
		return model.ChangeModified
	}
}
