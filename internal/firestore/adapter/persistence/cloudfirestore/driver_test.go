package cloudfirestore

import (
	"context"
	"os"
	"testing"
	"time"

	"firestore-typed/internal/firestore/config"
	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"
	fspath "firestore-typed/internal/shared/firestore"
	"firestore-typed/internal/shared/logger"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// offlineClient builds refs and sentinels without contacting a server.
func offlineClient(t *testing.T) *firestore.Client {
	t.Helper()
	client, err := firestore.NewClient(context.Background(), "offline-project",
		option.WithEndpoint("localhost:1"),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCodec(t *testing.T) {
	c := codec{client: offlineClient(t)}

	ref, err := c.EncodeRef("users/a/posts/p")
	require.NoError(t, err)
	path, ok := c.DecodeRef(ref)
	assert.True(t, ok)
	assert.Equal(t, "users/a/posts/p", path)

	_, err = c.EncodeRef("users")
	assert.ErrorIs(t, err, errors.ErrInvalidPath)

	_, ok = c.DecodeRef("users/a")
	assert.False(t, ok)

	v, err := c.EncodeTransform(repository.Transform{Kind: model.KindRemove})
	require.NoError(t, err)
	assert.Equal(t, firestore.Delete, v)
	v, err = c.EncodeTransform(repository.Transform{Kind: model.KindServerDate})
	require.NoError(t, err)
	assert.Equal(t, firestore.ServerTimestamp, v)
	v, err = c.EncodeTransform(repository.Transform{Kind: model.KindIncrement, Number: int64(2)})
	require.NoError(t, err)
	assert.IsType(t, firestore.Increment(int64(1)), v)
	v, err = c.EncodeTransform(repository.Transform{Kind: model.KindArrayUnion, Values: []any{"a"}})
	require.NoError(t, err)
	assert.IsType(t, firestore.ArrayUnion(), v)

	_, err = c.EncodeTransform(repository.Transform{Kind: "bogus"})
	assert.ErrorIs(t, err, errors.ErrUnsupportedValue)

	now := time.Now()
	decoded, ok := c.DecodeTime(c.EncodeTime(now))
	assert.True(t, ok)
	assert.Equal(t, now, decoded)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "users/a"))
	assert.ErrorIs(t, mapError(status.Error(codes.NotFound, "gone"), "users/a"), errors.ErrDocumentNotFound)
	assert.ErrorIs(t, mapError(status.Error(codes.Aborted, "contention"), "users/a"), errors.ErrTransactionConflict)
	assert.ErrorIs(t, mapError(status.Error(codes.FailedPrecondition, "needs index"), "users"), errors.ErrInvalidQuery)
	assert.ErrorIs(t, mapError(errors.ErrDriverClosed, "users/a"), errors.ErrDriverClosed)
}

func TestBuildQuery_DocIDOperands(t *testing.T) {
	d := NewDriver(offlineClient(t), logger.NewNopLogger())

	v, err := d.docIDOperand([]any{"a", "teams/t/users/b"}, model.Source{Path: "users"})
	require.NoError(t, err)
	list := v.([]any)
	assert.Equal(t, "users/a", relativePath(list[0].(*firestore.DocumentRef)))
	assert.Equal(t, "teams/t/users/b", relativePath(list[1].(*firestore.DocumentRef)))

	_, err = d.docIDOperand("a", model.Source{Path: "users", Group: true})
	assert.ErrorIs(t, err, errors.ErrInvalidQuery)

	_, err = d.buildQuery(repository.QuerySpec{Source: model.Source{Path: "users/a"}})
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
}

// Everything below talks to the emulator.

func emulatorDriver(t *testing.T) *Driver {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	cfg := config.DefaultFirestoreConfig()
	cfg.Driver = config.DriverFirestore
	cfg.ProjectID = "demo-firestore-typed"
	d, err := Connect(context.Background(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestEmulator_CRUDAndQuery(t *testing.T) {
	d := emulatorDriver(t)
	ctx := context.Background()
	col := "typed_" + fspath.AutoID()

	require.NoError(t, d.Set(ctx, col+"/a", map[string]any{"n": int64(1), "tags": []any{"x"}}, false))
	require.NoError(t, d.Set(ctx, col+"/b", map[string]any{"n": int64(2)}, false))
	require.NoError(t, d.Set(ctx, col+"/a", map[string]any{"n": firestore.Increment(int64(2))}, true))

	snap, err := d.Get(ctx, col+"/a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Data["n"])

	missing, err := d.Get(ctx, col+"/missing")
	require.NoError(t, err)
	assert.False(t, missing.Exists)

	err = d.Update(ctx, col+"/missing", []repository.FieldUpdate{{Path: model.Path("n"), Value: int64(1)}})
	assert.ErrorIs(t, err, errors.ErrDocumentNotFound)

	docs, err := d.Query(ctx, repository.QuerySpec{
		Source: model.Source{Path: col},
		Orders: []repository.Order{{Field: model.Path("n"), Direction: model.Desc}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, col+"/a", docs[0].Path)

	snaps, err := d.GetAll(ctx, []string{col + "/b", col + "/missing"})
	require.NoError(t, err)
	assert.True(t, snaps[0].Exists)
	assert.False(t, snaps[1].Exists)

	path, err := d.Add(ctx, col, map[string]any{"n": int64(9)})
	require.NoError(t, err)
	require.NoError(t, d.Delete(ctx, path))
}

func TestEmulator_TransactionAndBatch(t *testing.T) {
	d := emulatorDriver(t)
	ctx := context.Background()
	col := "typed_" + fspath.AutoID()
	require.NoError(t, d.Set(ctx, col+"/a", map[string]any{"n": int64(1)}, false))

	err := d.RunTransaction(ctx, func(ctx context.Context, tx repository.Transaction) error {
		snap, err := tx.Get(ctx, col+"/a")
		if err != nil {
			return err
		}
		return tx.Set(col+"/a", map[string]any{"n": snap.Data["n"].(int64) + 1}, false)
	})
	require.NoError(t, err)

	b := d.NewBatch()
	b.Set(col+"/b", map[string]any{"n": int64(1)}, false)
	b.Update(col+"/missing", []repository.FieldUpdate{{Path: model.Path("n"), Value: int64(1)}})
	assert.Error(t, b.Commit(ctx))

	snap, err := d.Get(ctx, col+"/b")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	snap, _ = d.Get(ctx, col+"/a")
	assert.Equal(t, int64(2), snap.Data["n"])
}

func TestEmulator_Listen(t *testing.T) {
	d := emulatorDriver(t)
	ctx := context.Background()
	col := "typed_" + fspath.AutoID()

	got := make(chan *repository.QuerySnapshot, 10)
	stop := d.ListenQuery(ctx, repository.QuerySpec{Source: model.Source{Path: col}},
		func(s *repository.QuerySnapshot) { got <- s }, func(err error) { t.Error(err) })
	defer stop()

	first := <-got
	assert.Empty(t, first.Docs)

	require.NoError(t, d.Set(ctx, col+"/a", map[string]any{"n": int64(1)}, false))
	select {
	case next := <-got:
		require.Len(t, next.Changes, 1)
		assert.Equal(t, model.ChangeAdded, next.Changes[0].Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot after write")
	}
}
