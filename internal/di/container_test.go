package di

import (
	"context"
	"reflect"
	"testing"

	"firestore-typed/internal/firestore/config"
	"firestore-typed/internal/firestore/usecase"
	"firestore-typed/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter struct{ name string }

func TestContainer_RegisterResolve(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register(&greeter{name: "hi"}))

	g, err := GetService[*greeter](c)
	require.NoError(t, err)
	assert.Equal(t, "hi", g.name)

	_, err = GetService[*usecase.Client](c)
	assert.Error(t, err)
}

func TestContainer_Factory(t *testing.T) {
	c := NewContainer()
	calls := 0
	require.NoError(t, c.RegisterFactory(reflect.TypeOf(greeter{}), func() (interface{}, error) {
		calls++
		return &greeter{name: "built"}, nil
	}))

	for i := 0; i < 2; i++ {
		g, err := GetService[*greeter](c)
		require.NoError(t, err)
		assert.Equal(t, "built", g.name)
	}
	assert.Equal(t, 1, calls)
}

func TestContainer_InitializeFirestore(t *testing.T) {
	c := NewContainer()
	c.Logger = logger.NewNopLogger()

	require.NoError(t, c.InitializeFirestore(context.Background(), config.DefaultFirestoreConfig()))
	require.NotNil(t, c.GetFirestoreModule())
	assert.NoError(t, c.HealthCheck(context.Background()))

	client, err := GetService[*usecase.Client](c)
	require.NoError(t, err)
	assert.Equal(t, "memory", client.Driver().Name())

	assert.Error(t, c.InitializeFirestore(context.Background(), config.DefaultFirestoreConfig()))

	require.NoError(t, c.Close())
	assert.Nil(t, c.GetFirestoreModule())
	assert.Error(t, c.HealthCheck(context.Background()))
}

func TestContainer_InitializeFirestore_Disabled(t *testing.T) {
	c := NewContainer()
	c.Logger = logger.NewNopLogger()
	cfg := config.DefaultFirestoreConfig()
	cfg.Enabled = false

	assert.Error(t, c.InitializeFirestore(context.Background(), cfg))
	assert.Nil(t, c.GetFirestoreModule())
}
