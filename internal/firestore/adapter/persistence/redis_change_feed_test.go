package persistence

import (
	"context"
	"strconv"
	"testing"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/shared/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestRedisClient creates a Redis client on the test database.
func createTestRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "localhost:6379",
		DB:           15,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func TestEncodeDecodeEvent(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	event := model.RealtimeEvent{
		Type:           model.EventTypeUpdated,
		DocumentPath:   "users/a",
		CollectionPath: "users",
		Timestamp:      at,
		Origin:         "proc-1",
	}

	// Redis hands every field back as a string.
	values := map[string]interface{}{}
	for k, v := range encodeEvent(event) {
		if n, ok := v.(int64); ok {
			values[k] = strconv.FormatInt(n, 10)
			continue
		}
		values[k] = v
	}
	assert.Equal(t, event, decodeEvent(values))
}

func TestRedisChangeFeed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := createTestRedisClient()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available for testing:", err)
	}
	defer func() {
		client.Del(context.Background(), "test:changes")
		client.Close()
	}()

	log := logger.NewNopLogger()
	local := NewRedisChangeFeed(client, "test:changes", 100, log)
	remote := NewRedisChangeFeed(client, "test:changes", 100, log)
	defer local.Close()
	defer remote.Close()

	got := make(chan model.RealtimeEvent, 10)
	unsubscribe := remote.Subscribe(func(e model.RealtimeEvent) { got <- e })
	defer unsubscribe()
	localGot := make(chan model.RealtimeEvent, 10)
	local.Subscribe(func(e model.RealtimeEvent) { localGot <- e })

	// let the remote reader block on the stream tail
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, local.Publish(ctx, model.RealtimeEvent{
		Type:           model.EventTypeCreated,
		DocumentPath:   "users/a",
		CollectionPath: "users",
	}))

	assert.Equal(t, "users/a", receive(t, got).DocumentPath)
	assert.Equal(t, local.Origin(), receive(t, localGot).Origin)
	assertNothing(t, localGot)

	events, lastID, err := remote.EventsSince(ctx, "0", 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.NotEqual(t, "0", lastID)

	_, err = local.Trim(ctx)
	require.NoError(t, err)
}
