package persistence

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChangeFeed distributes document changes between processes sharing a backend
// through a Redis stream. Local subscribers are notified immediately; the stream reader
// skips entries this process published.
type RedisChangeFeed struct {
	client    *redis.Client
	logger    logger.Logger
	stream    string
	maxLength int64
	origin    string

	mu       sync.RWMutex
	handlers map[string]func(model.RealtimeEvent)

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ repository.ChangeFeed = (*RedisChangeFeed)(nil)

// NewRedisChangeFeed creates a feed on stream. maxLength caps the stream approximately.
func NewRedisChangeFeed(client *redis.Client, stream string, maxLength int64, log logger.Logger) *RedisChangeFeed {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisChangeFeed{
		client:    client,
		logger:    log,
		stream:    stream,
		maxLength: maxLength,
		origin:    uuid.NewString(),
		handlers:  make(map[string]func(model.RealtimeEvent)),
		done:      make(chan struct{}),
	}
}

// Origin identifies this process in published entries.
func (r *RedisChangeFeed) Origin() string {
	return r.origin
}

// Publish notifies local subscribers and appends the event to the stream.
func (r *RedisChangeFeed) Publish(ctx context.Context, event model.RealtimeEvent) error {
	event.Origin = r.origin
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	r.dispatch(event)

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: encodeEvent(event),
	}
	if r.maxLength > 0 {
		args.MaxLen = r.maxLength
		args.Approx = true
	}
	if _, err := r.client.XAdd(ctx, args).Result(); err != nil {
		r.logger.Error("Failed to publish change to Redis",
			zap.String("stream", r.stream),
			zap.String("documentPath", event.DocumentPath),
			zap.Error(err))
		return err
	}
	return nil
}

// Subscribe registers fn. The stream reader starts with the first subscription.
func (r *RedisChangeFeed) Subscribe(fn func(model.RealtimeEvent)) func() {
	id := uuid.NewString()
	r.mu.Lock()
	r.handlers[id] = fn
	r.mu.Unlock()

	r.startOnce.Do(r.start)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.handlers, id)
			r.mu.Unlock()
		})
	}
}

// Close stops the stream reader.
func (r *RedisChangeFeed) Close() error {
	started := false
	r.startOnce.Do(func() {})
	r.mu.RLock()
	if r.cancel != nil {
		started = true
		r.cancel()
	}
	r.mu.RUnlock()
	if started {
		<-r.done
	}
	return nil
}

// EventsSince reads up to count stream entries after lastID ("0" for all), oldest first.
// It returns the id of the last entry read.
func (r *RedisChangeFeed) EventsSince(ctx context.Context, lastID string, count int64) ([]model.RealtimeEvent, string, error) {
	if lastID == "" {
		lastID = "0"
	}
	messages, err := r.client.XRangeN(ctx, r.stream, "("+lastID, "+", count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, lastID, nil
		}
		return nil, lastID, err
	}
	events := make([]model.RealtimeEvent, 0, len(messages))
	for _, msg := range messages {
		events = append(events, decodeEvent(msg.Values))
		lastID = msg.ID
	}
	return events, lastID, nil
}

// Trim caps the stream to maxLength entries and returns how many were removed.
func (r *RedisChangeFeed) Trim(ctx context.Context) (int64, error) {
	if r.maxLength <= 0 {
		return 0, nil
	}
	return r.client.XTrimMaxLen(ctx, r.stream, r.maxLength).Result()
}

func (r *RedisChangeFeed) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	go r.read(ctx)
}

func (r *RedisChangeFeed) read(ctx context.Context) {
	defer close(r.done)
	lastID := "$"
	for {
		res, err := r.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{r.stream, lastID},
			Count:   100,
			Block:   2 * time.Second,
		}).Result()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			r.logger.Warn("Failed to read change stream",
				zap.String("stream", r.stream),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				event := decodeEvent(msg.Values)
				if event.Origin == r.origin {
					continue
				}
				r.dispatch(event)
			}
		}
	}
}

func (r *RedisChangeFeed) dispatch(event model.RealtimeEvent) {
	r.mu.RLock()
	handlers := make([]func(model.RealtimeEvent), 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

func encodeEvent(event model.RealtimeEvent) map[string]interface{} {
	return map[string]interface{}{
		"type":           string(event.Type),
		"documentPath":   event.DocumentPath,
		"collectionPath": event.CollectionPath,
		"timestamp":      event.Timestamp.UnixNano(),
		"origin":         event.Origin,
	}
}

func decodeEvent(values map[string]interface{}) model.RealtimeEvent {
	event := model.RealtimeEvent{}
	if s, ok := values["type"].(string); ok {
		event.Type = model.EventType(s)
	}
	if s, ok := values["documentPath"].(string); ok {
		event.DocumentPath = s
	}
	if s, ok := values["collectionPath"].(string); ok {
		event.CollectionPath = s
	}
	if s, ok := values["origin"].(string); ok {
		event.Origin = s
	}
	if s, ok := values["timestamp"].(string); ok {
		if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
			event.Timestamp = time.Unix(0, ns).UTC()
		}
	}
	return event
}
