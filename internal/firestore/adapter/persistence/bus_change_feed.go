package persistence

import (
	"context"
	"fmt"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/eventbus"
	"firestore-typed/internal/shared/logger"
)

// BusChangeFeed delivers document changes to listeners of the same process through the
// event bus.
type BusChangeFeed struct {
	bus    eventbus.EventBusInterface
	logger logger.Logger
}

var _ repository.ChangeFeed = (*BusChangeFeed)(nil)

// NewBusChangeFeed creates a feed on top of bus. A nil bus gets a private one.
func NewBusChangeFeed(bus eventbus.EventBusInterface, log logger.Logger) *BusChangeFeed {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if bus == nil {
		bus = eventbus.NewEventBus(log)
	}
	return &BusChangeFeed{bus: bus, logger: log}
}

func eventTypeFor(t model.EventType) string {
	if t == model.EventTypeDeleted {
		return eventbus.EventTypeDocumentDeleted
	}
	return eventbus.EventTypeDocumentWritten
}

// Publish hands the event to every subscriber synchronously.
func (f *BusChangeFeed) Publish(ctx context.Context, event model.RealtimeEvent) error {
	return f.bus.Publish(ctx, eventbus.NewBasicEventWithSource(eventTypeFor(event.Type), event, event.Origin))
}

// Subscribe registers fn for writes and deletes.
func (f *BusChangeFeed) Subscribe(fn func(model.RealtimeEvent)) func() {
	handler := func(_ context.Context, e eventbus.Event) error {
		event, ok := e.Data().(model.RealtimeEvent)
		if !ok {
			return fmt.Errorf("unexpected change feed payload %T", e.Data())
		}
		fn(event)
		return nil
	}
	cancelWritten := f.bus.Subscribe(eventbus.EventTypeDocumentWritten, handler)
	cancelDeleted := f.bus.Subscribe(eventbus.EventTypeDocumentDeleted, handler)
	return func() {
		cancelWritten()
		cancelDeleted()
	}
}

// Close is a no-op; the bus outlives the feed.
func (f *BusChangeFeed) Close() error {
	return nil
}
