package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/keygate/keygate/internal/model"
)

// EventsChannel is the pub/sub channel carrying key events.
const EventsChannel = "keygate:events"

// PublishKeyEvent broadcasts event to every subscriber of EventsChannel.
func (c *Cache) PublishKeyEvent(ctx context.Context, event model.KeyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal key event: %w", err)
	}
	if err := c.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish key event: %w", err)
	}
	return nil
}

// EventSubscription is a live subscription to the key event bus.
type EventSubscription struct {
	pubsub *redis.PubSub
	events chan model.KeyEvent
	done   chan struct{}
	once   sync.Once
}

// SubscribeKeyEvents subscribes to EventsChannel. Events that fail to decode
// are logged and skipped. The returned channel is closed after Close or when
// ctx is cancelled.
func (c *Cache) SubscribeKeyEvents(ctx context.Context, logger *slog.Logger) (*EventSubscription, error) {
	pubsub := c.client.Subscribe(ctx, EventsChannel)
	// Wait for the subscription to be confirmed so no event published
	// after this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe key events: %w", err)
	}

	sub := &EventSubscription{
		pubsub: pubsub,
		events: make(chan model.KeyEvent, 16),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.events)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event model.KeyEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Warn("dropping malformed key event", "error", err)
					continue
				}
				select {
				case sub.events <- event:
				case <-ctx.Done():
					return
				case <-sub.done:
					return
				}
			}
		}
	}()

	return sub, nil
}

// Events returns the channel of decoded events.
func (s *EventSubscription) Events() <-chan model.KeyEvent {
	return s.events
}

// Close unsubscribes. Calling it more than once is a no-op.
func (s *EventSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
