package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/partshub/runtime/infrastructure/logging"
)

// RedisBus fans events out across nodes: Publish dispatches locally and
// publishes to Redis, and a background subscriber re-injects events published by other
// nodes into the local Dispatcher so every node's handlers see every event,
// regardless of which node produced it.
type RedisBus struct {
	dispatcher *Dispatcher
	client     *redis.Client
	channel    string
	log        *logging.Logger
	cancel     context.CancelFunc
}

// NewRedisBus wraps an existing Dispatcher with cross-node fan-out over a
// single Redis pub/sub channel.
func NewRedisBus(dispatcher *Dispatcher, client *redis.Client, channel string, log *logging.Logger) *RedisBus {
	return &RedisBus{
		dispatcher: dispatcher,
		client:     client,
		channel:    channel,
		log:        log,
	}
}

// Start subscribes to the Redis channel and begins re-injecting remote
// events into the local dispatcher. It returns once the subscription is
// confirmed; re-injection runs in a background goroutine until Stop.
func (b *RedisBus) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	sub := b.client.Subscribe(runCtx, b.channel)
	if _, err := sub.Receive(runCtx); err != nil {
		cancel()
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	go b.consume(runCtx, sub)
	return nil
}

func (b *RedisBus) consume(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(ctx, msg.Payload)
		}
	}
}

func (b *RedisBus) handleMessage(ctx context.Context, payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		if b.log != nil {
			b.log.WithError(err).Warn("discarding malformed event from redis bus")
		}
		return
	}

	if err := b.dispatcher.Dispatch(&event); err != nil && b.log != nil {
		b.log.WithError(err).WithField("topic", event.Topic).Warn("local dispatch of remote event failed")
	}
}

// Publish sends event to the local dispatcher and to every other node
// subscribed on the same channel.
func (b *RedisBus) Publish(ctx context.Context, event *Event) error {
	if err := b.dispatcher.Dispatch(event); err != nil {
		return err
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Stop cancels the background subscription goroutine.
func (b *RedisBus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}
