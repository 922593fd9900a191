// Package events provides the publish/subscribe event bus that decouples
// mutation side effects from real-time notification delivery.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"

	"parley/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Topic is a named event channel. Subscribers receive every event published
// to a topic they subscribe to and filter client-side by relevance.
type Topic string

const (
	// TopicMessageSent fires when a message is persisted in a chat.
	TopicMessageSent Topic = "messageSent"
	// TopicChatCreated fires for new chat members when a chat is created.
	TopicChatCreated Topic = "userChatCreated"
	// TopicChatUpdated fires when a chat's metadata, membership or latest message changes.
	TopicChatUpdated Topic = "userChatUpdated"
	// TopicChatDeleted fires with the chat id when a chat is removed.
	TopicChatDeleted Topic = "userChatDeleted"
	// TopicChatLeft fires with {chatId, memberId} when a member leaves.
	TopicChatLeft Topic = "userChatLeft"
)

// AllTopics returns every defined topic.
func AllTopics() []Topic {
	return []Topic{TopicMessageSent, TopicChatCreated, TopicChatUpdated, TopicChatDeleted, TopicChatLeft}
}

// ValidTopic reports whether s names a defined topic.
func ValidTopic(s string) bool {
	switch Topic(s) {
	case TopicMessageSent, TopicChatCreated, TopicChatUpdated, TopicChatDeleted, TopicChatLeft:
		return true
	}
	return false
}

// Envelope is the wire form of a published event: the payload plus the user
// ids it is addressed to. The bus itself carries no durable state; there is
// no replay for late subscribers.
type Envelope struct {
	Topic      Topic           `json:"topic"`
	Recipients []uint          `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher is the narrow interface the domain layer publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, recipients []uint, payload any) error
}

// Bus publishes envelopes to Redis channels, one channel per topic.
// It is constructed once at process start and passed by handle; publish
// returns once the envelope is handed to Redis, never waiting on subscribers.
type Bus struct {
	rdb *redis.Client
}

// NewBus creates a new Bus using the provided Redis client.
func NewBus(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// ChannelFor derives the Redis channel name for a topic.
func ChannelFor(topic Topic) string {
	return "events:" + string(topic)
}

// Publish serializes payload into an envelope addressed to recipients and
// publishes it on the topic's channel.
func (b *Bus) Publish(ctx context.Context, topic Topic, recipients []uint, payload any) error {
	if b.rdb == nil {
		return nil
	}
	if len(recipients) == 0 {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Topic:      topic,
		Recipients: recipients,
		Payload:    raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := b.rdb.Publish(ctx, ChannelFor(topic), string(data)).Err(); err != nil {
		return err
	}
	observability.EventsPublished.WithLabelValues(string(topic)).Inc()
	return nil
}

// StartSubscriber subscribes to the pattern `events:*` and calls onEvent for
// each decoded envelope. Malformed payloads are logged and skipped.
func (b *Bus) StartSubscriber(ctx context.Context, onEvent func(Envelope)) error {
	if b.rdb == nil {
		return nil
	}
	sub := b.rdb.PSubscribe(ctx, "events:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Printf("invalid event envelope on %s: %v", msg.Channel, err)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in event subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onEvent(env)
				}()
			}
		}
	}()

	return nil
}
