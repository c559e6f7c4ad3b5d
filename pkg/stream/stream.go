// Package stream is the in-memory subscription registry and fan-out engine.
//
// Subscriptions are grouped per topic. A subscription with a key only sees
// events published with that key; a subscription without a key sees every
// event of its topic. Delivery never blocks the publisher: each subscription
// owns a bounded buffer and is removed the first time an event cannot be
// queued for it.
package stream

import "errors"

type Topic string

const (
	TopicBalances   Topic = "balances"
	TopicOrders     Topic = "orders"
	TopicTrades     Topic = "trades"
	TopicOrderbooks Topic = "orderbooks"
	TopicPrices     Topic = "prices"
	TopicTickers    Topic = "tickers"
)

const (
	DefaultBufferSize = 256
	DefaultShards     = 32
)

var (
	ErrUnknownTopic   = errors.New("stream: unknown topic")
	ErrTopicClosed    = errors.New("stream: topic closed")
	ErrEngineClosed   = errors.New("stream: engine closed")
	ErrSlowConsumer   = errors.New("stream: subscriber buffer full")
	ErrCanceled       = errors.New("stream: subscription canceled")
	ErrDeliveryFailed = errors.New("stream: delivery failed")
)

// Event is one unit handed to a subscription. Snapshot marks the current-state
// payload queued at registration time.
type Event struct {
	Topic    Topic
	Key      string
	Payload  any
	Snapshot bool
}

// State is an optional current-state view attached to a topic. Apply runs for
// every published event before it is queued to subscribers, and Snapshot is
// read while registration holds the same locks, so a subscriber never sees an
// update older than its snapshot.
type State interface {
	Apply(ev Event)
	Snapshot(key string) (any, bool)
}

type Options struct {
	Topic Topic
	// Key is the routing key (account id, asset pair id). Empty subscribes to
	// every event of the topic.
	Key  string
	Peer string
	// Snapshot queues the topic state for Key ahead of any live update.
	Snapshot bool
	// BufferSize overrides the engine default when > 0.
	BufferSize int
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrSlowConsumer):
		return "slow_consumer"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, ErrEngineClosed):
		return "engine_closed"
	case errors.Is(err, ErrTopicClosed):
		return "topic_closed"
	default:
		return "canceled"
	}
}
