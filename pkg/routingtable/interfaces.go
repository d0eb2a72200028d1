package routingtable

import (
	"context"
	"io"
	"time"
)

// Wildcard subscribes to every topic delivered to the node
const Wildcard = "*"

// Delivery is a publication handed to a local subscriber
type Delivery struct {
	// UUID identifies the delivery for stream consumers
	UUID string

	// Topic is the hex fingerprint of the publisher
	Topic string

	// Contents is the hex encoded publication body
	Contents string

	// ReceivedAt is when the node accepted the publication
	ReceivedAt time.Time
}

// Subscriber is a local consumer of deliveries, such as a control API stream
type Subscriber interface {
	// ID returns unique identifier for this subscriber
	ID() string

	// Deliver hands d to the subscriber without blocking. It returns false
	// when the delivery was dropped.
	Deliver(d Delivery) bool
}

// Subscription pairs a topic with a subscriber
type Subscription struct {
	// Topic is a fingerprint or Wildcard
	Topic string

	// Subscriber receives deliveries for Topic
	Subscriber Subscriber
}

// RoutingTable maps overlay topics to the local subscribers interested in
// them. The gossip engine keeps one handler per topic; the routing table
// fans that delivery out to every local consumer.
type RoutingTable interface {
	io.Closer

	// Subscribe adds subscriber to topic. Subscribing twice is a no-op.
	Subscribe(ctx context.Context, topic string, subscriber Subscriber) error

	// Unsubscribe removes subscriberID from topic
	Unsubscribe(ctx context.Context, topic string, subscriberID string) error

	// GetSubscribers returns the subscribers of topic plus the wildcard
	// subscribers, each at most once
	GetSubscribers(ctx context.Context, topic string) ([]Subscriber, error)

	// GetAllSubscriptions returns every topic and subscriber pair
	GetAllSubscriptions(ctx context.Context) ([]Subscription, error)

	// GetTopicCount returns the number of topics with at least one subscriber
	GetTopicCount(ctx context.Context) (int, error)

	// GetSubscriberCount returns the number of distinct subscribers
	GetSubscriberCount(ctx context.Context) (int, error)
}
