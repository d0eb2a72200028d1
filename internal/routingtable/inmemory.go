package routingtable

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rmacdonaldsmith/quasar-go/pkg/routingtable"
)

var (
	// ErrClosed is returned by operations on a closed table
	ErrClosed = errors.New("routing table is closed")
	// ErrNilSubscriber is returned when subscribing a nil subscriber
	ErrNilSubscriber = errors.New("subscriber cannot be nil")
	// ErrEmptyTopic is returned for an empty topic
	ErrEmptyTopic = errors.New("topic cannot be empty")
	// ErrNotSubscribed is returned when removing an unknown subscription
	ErrNotSubscribed = errors.New("subscription not found")
)

// InMemoryRoutingTable implements routingtable.RoutingTable with maps
// guarded by a RWMutex. Topics are matched case-insensitively.
type InMemoryRoutingTable struct {
	mu     sync.RWMutex
	topics map[string]map[string]routingtable.Subscriber
	closed bool
}

// NewInMemoryRoutingTable creates an empty table
func NewInMemoryRoutingTable() *InMemoryRoutingTable {
	return &InMemoryRoutingTable{
		topics: make(map[string]map[string]routingtable.Subscriber),
	}
}

func normalize(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// Subscribe adds subscriber to topic
func (rt *InMemoryRoutingTable) Subscribe(ctx context.Context, topic string, subscriber routingtable.Subscriber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subscriber == nil {
		return ErrNilSubscriber
	}
	topic = normalize(topic)
	if topic == "" {
		return ErrEmptyTopic
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return ErrClosed
	}

	subs, ok := rt.topics[topic]
	if !ok {
		subs = make(map[string]routingtable.Subscriber)
		rt.topics[topic] = subs
	}
	subs[subscriber.ID()] = subscriber
	return nil
}

// Unsubscribe removes subscriberID from topic
func (rt *InMemoryRoutingTable) Unsubscribe(ctx context.Context, topic string, subscriberID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topic = normalize(topic)
	if topic == "" {
		return ErrEmptyTopic
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return ErrClosed
	}

	subs, ok := rt.topics[topic]
	if !ok {
		return ErrNotSubscribed
	}
	if _, ok := subs[subscriberID]; !ok {
		return ErrNotSubscribed
	}
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(rt.topics, topic)
	}
	return nil
}

// GetSubscribers returns the subscribers of topic and of the wildcard
func (rt *InMemoryRoutingTable) GetSubscribers(ctx context.Context, topic string) ([]routingtable.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic = normalize(topic)

	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.closed {
		return nil, ErrClosed
	}

	seen := make(map[string]struct{})
	var out []routingtable.Subscriber
	for _, key := range []string{topic, routingtable.Wildcard} {
		for id, s := range rt.topics[key] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// GetAllSubscriptions returns every subscription ordered by topic then id
func (rt *InMemoryRoutingTable) GetAllSubscriptions(ctx context.Context) ([]routingtable.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.closed {
		return nil, ErrClosed
	}

	var out []routingtable.Subscription
	for topic, subs := range rt.topics {
		for _, s := range subs {
			out = append(out, routingtable.Subscription{Topic: topic, Subscriber: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Subscriber.ID() < out[j].Subscriber.ID()
	})
	return out, nil
}

// GetTopicCount returns the number of subscribed topics
func (rt *InMemoryRoutingTable) GetTopicCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.closed {
		return 0, ErrClosed
	}
	return len(rt.topics), nil
}

// GetSubscriberCount returns the number of distinct subscribers
func (rt *InMemoryRoutingTable) GetSubscriberCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.closed {
		return 0, ErrClosed
	}

	ids := make(map[string]struct{})
	for _, subs := range rt.topics {
		for id := range subs {
			ids[id] = struct{}{}
		}
	}
	return len(ids), nil
}

// Close drops every subscription. Further calls fail with ErrClosed.
func (rt *InMemoryRoutingTable) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.closed = true
	rt.topics = make(map[string]map[string]routingtable.Subscriber)
	return nil
}

var _ routingtable.RoutingTable = (*InMemoryRoutingTable)(nil)
