package routingtable

import "sync/atomic"

// DefaultBuffer is the delivery buffer of a LocalSubscriber
const DefaultBuffer = 100

// LocalSubscriber buffers deliveries on a channel for a local consumer
type LocalSubscriber struct {
	id      string
	ch      chan Delivery
	dropped atomic.Int64
}

// NewLocalSubscriber creates a subscriber with a DefaultBuffer sized channel
func NewLocalSubscriber(id string) *LocalSubscriber {
	return NewBufferedSubscriber(id, DefaultBuffer)
}

// NewBufferedSubscriber creates a subscriber holding up to size undelivered
// publications
func NewBufferedSubscriber(id string, size int) *LocalSubscriber {
	return &LocalSubscriber{id: id, ch: make(chan Delivery, size)}
}

// ID returns the unique identifier for this subscriber
func (s *LocalSubscriber) ID() string {
	return s.id
}

// Deliver queues d, dropping it when the buffer is full
func (s *LocalSubscriber) Deliver(d Delivery) bool {
	select {
	case s.ch <- d:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Deliveries returns the channel deliveries are queued on
func (s *LocalSubscriber) Deliveries() <-chan Delivery {
	return s.ch
}

// Dropped returns how many deliveries were discarded on a full buffer
func (s *LocalSubscriber) Dropped() int64 {
	return s.dropped.Load()
}

var _ Subscriber = (*LocalSubscriber)(nil)
