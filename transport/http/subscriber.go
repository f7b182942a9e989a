package http

import (
	"sync/atomic"
	"time"
)

// Subscriber is one connected stream consumer.
type Subscriber struct {
	ID          string
	Transport   string
	ConnectedAt time.Time

	ch      chan Message
	dropped atomic.Uint64
}

// Messages is closed when the subscriber is removed from the hub.
func (s *Subscriber) Messages() <-chan Message {
	return s.ch
}

// Dropped counts messages lost to a full queue.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscriber) Info() SubscriberInfo {
	return SubscriberInfo{
		ID:          s.ID,
		Transport:   s.Transport,
		ConnectedAt: s.ConnectedAt,
		Queued:      len(s.ch),
		Dropped:     s.Dropped(),
	}
}

// SubscriberInfo is the status view of a subscriber.
type SubscriberInfo struct {
	ID          string    `json:"id"`
	Transport   string    `json:"transport"`
	ConnectedAt time.Time `json:"connected_at"`
	Queued      int       `json:"queued"`
	Dropped     uint64    `json:"dropped"`
}
