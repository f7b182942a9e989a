package http

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slighter12/maya-livelink-go/jsonrpc"
	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/logger"
	"github.com/slighter12/maya-livelink-go/metric"
)

const defaultSubscriberBuffer = 64

// Envelope types sent to stream consumers.
const (
	MessageHello        = "hello"
	MessageSchema       = "schema"
	MessageFrame        = "frame"
	MessageRetract      = "retract"
	MessageNotification = "notification"
)

// Envelope is the wire form of every message pushed to a consumer.
type Envelope struct {
	Type         string                 `json:"type"`
	Provider     string                 `json:"provider,omitempty"`
	SubscriberID string                 `json:"subscriber_id,omitempty"`
	Subject      string                 `json:"subject,omitempty"`
	Role         livelink.Role          `json:"role,omitempty"`
	Schema       *livelink.StaticSchema `json:"schema,omitempty"`
	Frame        *livelink.FrameSample  `json:"frame,omitempty"`
	Notification *jsonrpc.Notification  `json:"notification,omitempty"`
}

// Message is one encoded envelope queued for a subscriber.
type Message struct {
	Type string
	Data []byte
}

type cachedSchema struct {
	role livelink.Role
	msg  Message
}

// Hub fans published subjects out to every connected consumer. It is the
// provider's livelink.Transport. Late subscribers receive every cached
// schema before any frame.
type Hub struct {
	mu          sync.Mutex
	provider    string
	buffer      int
	subscribers map[string]*Subscriber
	schemas     map[string]cachedSchema
	order       []string

	metrics *metric.Metrics
	log     *slog.Logger
}

var _ livelink.Transport = (*Hub)(nil)

// NewHub creates a hub. buffer is the per-subscriber queue length.
func NewHub(provider string, buffer int, m *metric.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		provider:    provider,
		buffer:      buffer,
		subscribers: make(map[string]*Subscriber),
		schemas:     make(map[string]cachedSchema),
		metrics:     m,
		log:         logger.Component("hub"),
	}
}

func (h *Hub) PublishSchema(subjectID string, role livelink.Role, schema livelink.StaticSchema) {
	msg, ok := h.encode(Envelope{Type: MessageSchema, Subject: subjectID, Role: role, Schema: &schema})
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.schemas[subjectID]; !exists {
		h.order = append(h.order, subjectID)
	}
	h.schemas[subjectID] = cachedSchema{role: role, msg: msg}
	h.broadcastLocked(msg)
	h.metrics.RecordSchema(string(role))
}

func (h *Hub) PublishFrame(subjectID string, frame livelink.FrameSample) {
	h.mu.Lock()
	idle := len(h.subscribers) == 0
	h.mu.Unlock()
	if idle {
		return
	}

	msg, ok := h.encode(Envelope{Type: MessageFrame, Subject: subjectID, Frame: &frame})
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(msg)
	h.metrics.RecordFrame(string(h.schemas[subjectID].role))
}

func (h *Hub) RetractSubject(subjectID string) {
	msg, ok := h.encode(Envelope{Type: MessageRetract, Subject: subjectID})
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.schemas, subjectID)
	h.order = slices.DeleteFunc(h.order, func(id string) bool { return id == subjectID })
	h.broadcastLocked(msg)
}

// IsConnected reports whether at least one consumer is subscribed.
func (h *Hub) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers) > 0
}

// Notify pushes a JSON-RPC notification to every subscriber. It matches
// runtimebridge.NotificationSender.
func (h *Hub) Notify(method string, params map[string]any) bool {
	msg, ok := h.encode(Envelope{Type: MessageNotification, Notification: jsonrpc.NewNotification(method, params)})
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(msg)
	return len(h.subscribers) > 0
}

// Subscribe registers a consumer and queues the hello message followed by
// every cached schema.
func (h *Hub) Subscribe(transport string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		ID:          uuid.NewString(),
		Transport:   transport,
		ConnectedAt: time.Now().UTC(),
		ch:          make(chan Message, h.buffer+len(h.order)+1),
	}
	if hello, ok := h.encode(Envelope{Type: MessageHello, Provider: h.provider, SubscriberID: sub.ID}); ok {
		sub.ch <- hello
	}
	for _, id := range h.order {
		sub.ch <- h.schemas[id].msg
	}

	h.subscribers[sub.ID] = sub
	h.metrics.SetSubscribers(len(h.subscribers))
	h.log.Info("Consumer subscribed", "subscriber", sub.ID, "transport", transport, "schemas", len(h.order))
	return sub
}

// Unsubscribe removes sub and closes its queue. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	h.removeLocked(sub)
	h.log.Info("Consumer unsubscribed", "subscriber", sub.ID, "dropped", sub.Dropped())
}

func (h *Hub) removeLocked(sub *Subscriber) {
	delete(h.subscribers, sub.ID)
	close(sub.ch)
	h.metrics.SetSubscribers(len(h.subscribers))
}

// Subscribers describes the connected consumers, oldest first.
func (h *Hub) Subscribers() []SubscriberInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]SubscriberInfo, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		out = append(out, sub.Info())
	}
	slices.SortFunc(out, func(a, b SubscriberInfo) int { return a.ConnectedAt.Compare(b.ConnectedAt) })
	return out
}

// CachedSubjects lists the subjects whose schema would be replayed.
func (h *Hub) CachedSubjects() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.order)
}

// Close unsubscribes every consumer.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.Unsubscribe(sub)
	}
}

func (h *Hub) encode(env Envelope) (Message, bool) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("Failed to encode stream message", "type", env.Type, "subject", env.Subject, "error", err)
		return Message{}, false
	}
	return Message{Type: env.Type, Data: data}, true
}

// broadcastLocked never blocks. A full subscriber queue drops frames and
// notifications for that subscriber only. Schemas and retractions cannot be
// dropped, so that subscriber is disconnected instead and replays the
// cached schemas when it subscribes again.
func (h *Hub) broadcastLocked(msg Message) {
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- msg:
		default:
			h.metrics.RecordDrop()
			if msg.Type == MessageSchema || msg.Type == MessageRetract {
				n := sub.dropped.Add(1)
				h.removeLocked(sub)
				h.log.Warn("Subscriber queue full, disconnecting for resync", "subscriber", sub.ID, "type", msg.Type, "dropped", n)
				continue
			}
			if n := sub.dropped.Add(1); n == 1 || n%100 == 0 {
				h.log.Warn("Subscriber queue full, dropping", "subscriber", sub.ID, "type", msg.Type, "dropped", n)
			}
		}
	}
}
