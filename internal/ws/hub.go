package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub fans payloads out to topic subscribers. It implements the
// scheduler's Broadcaster: Publish never blocks, and a subscriber that
// cannot keep up is dropped rather than stalling the flush cycle.
type Hub struct {
	log *zap.SugaredLogger

	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
}

// Subscription receives every payload published to one topic. C is
// closed when the subscriber is dropped or unsubscribed.
type Subscription struct {
	C     chan []byte
	topic string
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:    log,
		topics: make(map[string]map[*Subscription]struct{}),
	}
}

func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{C: make(chan []byte, 8), topic: topic}
	h.mu.Lock()
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[sub.topic]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
	close(sub.C)
}

// Publish delivers the payload to every subscriber of the topic.
func (h *Hub) Publish(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[topic]
	for sub := range subs {
		select {
		case sub.C <- payload:
		default:
			// Subscriber is slow or full - drop them.
			delete(subs, sub)
			close(sub.C)
			h.log.Debugw("dropped slow subscriber", "topic", topic)
		}
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}
