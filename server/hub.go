package server

import (
	"encoding/json"
	"sync/atomic"

	"mixdown/logger"
	"mixdown/model"
)

// Subscriber is one websocket client attached to the event hub.
type Subscriber struct {
	StreamID uint64
	Topics   map[model.EventTopic]bool
	Send     chan []byte
}

type outbound struct {
	topic model.EventTopic
	data  []byte
}

// EventHub fans change events out to websocket subscribers by topic.
// A subscriber whose send buffer is full is evicted rather than allowed
// to stall the broadcast loop.
type EventHub struct {
	subscribers map[*Subscriber]bool

	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan outbound

	nextStream uint64
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[*Subscriber]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan outbound, 256),
	}
}

// Run processes registrations and broadcasts until the hub is abandoned.
func (h *EventHub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.subscribers[sub] = true
			logger.Debug("subscriber joined",
				logger.Uint64("streamId", sub.StreamID),
				logger.Int("subscribers", len(h.subscribers)))

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.Send)
				logger.Debug("subscriber left",
					logger.Uint64("streamId", sub.StreamID),
					logger.Int("subscribers", len(h.subscribers)))
			}

		case msg := <-h.broadcast:
			for sub := range h.subscribers {
				if !sub.Topics[msg.topic] {
					continue
				}
				select {
				case sub.Send <- msg.data:
				default:
					// Slow consumer: drop the connection, not the loop.
					delete(h.subscribers, sub)
					close(sub.Send)
					logger.Warn("evicting slow subscriber",
						logger.Uint64("streamId", sub.StreamID))
				}
			}
		}
	}
}

// NewSubscriber allocates a subscriber with a fresh stream id.
func (h *EventHub) NewSubscriber(topics []model.EventTopic) *Subscriber {
	set := make(map[model.EventTopic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	return &Subscriber{
		StreamID: atomic.AddUint64(&h.nextStream, 1),
		Topics:   set,
		Send:     make(chan []byte, 64),
	}
}

func (h *EventHub) Register(sub *Subscriber)   { h.register <- sub }
func (h *EventHub) Unregister(sub *Subscriber) { h.unregister <- sub }

// PublishEvent serializes an event once and queues it for every
// subscriber of its topic. Safe to call from the engine goroutine.
func (h *EventHub) PublishEvent(ev model.ChangeEvent) {
	env := wsEnvelope{
		ProtocolVersion: ProtocolVersion,
		Type:            "event",
		Event:           &ev,
	}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("marshal event", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- outbound{topic: ev.Topic, data: data}:
	default:
		logger.Warn("event hub backlog full, dropping event",
			logger.String("kind", ev.Kind))
	}
}
