// Package hub fans log lines and roster snapshots out to stream subscribers.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pchat/internal/core"
	"github.com/vovakirdan/pchat/internal/proto"
)

const subscriberBuffer = 64

// Subscriber receives stream envelopes. Events is closed on Unsubscribe.
type Subscriber struct {
	ID     string
	Events chan proto.Outbound
}

// Hub implements core.LogSink and core.RosterSink. Slow subscribers lose
// events instead of blocking the engine.
type Hub struct {
	log     *zerolog.Logger
	channel func() string

	mu      sync.Mutex
	subs    map[string]*Subscriber
	last    *proto.RosterData
	dropped int
}

// New builds a hub. channel reports the current channel name for roster events.
func New(channel func() string, logger *zerolog.Logger) *Hub {
	if channel == nil {
		channel = func() string { return "" }
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		log:     logger,
		channel: channel,
		subs:    make(map[string]*Subscriber),
	}
}

// Subscribe registers a subscriber. The latest roster, if any, is queued first.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Events: make(chan proto.Outbound, subscriberBuffer),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	if h.last != nil {
		sub.Events <- rosterEnvelope(*h.last)
	}
	h.mu.Unlock()

	h.log.Debug().Str("subscriber", sub.ID).Msg("stream subscriber added")
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; ok {
		delete(h.subs, sub.ID)
		close(sub.Events)
	}
	h.mu.Unlock()

	h.log.Debug().Str("subscriber", sub.ID).Msg("stream subscriber removed")
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Log implements core.LogSink.
func (h *Hub) Log(text string) {
	h.broadcast(proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventLog,
		Data:  proto.LogData{Text: text, TS: time.Now().Unix()},
	})
}

// UpdateRoster implements core.RosterSink.
func (h *Hub) UpdateRoster(users []core.User) {
	data := proto.RosterData{
		Channel: h.channel(),
		Users:   make([]proto.RosterUser, 0, len(users)),
		TS:      time.Now().Unix(),
	}
	for _, u := range users {
		data.Users = append(data.Users, proto.RosterUser{
			Name:  u.Name,
			Flags: u.Flags,
			Ping:  u.Ping,
			Stats: u.Stats,
		})
	}

	h.mu.Lock()
	h.last = &data
	h.mu.Unlock()

	h.broadcast(rosterEnvelope(data))
}

func (h *Hub) broadcast(ev proto.Outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub.Events <- ev:
		default:
			h.dropped++
			h.log.Warn().Str("subscriber", id).Str("event", ev.Event).Msg("subscriber backlog full, event dropped")
		}
	}
}

func rosterEnvelope(data proto.RosterData) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventRoster,
		Data:  data,
	}
}
