package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// TypeSyncRequired tells a client its view may be stale and it must fetch a
// fresh snapshot.
const TypeSyncRequired = "sync.required"

// subscriptionBuffer is how many undelivered events a subscriber may lag
// behind before it is dropped.
const subscriptionBuffer = 256

// Event is a change notification as sent to clients. Seq increases by one per
// event within a tenant room.
type Event struct {
	ID      snowflake.ID    `json:"id,omitempty"`
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// tenantEvent is an internal struct for routing events to specific rooms.
// A nil TenantID targets every room.
type tenantEvent struct {
	TenantID uuid.UUID
	Event    Event
}

// Hub fans change events out to per-tenant rooms of subscribers. A single
// goroutine (Run) owns delivery, so subscribers see events in broadcast order.
type Hub struct {
	// Subscribers by tenant ID
	rooms map[uuid.UUID]map[*Subscription]bool
	// Last seq handed out per tenant. Survives empty rooms so seq never
	// moves backwards.
	seqs map[uuid.UUID]uint64

	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan tenantEvent
	stopped    chan struct{}

	// Guards rooms and seqs for readers outside Run
	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Subscription]bool),
		seqs:       make(map[uuid.UUID]uint64),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		broadcast:  make(chan tenantEvent, 256),
		stopped:    make(chan struct{}),
	}
}

// Run delivers events until ctx is cancelled, then ends every subscription.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		h.mu.Lock()
		close(h.stopped)
		for _, subs := range h.rooms {
			for sub := range subs {
				sub.finish(false)
			}
		}
		h.rooms = make(map[uuid.UUID]map[*Subscription]bool)
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case sub := <-h.register:
			h.mu.Lock()
			// Broadcasts that returned before Subscribe was called are
			// applied first, so the sync frame's seq covers them.
			h.drain()
			if h.rooms[sub.tenantID] == nil {
				h.rooms[sub.tenantID] = make(map[*Subscription]bool)
			}
			h.rooms[sub.tenantID][sub] = true
			sub.events <- Event{Type: TypeSyncRequired, Seq: h.seqs[sub.tenantID]}
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.mu.Lock()
			h.remove(sub, false)
			h.mu.Unlock()

		case te := <-h.broadcast:
			h.mu.Lock()
			h.route(te)
			h.mu.Unlock()
		}
	}
}

// route delivers te to its room, or to every room. Callers hold h.mu.
func (h *Hub) route(te tenantEvent) {
	if te.TenantID == uuid.Nil {
		for tenantID := range h.rooms {
			h.deliver(tenantID, te.Event)
		}
		return
	}
	h.deliver(te.TenantID, te.Event)
}

// drain routes every queued broadcast. Callers hold h.mu.
func (h *Hub) drain() {
	for {
		select {
		case te := <-h.broadcast:
			h.route(te)
		default:
			return
		}
	}
}

// deliver stamps the next room seq on ev and hands it to every subscriber.
// A subscriber with a full buffer is dropped as stale. Callers hold h.mu.
func (h *Hub) deliver(tenantID uuid.UUID, ev Event) {
	h.seqs[tenantID]++
	ev.Seq = h.seqs[tenantID]
	for sub := range h.rooms[tenantID] {
		select {
		case sub.events <- ev:
		default:
			h.remove(sub, true)
		}
	}
}

// remove drops sub from its room. Callers hold h.mu.
func (h *Hub) remove(sub *Subscription, stale bool) {
	subs, ok := h.rooms[sub.tenantID]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.tenantID)
	}
	sub.finish(stale)
}

// Broadcast sends ev to every subscriber of tenantID.
func (h *Hub) Broadcast(tenantID uuid.UUID, ev Event) {
	select {
	case h.broadcast <- tenantEvent{TenantID: tenantID, Event: ev}:
	case <-h.stopped:
	}
}

// BroadcastAll sends ev to every room, each with its own seq.
func (h *Hub) BroadcastAll(ev Event) {
	h.Broadcast(uuid.Nil, ev)
}

// Seq returns the last seq delivered to tenantID's room.
func (h *Hub) Seq(tenantID uuid.UUID) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[tenantID]
}

// Subscribers returns the number of live subscriptions for tenantID.
func (h *Hub) Subscribers(tenantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tenantID])
}

// Subscribe registers onEvent for tenantID's events. The first event
// delivered is always a sync.required carrying the room's seq at the moment
// of registration; every later event has a higher seq.
// onEvent runs on a goroutine owned by the subscription; a subscriber that
// falls more than subscriptionBuffer events behind is dropped.
func (h *Hub) Subscribe(tenantID uuid.UUID, onEvent func(Event)) *Subscription {
	sub := &Subscription{
		hub:      h,
		tenantID: tenantID,
		events:   make(chan Event, subscriptionBuffer),
		done:     make(chan struct{}),
	}

	select {
	case h.register <- sub:
	case <-h.stopped:
		sub.finish(false)
		return sub
	}
	go sub.pump(onEvent)
	return sub
}

// Subscription is one subscriber's handle on a tenant room.
type Subscription struct {
	hub      *Hub
	tenantID uuid.UUID
	events   chan Event

	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	dropped bool
}

func (s *Subscription) pump(onEvent func(Event)) {
	for {
		select {
		case ev := <-s.events:
			onEvent(ev)
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) finish(stale bool) {
	s.once.Do(func() {
		s.mu.Lock()
		s.dropped = stale
		s.mu.Unlock()
		close(s.done)
	})
}

// Close ends the subscription. Safe to call more than once and after the hub
// has stopped.
func (s *Subscription) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.hub.unregister <- s:
	case <-s.hub.stopped:
	case <-s.done:
	}
	s.finish(false)
}

// Done is closed when the subscription ends, by Close, by the hub stopping or
// by being dropped as stale.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped reports whether the hub ended the subscription because it fell
// behind. The subscriber must re-snapshot before trusting later events.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
