package relay

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/metrics"
)

type request struct {
	client *Client
	in     Inbound
}

// Hub owns room membership and typing state. All of it is touched only by
// the Run goroutine; clients talk to it through channels.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	requests   chan request
	deliveries chan Envelope
	outbox     chan Envelope
	done       chan struct{}

	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	typing  map[string]map[uint64]struct{}

	bc      Broadcaster
	log     *logging.Logger
	metrics *metrics.RelayMetrics
	now     func() time.Time
}

func NewHub(bc Broadcaster, log *logging.Logger, m *metrics.RelayMetrics) *Hub {
	if bc == nil {
		bc = NewLocalBroadcaster(0)
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		requests:   make(chan request, 64),
		deliveries: make(chan Envelope, 256),
		outbox:     make(chan Envelope, 256),
		done:       make(chan struct{}),
		clients:    map[*Client]struct{}{},
		rooms:      map[string]map[*Client]struct{}{},
		typing:     map[string]map[uint64]struct{}{},
		bc:         bc,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
}

// Run processes hub traffic until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	go h.pump(ctx)
	go func() {
		err := h.bc.Run(ctx, func(env Envelope) {
			select {
			case h.deliveries <- env:
			case <-ctx.Done():
			}
		})
		if err != nil {
			h.log.Error(ctx, "relay broadcaster stopped", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return nil
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.Connected()
		case c := <-h.unregister:
			h.drop(c)
		case r := <-h.requests:
			h.handle(r.client, r.in)
		case env := <-h.deliveries:
			h.fanout(env)
		}
	}
}

// pump hands queued envelopes to the broadcaster off the hub goroutine.
func (h *Hub) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.outbox:
			if err := h.bc.Publish(ctx, env); err != nil && ctx.Err() == nil {
				h.metrics.Dropped("publish")
				h.log.Warn(h.log.WithField(ctx, "room", env.Room), "relay publish failed", err)
			}
		}
	}
}

// Register adds c to the hub. It reports false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Submit queues an inbound event from c.
func (h *Hub) Submit(c *Client, in Inbound) {
	select {
	case h.requests <- request{client: c, in: in}:
	case <-h.done:
	}
}

func (h *Hub) handle(c *Client, in Inbound) {
	// requests queued before Unregister may arrive after the client is gone
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.metrics.Event(in.Type)
	if in.Type == EventError {
		c.trySend(Outbound{Type: EventError, ChatID: in.ChatID, Error: in.Content, Timestamp: h.now().UTC()})
		return
	}
	room, err := ParseRoom(in.ChatID)
	if err != nil {
		h.reject(c, in.ChatID, err.Error())
		return
	}
	switch in.Type {
	case EventJoin:
		if !room.Allows(c.userID) {
			h.reject(c, room.Name, "not a participant of this chat")
			return
		}
		members := h.rooms[room.Name]
		if members == nil {
			members = map[*Client]struct{}{}
			h.rooms[room.Name] = members
		}
		members[c] = struct{}{}
		c.rooms[room.Name] = struct{}{}
		h.metrics.SetRooms(len(h.rooms))
		h.enqueue(Envelope{Room: room.Name, Event: Outbound{Type: EventUserJoined, ChatID: room.Name, UserID: c.userID}})
	case EventLeave:
		if !h.leave(c, room.Name) {
			return
		}
		if h.setTyping(room.Name, c.userID, false) {
			h.announceTyping(room.Name, c.userID)
		}
		h.enqueue(Envelope{Room: room.Name, Event: Outbound{Type: EventUserLeft, ChatID: room.Name, UserID: c.userID}})
	case EventMessage:
		if _, ok := c.rooms[room.Name]; !ok {
			h.reject(c, room.Name, "join the chat before sending")
			return
		}
		if in.Content == "" {
			h.reject(c, room.Name, "content is required")
			return
		}
		ts := h.now().UTC()
		if in.Timestamp != nil {
			ts = in.Timestamp.UTC()
		}
		h.enqueue(Envelope{Room: room.Name, Event: Outbound{
			Type:    EventNewMessage,
			ChatID:  room.Name,
			Message: &ChatMessage{SenderID: c.userID, Content: in.Content, Timestamp: ts},
		}})
	case EventTyping:
		if _, ok := c.rooms[room.Name]; !ok {
			h.reject(c, room.Name, "join the chat before typing")
			return
		}
		if h.setTyping(room.Name, c.userID, in.IsTyping) {
			h.announceTyping(room.Name, c.userID)
		}
	default:
		h.reject(c, in.ChatID, "unknown event type")
	}
}

func (h *Hub) reject(c *Client, chatID, msg string) {
	c.trySend(Outbound{Type: EventError, ChatID: chatID, Error: msg, Timestamp: h.now().UTC()})
}

// setTyping updates the typing set and reports whether it changed.
func (h *Hub) setTyping(room string, userID uint64, typing bool) bool {
	set := h.typing[room]
	_, was := set[userID]
	if typing == was {
		return false
	}
	if typing {
		if set == nil {
			set = map[uint64]struct{}{}
			h.typing[room] = set
		}
		set[userID] = struct{}{}
		return true
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(h.typing, room)
	}
	return true
}

// typingUsers returns the sorted typing set of a room.
func (h *Hub) typingUsers(room string) []uint64 {
	out := make([]uint64, 0, len(h.typing[room]))
	for id := range h.typing[room] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Hub) announceTyping(room string, except uint64) {
	h.enqueue(Envelope{Room: room, Except: except, Event: Outbound{
		Type:        EventTypingStatus,
		ChatID:      room,
		TypingUsers: h.typingUsers(room),
	}})
}

func (h *Hub) leave(c *Client, room string) bool {
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.metrics.SetRooms(len(h.rooms))
	return true
}

// leaveAll drops every membership of c and clears its user's typing flags,
// telling the affected rooms.
func (h *Hub) leaveAll(c *Client) {
	for room := range c.rooms {
		h.leave(c, room)
	}
	for room := range h.typing {
		if h.setTyping(room, c.userID, false) {
			h.announceTyping(room, c.userID)
		}
	}
}

// drop forgets c and closes its send channel. Unknown clients are ignored.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.leaveAll(c)
	delete(h.clients, c)
	close(c.send)
	h.metrics.Disconnected()
}

func (h *Hub) enqueue(env Envelope) {
	if env.Event.Timestamp.IsZero() {
		env.Event.Timestamp = h.now().UTC()
	}
	select {
	case h.outbox <- env:
	default:
		h.metrics.Dropped("outbox_full")
	}
}

// fanout delivers env to local members of its room.
func (h *Hub) fanout(env Envelope) {
	for c := range h.rooms[env.Room] {
		if env.Except != 0 && c.userID == env.Except {
			continue
		}
		if !c.trySend(env.Event) {
			h.metrics.Dropped("send_buffer_full")
		}
	}
}
