package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 8 << 10
)

// Client is one websocket connection. Outbound frames are queued on send;
// a full queue drops the frame.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  uint64
	role    string
	send    chan []byte
	limiter *rate.Limiter
	access  RoomAccess
	log     *logging.Logger

	// rooms is owned by the hub goroutine.
	rooms map[string]struct{}
}

// ClientOptions bound a connection's buffering and inbound rate. A nil
// Access keeps customers out of every booking room.
type ClientOptions struct {
	SendBuffer     int
	MessagesPerSec float64
	Burst          int
	Access         RoomAccess
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint64, role string, opts ClientOptions, log *logging.Logger) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	if opts.MessagesPerSec <= 0 {
		opts.MessagesPerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	return &Client{
		hub:     hub,
		conn:    conn,
		userID:  userID,
		role:    role,
		send:    make(chan []byte, opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(opts.MessagesPerSec), opts.Burst),
		access:  opts.Access,
		log:     log,
		rooms:   map[string]struct{}{},
	}
}

// trySend encodes ev and queues it without blocking. Only the hub calls it.
func (c *Client) trySend(ev Outbound) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReadLoop forwards inbound frames to the hub until the connection fails.
// It unregisters the client on return.
func (c *Client) ReadLoop(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn(c.log.WithUserID(ctx, c.userID), "relay connection closed", err)
			}
			return
		}
		if !c.limiter.Allow() {
			c.hub.metrics.Dropped("rate_limited")
			c.hub.Submit(c, Inbound{Type: EventError, Content: "rate limit exceeded"})
			continue
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			c.hub.Submit(c, Inbound{Type: EventError, Content: "malformed event"})
			continue
		}
		if in.Type == EventError {
			continue
		}
		if in.Type == EventJoin && !c.mayJoin(ctx, in.ChatID) {
			c.hub.Submit(c, Inbound{Type: EventError, ChatID: in.ChatID, Content: "not a participant of this chat"})
			continue
		}
		c.hub.Submit(c, in)
	}
}

// mayJoin checks booking room ownership. Staff join any booking room; other
// room kinds and malformed ids are left to the hub.
func (c *Client) mayJoin(ctx context.Context, chatID string) bool {
	room, err := ParseRoom(chatID)
	if err != nil || room.Direct() {
		return true
	}
	if c.role == model.RoleAdmin || c.role == model.RoleStaff {
		return true
	}
	if c.access == nil {
		return false
	}
	ok, err := c.access.CanJoinBooking(ctx, c.userID, room.BookingID)
	if err != nil {
		c.log.Warn(c.log.WithField(ctx, "room", room.Name), "relay room access check failed", err)
		return false
	}
	return ok
}

// WriteLoop drains the send queue and keeps the connection alive with pings.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
