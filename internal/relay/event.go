// Package relay is the realtime chat relay: authenticated websocket clients
// join rooms and exchange messages and typing indicators. Room fan-out goes
// through a Broadcaster so several relay processes can share rooms.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Inbound event types.
const (
	EventJoin    = "join_chat"
	EventLeave   = "leave_chat"
	EventMessage = "message"
	EventTyping  = "typing"
)

// Outbound event types.
const (
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventNewMessage   = "new_message"
	EventTypingStatus = "typing_status"
	EventError        = "error"
)

// Inbound is a frame sent by a client.
type Inbound struct {
	Type      string     `json:"type"`
	ChatID    string     `json:"chatId"`
	Content   string     `json:"content,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	IsTyping  bool       `json:"isTyping,omitempty"`
}

// ChatMessage is the body of a new_message event.
type ChatMessage struct {
	ID         uint64    `json:"id,omitempty"`
	SenderID   uint64    `json:"senderId"`
	Content    string    `json:"content"`
	Attachment *string   `json:"attachment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

// Outbound is a frame sent to clients.
type Outbound struct {
	Type        string       `json:"type"`
	ChatID      string       `json:"chatId,omitempty"`
	UserID      uint64       `json:"userId,omitempty"`
	Message     *ChatMessage `json:"message,omitempty"`
	TypingUsers []uint64     `json:"typingUsers,omitempty"`
	Error       string       `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// MarshalJSON always writes typingUsers on typing_status, even when empty.
func (o Outbound) MarshalJSON() ([]byte, error) {
	type plain Outbound
	if o.Type != EventTypingStatus {
		return json.Marshal(plain(o))
	}
	users := o.TypingUsers
	if users == nil {
		users = []uint64{}
	}
	return json.Marshal(struct {
		plain
		TypingUsers []uint64 `json:"typingUsers"`
	}{plain(o), users})
}

// Envelope is what travels through a Broadcaster: an event for a room,
// optionally skipping one user's connections.
type Envelope struct {
	Room   string   `json:"room"`
	Except uint64   `json:"except,omitempty"`
	Event  Outbound `json:"event"`
}

var ErrInvalidRoom = errors.New("invalid chat id")

// BookingRoom names the room of a booking thread.
func BookingRoom(bookingID uint64) string { return fmt.Sprintf("booking:%d", bookingID) }

// DirectRoom names the room shared by two users, independent of order.
func DirectRoom(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// Room is a parsed chat id.
type Room struct {
	Name      string
	BookingID uint64
	Users     [2]uint64
}

// Direct reports whether the room is a two-person conversation.
func (r Room) Direct() bool { return r.BookingID == 0 }

// Allows reports whether userID may join. Direct rooms admit only their two
// participants. Booking rooms pass here; the client checks ownership
// against RoomAccess before the join reaches the hub.
func (r Room) Allows(userID uint64) bool {
	if !r.Direct() {
		return true
	}
	return r.Users[0] == userID || r.Users[1] == userID
}

// ParseRoom validates a chat id of the form booking:<id> or dm:<lo>:<hi>.
func ParseRoom(id string) (Room, error) {
	parts := strings.Split(strings.TrimSpace(id), ":")
	switch {
	case len(parts) == 2 && parts[0] == "booking":
		n, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || n == 0 {
			return Room{}, ErrInvalidRoom
		}
		return Room{Name: BookingRoom(n), BookingID: n}, nil
	case len(parts) == 3 && parts[0] == "dm":
		a, errA := strconv.ParseUint(parts[1], 10, 64)
		b, errB := strconv.ParseUint(parts[2], 10, 64)
		if errA != nil || errB != nil || a == 0 || b == 0 || a == b {
			return Room{}, ErrInvalidRoom
		}
		if a > b {
			a, b = b, a
		}
		return Room{Name: DirectRoom(a, b), Users: [2]uint64{a, b}}, nil
	}
	return Room{}, ErrInvalidRoom
}
