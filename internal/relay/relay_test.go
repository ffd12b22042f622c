package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/utils"
)

type ownersFunc func(ctx context.Context, bookingID uint64) (uint64, error)

func (f ownersFunc) OwnerOf(ctx context.Context, bookingID uint64) (uint64, error) {
	return f(ctx, bookingID)
}

// owners maps booking ids to their owners; unknown ids are not found.
func owners(m map[uint64]uint64) RoomAccess {
	return OwnerAccess(ownersFunc(func(_ context.Context, id uint64) (uint64, error) {
		owner, ok := m[id]
		if !ok {
			return 0, repository.ErrBookingNotFound
		}
		return owner, nil
	}))
}

func startHub(t *testing.T, bc Broadcaster) *Hub {
	t.Helper()
	h := NewHub(bc, logging.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func fakeClient(h *Hub, userID uint64) *Client {
	return &Client{
		hub:     h,
		userID:  userID,
		send:    make(chan []byte, 16),
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     logging.Nop(),
		rooms:   map[string]struct{}{},
	}
}

func recv(t *testing.T, c *Client) Outbound {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var out Outbound
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Outbound{}
}

func join(t *testing.T, h *Hub, c *Client, room string) {
	t.Helper()
	h.Submit(c, Inbound{Type: EventJoin, ChatID: room})
	ev := recv(t, c)
	require.Equal(t, EventUserJoined, ev.Type)
	require.Equal(t, c.userID, ev.UserID)
}

func TestParseRoom(t *testing.T) {
	r, err := ParseRoom("booking:12")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), r.BookingID)
	assert.True(t, r.Allows(99))

	r, err = ParseRoom("dm:9:4")
	require.NoError(t, err)
	assert.Equal(t, "dm:4:9", r.Name)
	assert.True(t, r.Allows(4))
	assert.False(t, r.Allows(5))

	for _, bad := range []string{"", "booking:", "booking:0", "booking:x", "dm:3:3", "dm:1", "chat_5"} {
		_, err := ParseRoom(bad)
		assert.ErrorIs(t, err, ErrInvalidRoom, bad)
	}
	assert.Equal(t, DirectRoom(2, 7), DirectRoom(7, 2))
}

func TestTypingStatusAlwaysCarriesList(t *testing.T) {
	data, err := json.Marshal(Outbound{Type: EventTypingStatus, ChatID: "booking:1"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"typingUsers":[]`)

	data, err = json.Marshal(Outbound{Type: EventUserJoined, ChatID: "booking:1", UserID: 3})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "typingUsers")
}

func TestHubMessageReachesRoomMembers(t *testing.T) {
	h := startHub(t, nil)
	a, b := fakeClient(h, 1), fakeClient(h, 2)
	require.True(t, h.Register(a))
	require.True(t, h.Register(b))

	join(t, h, a, "booking:5")
	h.Submit(b, Inbound{Type: EventJoin, ChatID: "booking:5"})
	assert.Equal(t, uint64(2), recv(t, a).UserID)
	assert.Equal(t, uint64(2), recv(t, b).UserID)

	h.Submit(a, Inbound{Type: EventMessage, ChatID: "booking:5", Content: "hello"})
	for _, c := range []*Client{a, b} {
		ev := recv(t, c)
		assert.Equal(t, EventNewMessage, ev.Type)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "hello", ev.Message.Content)
		assert.Equal(t, uint64(1), ev.Message.SenderID)
	}
}

func TestHubRejectsOutsidersAndUnjoinedSenders(t *testing.T) {
	h := startHub(t, nil)
	c := fakeClient(h, 3)
	require.True(t, h.Register(c))

	h.Submit(c, Inbound{Type: EventJoin, ChatID: "dm:1:2"})
	ev := recv(t, c)
	assert.Equal(t, EventError, ev.Type)

	h.Submit(c, Inbound{Type: EventMessage, ChatID: "booking:1", Content: "hi"})
	ev = recv(t, c)
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, ev.Error, "join")

	h.Submit(c, Inbound{Type: "shout", ChatID: "booking:1"})
	assert.Equal(t, EventError, recv(t, c).Type)
}

func TestTypingSkipsSenderAndClearsOnDisconnect(t *testing.T) {
	h := startHub(t, nil)
	a, b := fakeClient(h, 1), fakeClient(h, 2)
	require.True(t, h.Register(a))
	require.True(t, h.Register(b))
	join(t, h, a, "dm:1:2")
	h.Submit(b, Inbound{Type: EventJoin, ChatID: "dm:1:2"})
	recv(t, a)
	recv(t, b)

	h.Submit(a, Inbound{Type: EventTyping, ChatID: "dm:1:2", IsTyping: true})
	ev := recv(t, b)
	assert.Equal(t, EventTypingStatus, ev.Type)
	assert.Equal(t, []uint64{1}, ev.TypingUsers)

	// The sender gets the next room event, not its own typing status.
	h.Submit(b, Inbound{Type: EventMessage, ChatID: "dm:1:2", Content: "yo"})
	assert.Equal(t, EventNewMessage, recv(t, a).Type)
	assert.Equal(t, EventNewMessage, recv(t, b).Type)

	h.Unregister(a)
	ev = recv(t, b)
	assert.Equal(t, EventTypingStatus, ev.Type)
	assert.Empty(t, ev.TypingUsers)
}

func TestLeavingClearsTyping(t *testing.T) {
	h := startHub(t, nil)
	a, b := fakeClient(h, 1), fakeClient(h, 2)
	require.True(t, h.Register(a))
	require.True(t, h.Register(b))
	join(t, h, a, "booking:5")
	h.Submit(b, Inbound{Type: EventJoin, ChatID: "booking:5"})
	recv(t, a)
	recv(t, b)

	h.Submit(a, Inbound{Type: EventTyping, ChatID: "booking:5", IsTyping: true})
	assert.Equal(t, []uint64{1}, recv(t, b).TypingUsers)

	h.Submit(a, Inbound{Type: EventLeave, ChatID: "booking:5"})
	ev := recv(t, b)
	assert.Equal(t, EventTypingStatus, ev.Type)
	assert.Empty(t, ev.TypingUsers)
	ev = recv(t, b)
	assert.Equal(t, EventUserLeft, ev.Type)
	assert.Equal(t, uint64(1), ev.UserID)

	// Rejoining starts with a clean typing set.
	join(t, h, a, "booking:5")
	recv(t, b)
	h.Submit(b, Inbound{Type: EventTyping, ChatID: "booking:5", IsTyping: true})
	assert.Equal(t, []uint64{2}, recv(t, a).TypingUsers)
}

func TestRequestsQueuedBeforeUnregisterAreIgnored(t *testing.T) {
	h := startHub(t, nil)
	gone := fakeClient(h, 1)
	require.True(t, h.Register(gone))
	for i := 0; i < 40; i++ {
		h.Submit(gone, Inbound{Type: EventJoin, ChatID: "booking:1"})
	}
	h.Unregister(gone)

	// The send channel is closed once the hub drops the client.
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-gone.send:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	// Room events from the dropped client's joins may still be in flight.
	b := fakeClient(h, 2)
	require.True(t, h.Register(b))
	h.Submit(b, Inbound{Type: EventJoin, ChatID: "booking:1"})
	for ev := recv(t, b); ev.UserID != 2; ev = recv(t, b) {
		assert.Equal(t, EventUserJoined, ev.Type)
	}
	h.Submit(b, Inbound{Type: EventMessage, ChatID: "booking:1", Content: "still here"})
	ev := recv(t, b)
	for ev.Type == EventUserJoined {
		ev = recv(t, b)
	}
	assert.Equal(t, EventNewMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "still here", ev.Message.Content)
}

func TestJoinBookingRoomNeedsOwnership(t *testing.T) {
	ctx := context.Background()
	access := owners(map[uint64]uint64{3: 8})

	customer := &Client{userID: 8, role: model.RoleUser, access: access, log: logging.Nop()}
	assert.True(t, customer.mayJoin(ctx, "booking:3"))
	assert.False(t, customer.mayJoin(ctx, "booking:4"), "unknown booking")

	other := &Client{userID: 9, role: model.RoleUser, access: access, log: logging.Nop()}
	assert.False(t, other.mayJoin(ctx, "booking:3"))
	assert.True(t, other.mayJoin(ctx, "dm:8:9"), "direct rooms are checked by the hub")

	staff := &Client{userID: 2, role: model.RoleStaff, log: logging.Nop()}
	assert.True(t, staff.mayJoin(ctx, "booking:3"))

	unchecked := &Client{userID: 8, role: model.RoleUser, log: logging.Nop()}
	assert.False(t, unchecked.mayJoin(ctx, "booking:3"))

	failing := OwnerAccess(ownersFunc(func(context.Context, uint64) (uint64, error) {
		return 0, errors.New("connection refused")
	}))
	broken := &Client{userID: 8, role: model.RoleUser, access: failing, log: logging.Nop()}
	assert.False(t, broken.mayJoin(ctx, "booking:3"))
}

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	assert.True(t, c.trySend(Outbound{Type: EventUserJoined}))
	assert.False(t, c.trySend(Outbound{Type: EventUserJoined}))
}

func TestRedisBroadcasterRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	bc := NewRedisBroadcaster(rdb, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Envelope, 8)
	go func() { _ = bc.Run(ctx, func(env Envelope) { got <- env }) }()

	env := Envelope{Room: "booking:9", Event: Outbound{Type: EventNewMessage, ChatID: "booking:9",
		Message: &ChatMessage{SenderID: 4, Content: "paid"}}}
	var received Envelope
	require.Eventually(t, func() bool {
		_ = bc.Publish(ctx, env)
		select {
		case received = <-got:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "booking:9", received.Room)
	require.NotNil(t, received.Event.Message)
	assert.Equal(t, "paid", received.Event.Message.Content)
}

func TestServerAuthenticatesBeforeUpgrade(t *testing.T) {
	h := startHub(t, nil)
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(logging.Nop())
	NewServer(config.RelayConfig{AllowedOrigins: []string{"*"}, SendBuffer: 8, MessagesPerSec: 50, Burst: 50},
		"secret", h, owners(map[uint64]uint64{3: 8, 4: 9}), logging.Nop()).Register(e, nil)
	srv := httptest.NewServer(e)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := utils.NewAccessToken("secret", 8, "user", 5)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+tok.Token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Inbound{Type: EventJoin, ChatID: "booking:3"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Outbound
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventUserJoined, ev.Type)
	assert.Equal(t, uint64(8), ev.UserID)

	require.NoError(t, conn.WriteJSON(Inbound{Type: EventJoin, ChatID: "booking:4"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	ev = Outbound{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "booking:4", ev.ChatID)
	assert.Contains(t, ev.Error, "not a participant")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
