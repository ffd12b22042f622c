package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/service"
)

// MessageHandler serves booking threads and direct chat. Sends accept JSON
// or a multipart form with an optional "attachment" file.
type MessageHandler struct {
	Messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	if messages == nil {
		panic("nil message service passed to NewMessageHandler")
	}
	return &MessageHandler{Messages: messages}
}

type markReadReq struct {
	MessageIDs []uint64 `json:"message_ids"`
}

func (h *MessageHandler) BookingThread(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Messages.BookingThread(ctx, a, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": out})
}

func (h *MessageHandler) SendToBooking(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.SendInput
	if err := bind(c, &req); err != nil {
		return err
	}
	f, err := formFile(c, "attachment")
	if err != nil {
		return err
	}
	if f != nil {
		defer f.Close()
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Messages.SendToBooking(ctx, a, id, req, f)
	if err != nil {
		return err
	}
	return done(c, http.StatusCreated, "Message sent", "data", m)
}

// MarkBookingRead marks the listed messages (all unread when empty) read.
func (h *MessageHandler) MarkBookingRead(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req markReadReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Messages.MarkBookingRead(ctx, a, id, req.MessageIDs)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Messages marked as read", "updated", n)
}

func (h *MessageHandler) BookingUnread(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Messages.BookingUnread(ctx, a, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"unread_count": n})
}

func (h *MessageHandler) Conversation(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	partner, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Messages.Conversation(ctx, a, partner)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": out})
}

func (h *MessageHandler) SendDirect(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.SendInput
	if err := bind(c, &req); err != nil {
		return err
	}
	f, err := formFile(c, "attachment")
	if err != nil {
		return err
	}
	if f != nil {
		defer f.Close()
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Messages.SendDirect(ctx, a, req, f)
	if err != nil {
		return err
	}
	return done(c, http.StatusCreated, "Message sent", "data", m)
}

func (h *MessageHandler) MarkConversationRead(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	partner, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Messages.MarkConversationRead(ctx, a, partner)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Messages marked as read", "updated", n)
}

func (h *MessageHandler) UnreadDirect(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Messages.UnreadDirect(ctx, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"unread_count": n})
}
