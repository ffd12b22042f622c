package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/relay"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/storage"
)

// BookingAuthorizer is satisfied by BookingService.
type BookingAuthorizer interface {
	Authorize(ctx context.Context, actor Actor, id uint64) (model.Booking, error)
}

// RoomPublisher pushes saved messages to connected relay clients. It is
// satisfied by relay.RedisBroadcaster.
type RoomPublisher interface {
	Publish(ctx context.Context, env relay.Envelope) error
}

// MessageService stores booking threads and direct conversations.
type MessageService struct {
	messages *repository.MessageRepo
	users    *repository.UserRepo
	bookings BookingAuthorizer
	files    FileStore
	rooms    RoomPublisher
	log      *logging.Logger
}

// NewMessageService wires the service; rooms may be nil when no relay is
// reachable.
func NewMessageService(db *sql.DB, bookings BookingAuthorizer, files FileStore, rooms RoomPublisher, log *logging.Logger) *MessageService {
	return &MessageService{
		messages: repository.NewMessageRepo(db),
		users:    repository.NewUserRepo(db),
		bookings: bookings,
		files:    files,
		rooms:    rooms,
		log:      log,
	}
}

// SendInput is the multipart form of a new message. Content may be empty
// when an attachment is present.
type SendInput struct {
	ReceiverID     uint64 `form:"receiver_id" json:"receiver_id"`
	Content        string `form:"content" json:"content" validate:"max=5000"`
	AttachmentType string `form:"attachment_type" json:"attachment_type" validate:"omitempty,oneof=image payment_receipt"`
}

// BookingThread lists a booking's messages oldest first.
func (s *MessageService) BookingThread(ctx context.Context, actor Actor, bookingID uint64) ([]model.Message, error) {
	if _, err := s.bookings.Authorize(ctx, actor, bookingID); err != nil {
		return nil, err
	}
	out, err := s.messages.ListByBooking(ctx, bookingID)
	return out, translate(err, "list messages")
}

// SendToBooking posts into a booking thread.
func (s *MessageService) SendToBooking(ctx context.Context, actor Actor, bookingID uint64, in SendInput, attachment io.Reader) (model.Message, error) {
	if _, err := s.bookings.Authorize(ctx, actor, bookingID); err != nil {
		return model.Message{}, err
	}
	m := model.Message{BookingID: &bookingID, SenderID: actor.UserID}
	if err := s.prepare(ctx, &m, in, attachment); err != nil {
		return model.Message{}, err
	}
	return s.save(ctx, m, relay.BookingRoom(bookingID))
}

// MarkBookingRead marks the given (or all) unread messages from others as read.
func (s *MessageService) MarkBookingRead(ctx context.Context, actor Actor, bookingID uint64, ids []uint64) (int64, error) {
	if _, err := s.bookings.Authorize(ctx, actor, bookingID); err != nil {
		return 0, err
	}
	n, err := s.messages.MarkBookingRead(ctx, bookingID, actor.UserID, ids)
	return n, translate(err, "mark messages read")
}

func (s *MessageService) BookingUnread(ctx context.Context, actor Actor, bookingID uint64) (int, error) {
	if _, err := s.bookings.Authorize(ctx, actor, bookingID); err != nil {
		return 0, err
	}
	n, err := s.messages.UnreadInBooking(ctx, bookingID, actor.UserID)
	return n, translate(err, "count unread messages")
}

// Conversation lists direct messages between the actor and partner.
func (s *MessageService) Conversation(ctx context.Context, actor Actor, partnerID uint64) ([]model.Message, error) {
	if _, err := s.users.GetByID(ctx, partnerID); err != nil {
		return nil, translate(err, "load chat partner")
	}
	out, err := s.messages.Conversation(ctx, actor.UserID, partnerID)
	return out, translate(err, "list conversation")
}

// SendDirect delivers a direct message to in.ReceiverID.
func (s *MessageService) SendDirect(ctx context.Context, actor Actor, in SendInput, attachment io.Reader) (model.Message, error) {
	if in.ReceiverID == 0 {
		return model.Message{}, apperror.Validation("receiver_id", "is required")
	}
	if in.ReceiverID == actor.UserID {
		return model.Message{}, apperror.Validation("receiver_id", "cannot message yourself")
	}
	if _, err := s.users.GetByID(ctx, in.ReceiverID); err != nil {
		return model.Message{}, translate(err, "load receiver")
	}
	receiver := in.ReceiverID
	m := model.Message{SenderID: actor.UserID, ReceiverID: &receiver}
	if err := s.prepare(ctx, &m, in, attachment); err != nil {
		return model.Message{}, err
	}
	return s.save(ctx, m, relay.DirectRoom(actor.UserID, receiver))
}

func (s *MessageService) MarkConversationRead(ctx context.Context, actor Actor, partnerID uint64) (int64, error) {
	n, err := s.messages.MarkConversationRead(ctx, actor.UserID, partnerID)
	return n, translate(err, "mark conversation read")
}

func (s *MessageService) UnreadDirect(ctx context.Context, actor Actor) (int, error) {
	n, err := s.messages.UnreadDirect(ctx, actor.UserID)
	return n, translate(err, "count unread messages")
}

// prepare fills content and stores the attachment, if any.
func (s *MessageService) prepare(ctx context.Context, m *model.Message, in SendInput, attachment io.Reader) error {
	m.Content = strings.TrimSpace(in.Content)
	if attachment == nil {
		if m.Content == "" {
			return apperror.Validation("content", "content or attachment is required")
		}
		return nil
	}
	kind := in.AttachmentType
	if kind == "" {
		kind = model.AttachmentImage
	}
	path, err := s.files.Save(ctx, storage.ChatAttachments, attachment)
	if err != nil {
		return uploadError(err, "attachment")
	}
	m.Attachment = &path
	m.AttachmentType = &kind
	return nil
}

func (s *MessageService) save(ctx context.Context, m model.Message, room string) (model.Message, error) {
	if err := s.messages.Create(ctx, &m); err != nil {
		if m.Attachment != nil {
			_ = s.files.Delete(*m.Attachment)
		}
		return model.Message{}, translate(err, "save message")
	}
	s.notify(ctx, room, m)
	return m, nil
}

// notify is best effort; the message is already stored.
func (s *MessageService) notify(ctx context.Context, room string, m model.Message) {
	if s.rooms == nil {
		return
	}
	env := relay.Envelope{Room: room, Event: relay.Outbound{
		Type:   relay.EventNewMessage,
		ChatID: room,
		Message: &relay.ChatMessage{
			ID:         m.ID,
			SenderID:   m.SenderID,
			Content:    m.Content,
			Attachment: m.Attachment,
			Timestamp:  m.CreatedAt.UTC(),
			Read:       m.IsRead,
		},
		Timestamp: time.Now().UTC(),
	}}
	if err := s.rooms.Publish(context.WithoutCancel(ctx), env); err != nil {
		s.log.Warn(s.log.WithField(ctx, "room", room), "relay notify failed", err)
	}
}
