package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/event-booking/internal/model"
)

// MessageRepo persists chat history for booking threads and direct chats.
type MessageRepo struct{ db *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = `m.id, m.booking_id, m.sender_id, m.receiver_id, m.content, m.attachment, m.attachment_type,
	m.is_read, m.is_system, m.created_at,
	TRIM(CONCAT(COALESCE(u.first_name, ''), ' ', COALESCE(u.last_name, ''))), COALESCE(u.role, '')`

const messageFrom = ` FROM messages m LEFT JOIN users u ON u.id = m.sender_id`

func scanMessage(row interface{ Scan(...any) error }) (model.Message, error) {
	var (
		m        model.Message
		booking  sql.NullInt64
		receiver sql.NullInt64
		file     sql.NullString
		fileType sql.NullString
	)
	err := row.Scan(&m.ID, &booking, &m.SenderID, &receiver, &m.Content, &file, &fileType, &m.IsRead, &m.IsSystem,
		&m.CreatedAt, &m.SenderName, &m.SenderRole)
	if err != nil {
		return model.Message{}, err
	}
	m.BookingID = uintPtr(booking)
	m.ReceiverID = uintPtr(receiver)
	m.Attachment = stringPtr(file)
	m.AttachmentType = stringPtr(fileType)
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	defer rows.Close()
	out := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullID(id *uint64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

// Create inserts m and reloads it with sender details.
func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (booking_id, sender_id, receiver_id, content, attachment, attachment_type, is_system)
		 VALUES (?,?,?,?,?,?,?)`,
		nullID(m.BookingID), m.SenderID, nullID(m.ReceiverID), m.Content, nullString(m.Attachment),
		nullString(m.AttachmentType), m.IsSystem)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	saved, err := scanMessage(r.db.QueryRowContext(ctx, "SELECT "+messageColumns+messageFrom+" WHERE m.id=?", id))
	if err != nil {
		return err
	}
	*m = saved
	return nil
}

// ListByBooking returns a booking thread in chronological order.
func (r *MessageRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+messageColumns+messageFrom+" WHERE m.booking_id=? ORDER BY m.created_at, m.id", bookingID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// MarkBookingRead flags messages in a thread as read, skipping the reader's
// own messages. Empty ids means every unread message in the thread.
func (r *MessageRepo) MarkBookingRead(ctx context.Context, bookingID, readerID uint64, ids []uint64) (int64, error) {
	q := "UPDATE messages SET is_read=1 WHERE booking_id=? AND sender_id<>? AND is_read=0"
	args := []any{bookingID, readerID}
	if len(ids) > 0 {
		q += " AND id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadInBooking counts messages in a thread the reader has not seen.
func (r *MessageRepo) UnreadInBooking(ctx context.Context, bookingID, readerID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE booking_id=? AND sender_id<>? AND is_read=0", bookingID, readerID).Scan(&n)
	return n, err
}

// Conversation returns the direct messages exchanged between two users.
func (r *MessageRepo) Conversation(ctx context.Context, userID, partnerID uint64) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+messageColumns+messageFrom+
			` WHERE m.booking_id IS NULL AND ((m.sender_id=? AND m.receiver_id=?) OR (m.sender_id=? AND m.receiver_id=?))
			 ORDER BY m.created_at, m.id`,
		userID, partnerID, partnerID, userID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// MarkConversationRead marks what partner sent to reader as read.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, readerID, partnerID uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE messages SET is_read=1 WHERE booking_id IS NULL AND sender_id=? AND receiver_id=? AND is_read=0",
		partnerID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadDirect counts unread direct messages addressed to the user.
func (r *MessageRepo) UnreadDirect(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE booking_id IS NULL AND receiver_id=? AND is_read=0", userID).Scan(&n)
	return n, err
}
