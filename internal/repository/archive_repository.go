package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/event-booking/internal/model"
)

// ArchiveRepo stores bookings moved out of the live table together with
// their payments.
type ArchiveRepo struct{ db *sql.DB }

func NewArchiveRepo(db *sql.DB) *ArchiveRepo { return &ArchiveRepo{db: db} }

const archivedColumns = `a.id, a.original_booking_id, a.archived_at, a.user_id, a.package_id, a.full_name, a.email,
	a.phone, a.event_date, a.event_time, a.venue_name, a.special_requests, a.event_duration, a.packs, a.payment_method,
	a.total_price, a.terms_accepted, a.status, a.cancellation_reason, a.cancelled_at, a.created_at, a.updated_at,
	COALESCE(p.package_name, ''), COALESCE(p.package_type, '')`

const archivedFrom = ` FROM archived_bookings a LEFT JOIN packages p ON p.id = a.package_id`

func scanArchived(row interface{ Scan(...any) error }) (model.ArchivedBooking, error) {
	var (
		a         model.ArchivedBooking
		requests  sql.NullString
		reason    sql.NullString
		cancelled sql.NullTime
	)
	b := &a.Snapshot
	err := row.Scan(&a.ID, &a.OriginalBookingID, &a.ArchivedAt, &b.UserID, &b.PackageID, &b.FullName, &b.Email,
		&b.Phone, &b.EventDate, &b.EventTime, &b.VenueName, &requests, &b.EventDuration, &b.Packs, &b.PaymentMethod,
		&b.TotalPrice, &b.TermsAccepted, &b.Status, &reason, &cancelled, &b.CreatedAt, &b.UpdatedAt,
		&b.PackageName, &b.PackageType)
	if err != nil {
		return model.ArchivedBooking{}, err
	}
	b.ID = a.OriginalBookingID
	b.SpecialRequests = stringPtr(requests)
	b.CancellationReason = stringPtr(reason)
	b.CancelledAt = timePtr(cancelled)
	return a, nil
}

// InsertTx copies the full booking row into the archive and returns the
// archive id.
func (r *ArchiveRepo) InsertTx(ctx context.Context, tx *sql.Tx, b model.Booking) (uint64, error) {
	var at sql.NullTime
	if b.CancelledAt != nil {
		at = sql.NullTime{Time: *b.CancelledAt, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO archived_bookings (original_booking_id, user_id, package_id, full_name, email, phone, event_date,
		    event_time, venue_name, special_requests, event_duration, packs, payment_method, total_price, terms_accepted,
		    status, cancellation_reason, cancelled_at, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.UserID, b.PackageID, b.FullName, b.Email, b.Phone, b.EventDate, b.EventTime, b.VenueName,
		nullString(b.SpecialRequests), b.EventDuration, b.Packs, b.PaymentMethod, b.TotalPrice, b.TermsAccepted,
		b.Status, nullString(b.CancellationReason), at, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

// InsertPaymentsTx stores the payments that belonged to an archived booking.
func (r *ArchiveRepo) InsertPaymentsTx(ctx context.Context, tx *sql.Tx, archivedID uint64, payments []model.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	values := make([]string, 0, len(payments))
	args := make([]any, 0, len(payments)*5)
	for _, p := range payments {
		values = append(values, "(?,?,?,?,?)")
		args = append(args, archivedID, p.Amount, p.PaymentType, nullString(p.Note), p.CreatedAt)
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO archived_payments (archived_booking_id, amount, payment_type, note, created_at) VALUES "+
			strings.Join(values, ","), args...)
	return err
}

func (r *ArchiveRepo) List(ctx context.Context) ([]model.ArchivedBooking, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+archivedColumns+archivedFrom+" ORDER BY a.archived_at DESC, a.id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ArchivedBooking{}
	for rows.Next() {
		a, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns an archived booking with its payments.
func (r *ArchiveRepo) Get(ctx context.Context, id uint64) (model.ArchivedBooking, error) {
	a, err := scanArchived(r.db.QueryRowContext(ctx, "SELECT "+archivedColumns+archivedFrom+" WHERE a.id = ?", id))
	if err != nil {
		return model.ArchivedBooking{}, notFound(err, ErrArchivedBookingNotFound)
	}
	a.Payments, err = archivedPayments(ctx, r.db, id)
	return a, err
}

// GetForUpdateTx locks the archive row and loads its payments.
func (r *ArchiveRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.ArchivedBooking, error) {
	a, err := scanArchived(tx.QueryRowContext(ctx,
		"SELECT "+archivedColumns+archivedFrom+" WHERE a.id = ? FOR UPDATE", id))
	if err != nil {
		return model.ArchivedBooking{}, notFound(err, ErrArchivedBookingNotFound)
	}
	a.Payments, err = archivedPayments(ctx, tx, id)
	return a, err
}

func archivedPayments(ctx context.Context, q querier, archivedID uint64) ([]model.Payment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, amount, payment_type, note, created_at FROM archived_payments
		 WHERE archived_booking_id=? ORDER BY created_at, id`, archivedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		var (
			p    model.Payment
			note sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Amount, &p.PaymentType, &note, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Note = stringPtr(note)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MoveThreadTx re-points the booking's messages and ratings at the archive
// entry so deleting the booking leaves them in place.
func (r *ArchiveRepo) MoveThreadTx(ctx context.Context, tx *sql.Tx, bookingID, archivedID uint64) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET booking_id=NULL, archived_booking_id=? WHERE booking_id=?", archivedID, bookingID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		"UPDATE ratings SET booking_id=NULL, archived_booking_id=? WHERE booking_id=?", archivedID, bookingID)
	return err
}

// RestoreThreadTx hands an archive entry's messages and ratings to the
// restored booking.
func (r *ArchiveRepo) RestoreThreadTx(ctx context.Context, tx *sql.Tx, archivedID, bookingID uint64) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE messages SET booking_id=?, archived_booking_id=NULL WHERE archived_booking_id=?", bookingID, archivedID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		"UPDATE ratings SET booking_id=?, archived_booking_id=NULL WHERE archived_booking_id=?", bookingID, archivedID)
	return err
}

// DeleteTx permanently removes an archived booking and its payments. Its
// messages go with it through the foreign key.
func (r *ArchiveRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM archived_payments WHERE archived_booking_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM archived_bookings WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrArchivedBookingNotFound)
}
