package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// BookingRepo reads and writes the `bookings` table. Multi-table operations
// (payments, archive, delete) run through the *Tx methods inside a caller
// owned transaction.
type BookingRepo struct{ db *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `b.id, b.user_id, b.package_id, b.full_name, b.email, b.phone, b.event_date, b.event_time,
	b.venue_name, b.special_requests, b.event_duration, b.packs, b.payment_method, b.total_price, b.terms_accepted,
	b.status, b.cancellation_reason, b.cancelled_at, b.created_at, b.updated_at,
	COALESCE(p.package_name, ''), COALESCE(p.package_type, '')`

const bookingFrom = ` FROM bookings b LEFT JOIN packages p ON p.id = b.package_id`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var (
		b         model.Booking
		requests  sql.NullString
		reason    sql.NullString
		cancelled sql.NullTime
	)
	err := row.Scan(&b.ID, &b.UserID, &b.PackageID, &b.FullName, &b.Email, &b.Phone, &b.EventDate, &b.EventTime,
		&b.VenueName, &requests, &b.EventDuration, &b.Packs, &b.PaymentMethod, &b.TotalPrice, &b.TermsAccepted,
		&b.Status, &reason, &cancelled, &b.CreatedAt, &b.UpdatedAt, &b.PackageName, &b.PackageType)
	if err != nil {
		return model.Booking{}, err
	}
	b.SpecialRequests = stringPtr(requests)
	b.CancellationReason = stringPtr(reason)
	b.CancelledAt = timePtr(cancelled)
	return b, nil
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Create inserts a new booking and reads it back to pick up defaults.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO bookings (user_id, package_id, full_name, email, phone, event_date, event_time, venue_name,
		    special_requests, event_duration, packs, payment_method, total_price, terms_accepted, status)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.UserID, b.PackageID, b.FullName, b.Email, b.Phone, b.EventDate, b.EventTime, b.VenueName,
		nullString(b.SpecialRequests), b.EventDuration, b.Packs, b.PaymentMethod, b.TotalPrice, b.TermsAccepted, b.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	*b = created
	return nil
}

func (r *BookingRepo) Get(ctx context.Context, id uint64) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+bookingFrom+" WHERE b.id = ?", id))
	return b, notFound(err, ErrBookingNotFound)
}

// OwnerOf returns the user that placed the booking.
func (r *BookingRepo) OwnerOf(ctx context.Context, id uint64) (uint64, error) {
	var owner uint64
	err := r.db.QueryRowContext(ctx, "SELECT user_id FROM bookings WHERE id=?", id).Scan(&owner)
	return owner, notFound(err, ErrBookingNotFound)
}

// GetForUpdateTx locks the booking row for the rest of tx.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx,
		"SELECT "+bookingColumns+bookingFrom+" WHERE b.id = ? FOR UPDATE", id))
	return b, notFound(err, ErrBookingNotFound)
}

// List returns bookings newest first.
func (r *BookingRepo) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	q := "SELECT " + bookingColumns + bookingFrom + " WHERE 1=1"
	var args []any
	if f.Status != "" {
		q += " AND b.status = ?"
		args = append(args, f.Status)
	}
	if f.UserID != 0 {
		q += " AND b.user_id = ?"
		args = append(args, f.UserID)
	}
	q += " ORDER BY b.created_at DESC, b.id DESC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// BookingDetails are the event fields an admin may correct after creation.
// Price inputs (package, packs, duration) are deliberately absent.
type BookingDetails struct {
	FullName        string
	Email           string
	Phone           string
	EventDate       time.Time
	EventTime       string
	VenueName       string
	SpecialRequests *string
	PaymentMethod   string
}

// UpdateDetailsTx writes the correctable fields of a row the caller has locked.
func (r *BookingRepo) UpdateDetailsTx(ctx context.Context, tx *sql.Tx, id uint64, d BookingDetails) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET full_name=?, email=?, phone=?, event_date=?, event_time=?, venue_name=?,
		    special_requests=?, payment_method=? WHERE id=?`,
		d.FullName, d.Email, d.Phone, d.EventDate, d.EventTime, d.VenueName, nullString(d.SpecialRequests),
		d.PaymentMethod, id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrBookingNotFound)
}

// UpdateStatusTx sets status and the cancellation fields together; both are
// cleared when the new status is not cancelled.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status string, reason *string, cancelledAt *time.Time) error {
	var at sql.NullTime
	if cancelledAt != nil {
		at = sql.NullTime{Time: *cancelledAt, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE bookings SET status=?, cancellation_reason=?, cancelled_at=? WHERE id=?",
		status, nullString(reason), at, id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrBookingNotFound)
}

// DeleteTx removes the booking row. Payments must be gone already.
func (r *BookingRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM bookings WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrBookingNotFound)
}

// InsertSnapshotTx re-creates a booking from an archived snapshot with a new
// id, keeping every other field including timestamps.
func (r *BookingRepo) InsertSnapshotTx(ctx context.Context, tx *sql.Tx, b model.Booking) (uint64, error) {
	var at sql.NullTime
	if b.CancelledAt != nil {
		at = sql.NullTime{Time: *b.CancelledAt, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, package_id, full_name, email, phone, event_date, event_time, venue_name,
		    special_requests, event_duration, packs, payment_method, total_price, terms_accepted, status,
		    cancellation_reason, cancelled_at, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.UserID, b.PackageID, b.FullName, b.Email, b.Phone, b.EventDate, b.EventTime, b.VenueName,
		nullString(b.SpecialRequests), b.EventDuration, b.Packs, b.PaymentMethod, b.TotalPrice, b.TermsAccepted,
		b.Status, nullString(b.CancellationReason), at, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}
