package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/model"
)

// PaymentRepo stores booking installments. Payments are never updated.
type PaymentRepo struct{ db *sql.DB }

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = "id, booking_id, amount, payment_type, note, created_at"

func scanPayment(row interface{ Scan(...any) error }) (model.Payment, error) {
	var (
		p    model.Payment
		note sql.NullString
	)
	if err := row.Scan(&p.ID, &p.BookingID, &p.Amount, &p.PaymentType, &note, &p.CreatedAt); err != nil {
		return model.Payment{}, err
	}
	p.Note = stringPtr(note)
	return p, nil
}

// CreateTx inserts the payment and fills in its id and timestamp.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO payments (booking_id, amount, payment_type, note) VALUES (?,?,?,?)",
		p.BookingID, p.Amount, p.PaymentType, nullString(p.Note))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	saved, err := scanPayment(tx.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id=?", id))
	if err != nil {
		return err
	}
	*p = saved
	return nil
}

// SumTx reads the cumulative paid amount inside tx. Callers that derive a
// status from it must hold the booking row lock first.
func (r *PaymentRepo) SumTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (decimal.Decimal, error) {
	return sumPayments(ctx, tx, bookingID)
}

func (r *PaymentRepo) Sum(ctx context.Context, bookingID uint64) (decimal.Decimal, error) {
	return sumPayments(ctx, r.db, bookingID)
}

func sumPayments(ctx context.Context, q querier, bookingID uint64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM payments WHERE booking_id=?", bookingID).Scan(&total)
	return total, err
}

// ListByBooking returns payments oldest first.
func (r *PaymentRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
	return listPayments(ctx, r.db, bookingID)
}

func (r *PaymentRepo) ListByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) ([]model.Payment, error) {
	return listPayments(ctx, tx, bookingID)
}

func listPayments(ctx context.Context, q querier, bookingID uint64) ([]model.Payment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE booking_id=? ORDER BY created_at, id", bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteByBookingTx removes every payment of a booking.
func (r *PaymentRepo) DeleteByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM payments WHERE booking_id=?", bookingID)
	return err
}

// RestoreTx re-attaches archived payments to a booking, keeping their
// original timestamps.
func (r *PaymentRepo) RestoreTx(ctx context.Context, tx *sql.Tx, bookingID uint64, payments []model.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	values := make([]string, 0, len(payments))
	args := make([]any, 0, len(payments)*5)
	for _, p := range payments {
		values = append(values, "(?,?,?,?,?)")
		args = append(args, bookingID, p.Amount, p.PaymentType, nullString(p.Note), p.CreatedAt)
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO payments (booking_id, amount, payment_type, note, created_at) VALUES "+strings.Join(values, ","),
		args...)
	return err
}
