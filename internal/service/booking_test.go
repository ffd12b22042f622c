package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
)

func newBookingService(db *sql.DB, pub EventPublisher) *BookingService {
	s := NewBookingService(db, pub, logging.Nop(), nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

var admin = Actor{UserID: 1, Role: model.RoleAdmin}

func TestStatusAfterPayment(t *testing.T) {
	d := decimal.RequireFromString
	cases := []struct {
		name                 string
		current              string
		total, before, after string
		want                 string
	}{
		{"first partial confirms", model.BookingPending, "1000", "0", "400", model.BookingConfirmed},
		{"full payment completes", model.BookingConfirmed, "1000", "400", "1000", model.BookingCompleted},
		{"overpayment completes", model.BookingPending, "1000", "0", "1200", model.BookingCompleted},
		{"later partial keeps status", model.BookingPreparing, "1000", "200", "500", model.BookingPreparing},
		{"first payment on cancelled confirms", model.BookingCancelled, "1000", "0", "100", model.BookingConfirmed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusAfterPayment(tc.current, d(tc.total), d(tc.before), d(tc.after)))
		})
	}
}

func TestRecordPaymentTransitions(t *testing.T) {
	cases := []struct {
		name       string
		status     string
		prevPaid   string
		amount     string
		wantStatus string
		wantLeft   string
		updates    bool
		event      string
	}{
		{"deposit confirms", model.BookingPending, "0", "400", model.BookingConfirmed, "600", true, queue.KeyBookingConfirmed},
		{"balance completes", model.BookingConfirmed, "400", "600", model.BookingCompleted, "0", true, queue.KeyBookingCompleted},
		{"extra payment stays completed", model.BookingCompleted, "1000", "100", model.BookingCompleted, "0", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, m := newMock(t)
			pub := &recordingPublisher{}
			pub.On("Publish", queue.KeyPaymentRecorded, mock.AnythingOfType("queue.BookingEvent")).Return(nil).Once()
			if tc.event != "" {
				pub.On("Publish", tc.event, mock.AnythingOfType("queue.BookingEvent")).Return(nil).Once()
			}
			s := newBookingService(db, pub)

			m.ExpectBegin()
			m.ExpectQuery(`FROM bookings b .* FOR UPDATE`).WithArgs(7).
				WillReturnRows(bookingRows(7, 9, tc.status, "1000.00"))
			m.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM payments`).WithArgs(7).
				WillReturnRows(sumRows(tc.prevPaid))
			m.ExpectExec(`INSERT INTO payments`).WillReturnResult(sqlmock.NewResult(31, 1))
			m.ExpectQuery(`FROM payments WHERE id=`).WithArgs(31).WillReturnRows(paymentRows(31, 7, tc.amount))
			if tc.updates {
				m.ExpectExec(`UPDATE bookings SET status=`).
					WithArgs(tc.wantStatus, sqlmock.AnyArg(), sqlmock.AnyArg(), 7).
					WillReturnResult(sqlmock.NewResult(0, 1))
			}
			m.ExpectCommit()
			m.ExpectExec(`INSERT INTO messages`).WillReturnError(errors.New("chat down"))

			res, err := s.RecordPayment(context.Background(), admin, 7, PaymentInput{Amount: decimal.RequireFromString(tc.amount)})
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, res.Booking.Status)
			assert.True(t, decimal.RequireFromString(tc.wantLeft).Equal(res.Remaining), "remaining %s", res.Remaining)
			assert.True(t, decimal.RequireFromString(tc.prevPaid).Add(decimal.RequireFromString(tc.amount)).Equal(res.TotalPaid))
			assert.Equal(t, uint64(31), res.Payment.ID)
			pub.AssertExpectations(t)
		})
	}
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	db, _ := newMock(t)
	s := newBookingService(db, nil)
	for _, amt := range []string{"0", "-5"} {
		_, err := s.RecordPayment(context.Background(), admin, 7, PaymentInput{Amount: decimal.RequireFromString(amt)})
		assert.Equal(t, apperror.CodeValidation, codeOf(err))
	}
}

func TestRecordPaymentUnknownBookingRollsBack(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)
	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(404).WillReturnError(sql.ErrNoRows)
	m.ExpectRollback()

	_, err := s.RecordPayment(context.Background(), admin, 404, PaymentInput{Amount: decimal.NewFromInt(10)})
	assert.Equal(t, apperror.CodeNotFound, codeOf(err))
}

func TestUpdateStatusLeavingTerminalIsStateConflict(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)
	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingCompleted, "1000.00"))
	m.ExpectRollback()

	_, err := s.UpdateStatus(context.Background(), admin, 7, model.BookingPending, "")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeStateConflict, codeOf(err))
	assert.Equal(t, map[string]string{"from": "completed", "to": "pending"}, apperror.As(err).Details())
}

func TestUpdateStatusCancelStampsReason(t *testing.T) {
	db, m := newMock(t)
	pub := &recordingPublisher{}
	pub.On("Publish", queue.KeyBookingCancelled, mock.MatchedBy(func(ev queue.BookingEvent) bool {
		return ev.Reason == "double booked" && ev.Status == model.BookingCancelled
	})).Return(nil).Once()
	s := newBookingService(db, pub)
	customer := Actor{UserID: 9, Role: model.RoleUser}

	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingConfirmed, "1000.00"))
	m.ExpectExec(`UPDATE bookings SET status=`).
		WithArgs(model.BookingCancelled, "double booked", fixedNow, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
	m.ExpectQuery(`SUM\(amount\)`).WithArgs(7).WillReturnRows(sumRows("400"))

	b, err := s.UpdateStatus(context.Background(), customer, 7, model.BookingCancelled, "  double booked ")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, b.Status)
	require.NotNil(t, b.CancelledAt)
	assert.Equal(t, fixedNow, *b.CancelledAt)
	pub.AssertExpectations(t)
}

func TestUpdateStatusGuards(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)
	customer := Actor{UserID: 3, Role: model.RoleUser}

	_, err := s.UpdateStatus(context.Background(), admin, 7, model.BookingCancelled, " ")
	assert.Equal(t, apperror.CodeValidation, codeOf(err), "reason required")

	_, err = s.UpdateStatus(context.Background(), admin, 7, "shipped", "")
	assert.Equal(t, apperror.CodeValidation, codeOf(err), "unknown status")

	_, err = s.UpdateStatus(context.Background(), customer, 7, model.BookingConfirmed, "")
	assert.Equal(t, apperror.CodeForbidden, codeOf(err), "customers only cancel")

	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingPending, "1000.00"))
	m.ExpectRollback()
	_, err = s.UpdateStatus(context.Background(), customer, 7, model.BookingCancelled, "changed plans")
	assert.Equal(t, apperror.CodeForbidden, codeOf(err), "someone else's booking")
}

func TestUpdateStatusSameStatusIsNoop(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, &recordingPublisher{})
	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingCompleted, "1000.00"))
	m.ExpectCommit()

	b, err := s.UpdateStatus(context.Background(), admin, 7, model.BookingCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, b.Status)
}

func TestArchiveMovesBookingAndPayments(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)

	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingConfirmed, "1000.00"))
	m.ExpectQuery(`FROM payments WHERE booking_id=`).WithArgs(7).WillReturnRows(
		paymentRows(1, 7, "400.00").AddRow(2, 7, "100.00", "gcash", "second", fixedNow))
	m.ExpectExec(`INSERT INTO archived_bookings`).WillReturnResult(sqlmock.NewResult(55, 1))
	m.ExpectExec(`INSERT INTO archived_payments .* VALUES \(\?,\?,\?,\?,\?\),\(\?,\?,\?,\?,\?\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	m.ExpectExec(`UPDATE messages SET booking_id=NULL, archived_booking_id=\? WHERE booking_id=\?`).WithArgs(55, 7).
		WillReturnResult(sqlmock.NewResult(0, 6))
	m.ExpectExec(`UPDATE ratings SET booking_id=NULL, archived_booking_id=\? WHERE booking_id=\?`).WithArgs(55, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`DELETE FROM payments WHERE booking_id=`).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 2))
	m.ExpectExec(`DELETE FROM bookings WHERE id=`).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	id, err := s.Archive(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(55), id)
}

func TestArchiveFailureRollsBack(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)

	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingConfirmed, "1000.00"))
	m.ExpectQuery(`FROM payments WHERE booking_id=`).WithArgs(7).WillReturnRows(paymentRows(1, 7, "400.00"))
	m.ExpectExec(`INSERT INTO archived_bookings`).WillReturnError(errors.New("disk full"))
	m.ExpectRollback()

	_, err := s.Archive(context.Background(), 7)
	assert.Equal(t, apperror.CodeInternal, codeOf(err))
}

func TestArchiveKeepsThreadWhenMoveFails(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)

	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingConfirmed, "1000.00"))
	m.ExpectQuery(`FROM payments WHERE booking_id=`).WithArgs(7).WillReturnRows(paymentRows(1, 7, "400.00"))
	m.ExpectExec(`INSERT INTO archived_bookings`).WillReturnResult(sqlmock.NewResult(55, 1))
	m.ExpectExec(`INSERT INTO archived_payments`).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`UPDATE messages SET booking_id=NULL`).WithArgs(55, 7).WillReturnResult(sqlmock.NewResult(0, 2))
	m.ExpectExec(`UPDATE ratings SET booking_id=NULL`).WithArgs(55, 7).WillReturnError(errors.New("lock wait timeout"))
	m.ExpectRollback()

	_, err := s.Archive(context.Background(), 7)
	assert.Equal(t, apperror.CodeInternal, codeOf(err))
}

func TestRestoreCreatesNewBooking(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)
	archivedCols := append([]string{"id", "original_booking_id", "archived_at"}, bookingCols[1:]...)

	m.ExpectBegin()
	m.ExpectQuery(`FROM archived_bookings a .* FOR UPDATE`).WithArgs(55).WillReturnRows(
		sqlmock.NewRows(archivedCols).AddRow(55, 7, fixedNow, 9, 3, "Ana Cruz", "ana@example.com", "0917",
			fixedNow.AddDate(0, 1, 0), "14:00", "Grand Hall", nil, 1, 50, "cash", "1000.00", true,
			model.BookingConfirmed, nil, nil, fixedNow, fixedNow, "Gold", "wedding"))
	m.ExpectQuery(`FROM archived_payments`).WithArgs(55).WillReturnRows(
		sqlmock.NewRows([]string{"id", "amount", "payment_type", "note", "created_at"}).AddRow(1, "400.00", "cash", nil, fixedNow))
	m.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(88, 1))
	m.ExpectExec(`INSERT INTO payments \(booking_id, amount, payment_type, note, created_at\)`).
		WithArgs(88, sqlmock.AnyArg(), "cash", sqlmock.AnyArg(), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`UPDATE messages SET booking_id=\?, archived_booking_id=NULL WHERE archived_booking_id=\?`).WithArgs(88, 55).
		WillReturnResult(sqlmock.NewResult(0, 6))
	m.ExpectExec(`UPDATE ratings SET booking_id=\?, archived_booking_id=NULL WHERE archived_booking_id=\?`).WithArgs(88, 55).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`DELETE FROM archived_payments`).WithArgs(55).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`DELETE FROM archived_bookings`).WithArgs(55).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
	m.ExpectQuery(`FROM bookings b .* WHERE b.id = \?`).WithArgs(88).
		WillReturnRows(bookingRows(88, 9, model.BookingConfirmed, "1000.00"))

	b, err := s.Restore(context.Background(), 55)
	require.NoError(t, err)
	assert.Equal(t, uint64(88), b.ID)
	assert.Equal(t, model.BookingConfirmed, b.Status)
}

func TestDeleteRemovesPaymentsFirst(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)
	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingPending, "1000.00"))
	m.ExpectExec(`DELETE FROM payments WHERE booking_id=`).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 0))
	m.ExpectExec(`DELETE FROM bookings WHERE id=`).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), 7))
}

func TestCreateRejectsBeforeTouchingStore(t *testing.T) {
	db, _ := newMock(t)
	s := newBookingService(db, nil)
	in := CreateBookingInput{PackageID: 3, EventDate: "2025-06-20", EventTime: "14:00", Packs: 50, EventDuration: 1}

	_, _, err := s.Create(context.Background(), admin, in)
	assert.Equal(t, apperror.CodeValidation, codeOf(err), "terms not accepted")

	in.TermsAccepted = true
	in.EventDate = "2025-06-14"
	_, _, err = s.Create(context.Background(), admin, in)
	assert.Equal(t, apperror.CodeValidation, codeOf(err), "date in the past")
}

func TestCreatePricesAndForcesPendingForCustomers(t *testing.T) {
	db, m := newMock(t)
	pub := &recordingPublisher{}
	pub.On("Publish", queue.KeyBookingCreated, mock.Anything).Return(nil).Once()
	s := newBookingService(db, pub)

	m.ExpectQuery(`FROM packages`).WithArgs(3).WillReturnRows(packageRows(3, "1000.00", 50, nil, model.PackageActive))
	m.ExpectExec(`INSERT INTO bookings`).
		WithArgs(9, 3, "Ana Cruz", "ana@example.com", "0917", sqlmock.AnyArg(), "14:00", "Grand Hall",
			sqlmock.AnyArg(), 1, 60, "cash", sqlmock.AnyArg(), true, model.BookingPending).
		WillReturnResult(sqlmock.NewResult(7, 1))
	m.ExpectQuery(`WHERE b.id = \?`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingPending, "2000.00"))

	b, quote, err := s.Create(context.Background(), Actor{UserID: 9, Role: model.RoleUser}, CreateBookingInput{
		PackageID: 3, FullName: "Ana Cruz", Email: " ANA@example.com", Phone: "0917", EventDate: "2025-06-15",
		EventTime: "14:00", VenueName: "Grand Hall", EventDuration: 1, Packs: 60, PaymentMethod: "cash",
		TermsAccepted: true, Status: model.BookingCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), b.ID)
	// 10 extra guests, each charged 10% of the 1000 base price.
	assert.Equal(t, "2000.00", quote.Total.StringFixed(2))
	pub.AssertExpectations(t)
}

func updateInput(status, reason string) UpdateBookingInput {
	return UpdateBookingInput{
		FullName:           "Ana Cruz",
		Email:              "ana@example.com",
		Phone:              "0917",
		EventDate:          "2025-07-20",
		EventTime:          "15:00",
		VenueName:          "Garden Pavilion",
		PaymentMethod:      "cash",
		Status:             status,
		CancellationReason: reason,
	}
}

func TestUpdateChecksStatusBeforeWriting(t *testing.T) {
	db, _ := newMock(t)
	s := newBookingService(db, nil)

	_, err := s.Update(context.Background(), admin, 7, updateInput(model.BookingCancelled, ""))
	assert.Equal(t, apperror.CodeValidation, codeOf(err))
	assert.Equal(t, map[string]string{"cancellation_reason": "is required when cancelling"}, apperror.As(err).Details())
}

func TestUpdateLeavingTerminalKeepsDetails(t *testing.T) {
	db, m := newMock(t)
	s := newBookingService(db, nil)
	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingCompleted, "1000.00"))
	m.ExpectRollback()

	_, err := s.Update(context.Background(), admin, 7, updateInput(model.BookingPending, ""))
	assert.Equal(t, apperror.CodeStateConflict, codeOf(err))
}

func TestUpdateWritesDetailsAndStatusTogether(t *testing.T) {
	db, m := newMock(t)
	pub := &recordingPublisher{}
	pub.On("Publish", queue.KeyBookingCancelled, mock.MatchedBy(func(ev queue.BookingEvent) bool {
		return ev.Reason == "venue closed" && ev.TotalPaid.IsZero()
	})).Return(nil).Once()
	s := newBookingService(db, pub)

	m.ExpectBegin()
	m.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingConfirmed, "1000.00"))
	m.ExpectExec(`UPDATE bookings SET status=`).
		WithArgs(model.BookingCancelled, "venue closed", fixedNow, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`UPDATE bookings SET full_name=`).
		WithArgs("Ana Cruz", "ana@example.com", "0917", sqlmock.AnyArg(), "15:00", "Garden Pavilion", nil, "cash", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
	m.ExpectQuery(`WHERE b.id = \?`).WithArgs(7).WillReturnRows(bookingRows(7, 9, model.BookingCancelled, "1000.00"))
	m.ExpectQuery(`SUM\(amount\)`).WithArgs(7).WillReturnError(errors.New("connection reset"))

	b, err := s.Update(context.Background(), admin, 7, updateInput(model.BookingCancelled, " venue closed "))
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, b.Status)
	pub.AssertExpectations(t)
}
