package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/pricing"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
)

// BookingService owns the booking lifecycle: creation at a fixed price,
// payment-driven status changes, cancellation, archival and deletion.
type BookingService struct {
	db       *sql.DB
	bookings *repository.BookingRepo
	payments *repository.PaymentRepo
	archive  *repository.ArchiveRepo
	packages *repository.PackageRepo
	messages *repository.MessageRepo
	events   EventPublisher
	metrics  *metrics.BookingMetrics
	log      *logging.Logger
	now      func() time.Time
}

func NewBookingService(db *sql.DB, events EventPublisher, log *logging.Logger, m *metrics.BookingMetrics) *BookingService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &BookingService{
		db:       db,
		bookings: repository.NewBookingRepo(db),
		payments: repository.NewPaymentRepo(db),
		archive:  repository.NewArchiveRepo(db),
		packages: repository.NewPackageRepo(db),
		messages: repository.NewMessageRepo(db),
		events:   events,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// CreateBookingInput is the body of POST /bookings.
type CreateBookingInput struct {
	PackageID       uint64  `json:"package_id" validate:"required"`
	FullName        string  `json:"full_name" validate:"required,max=255"`
	Email           string  `json:"email" validate:"required,email,max=255"`
	Phone           string  `json:"phone" validate:"required,max=30"`
	EventDate       string  `json:"event_date" validate:"required,date"`
	EventTime       string  `json:"event_time" validate:"required,clock"`
	VenueName       string  `json:"venue_name" validate:"required,max=255"`
	SpecialRequests *string `json:"special_requests" validate:"omitempty,max=2000"`
	EventDuration   int     `json:"event_duration" validate:"required"`
	Packs           int     `json:"packs" validate:"required"`
	PaymentMethod   string  `json:"payment_method" validate:"required,oneof=cash gcash bank_transfer card"`
	TermsAccepted   bool    `json:"terms_accepted"`
	// Status is honoured for staff only; customers always start pending.
	Status string `json:"status" validate:"omitempty,oneof=pending confirmed ongoing preparing completed cancelled"`
}

// TermsFor extracts the pricing inputs of a package.
func TermsFor(p model.Package) pricing.Terms {
	return pricing.Terms{
		BasePrice:        p.Price,
		BaseHeadcount:    p.Packs,
		SurchargePercent: p.AdditionalPricePercentage,
	}
}

// Create prices the request with pricing.Quote and stores the booking. The
// total is never recomputed afterwards.
func (s *BookingService) Create(ctx context.Context, actor Actor, in CreateBookingInput) (model.Booking, pricing.Breakdown, error) {
	if !in.TermsAccepted {
		return model.Booking{}, pricing.Breakdown{}, apperror.Validation("terms_accepted", "terms and conditions must be accepted")
	}
	date, err := time.Parse(dateLayout, in.EventDate)
	if err != nil {
		return model.Booking{}, pricing.Breakdown{}, apperror.Validation("event_date", "must be a date formatted as YYYY-MM-DD")
	}
	if date.Before(startOfDay(s.now().UTC())) {
		return model.Booking{}, pricing.Breakdown{}, apperror.Validation("event_date", "must not be in the past")
	}

	pkg, err := s.packages.Get(ctx, in.PackageID)
	if err != nil {
		return model.Booking{}, pricing.Breakdown{}, translate(err, "load package")
	}
	if !pkg.Bookable() {
		return model.Booking{}, pricing.Breakdown{}, apperror.Validation("package_id", "package is not available for booking")
	}
	quote, err := pricing.Quote(TermsFor(pkg), pricing.Request{Headcount: in.Packs, EventDuration: in.EventDuration})
	if err != nil {
		return model.Booking{}, pricing.Breakdown{}, err
	}

	status := model.BookingPending
	if actor.Staff() && in.Status != "" {
		status = in.Status
	}
	b := model.Booking{
		UserID:          actor.UserID,
		PackageID:       pkg.ID,
		FullName:        strings.TrimSpace(in.FullName),
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:           strings.TrimSpace(in.Phone),
		EventDate:       date,
		EventTime:       in.EventTime,
		VenueName:       strings.TrimSpace(in.VenueName),
		SpecialRequests: in.SpecialRequests,
		EventDuration:   in.EventDuration,
		Packs:           in.Packs,
		PaymentMethod:   in.PaymentMethod,
		TotalPrice:      quote.Total,
		TermsAccepted:   true,
		Status:          status,
	}
	if err := s.bookings.Create(ctx, &b); err != nil {
		return model.Booking{}, pricing.Breakdown{}, translate(err, "create booking")
	}
	s.metrics.BookingCreated()
	s.publish(ctx, queue.KeyBookingCreated, b, model.NewBalance(b.TotalPrice, decimal.Zero), "")
	return b, quote, nil
}

// Quote previews the price Create would charge.
func (s *BookingService) Quote(ctx context.Context, packageID uint64, req pricing.Request) (pricing.Breakdown, error) {
	pkg, err := s.packages.Get(ctx, packageID)
	if err != nil {
		return pricing.Breakdown{}, translate(err, "load package")
	}
	if !pkg.Bookable() {
		return pricing.Breakdown{}, apperror.NotFound("package")
	}
	return pricing.Quote(TermsFor(pkg), req)
}

// Get returns a booking and its balance. Customers only see their own.
func (s *BookingService) Get(ctx context.Context, actor Actor, id uint64) (model.Booking, model.Balance, error) {
	b, err := s.authorize(ctx, actor, id)
	if err != nil {
		return model.Booking{}, model.Balance{}, err
	}
	paid, err := s.payments.Sum(ctx, id)
	if err != nil {
		return model.Booking{}, model.Balance{}, translate(err, "sum payments")
	}
	return b, model.NewBalance(b.TotalPrice, paid), nil
}

func (s *BookingService) authorize(ctx context.Context, actor Actor, id uint64) (model.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return model.Booking{}, translate(err, "load booking")
	}
	if !actor.Staff() && b.UserID != actor.UserID {
		return model.Booking{}, apperror.Forbidden("booking belongs to another user")
	}
	return b, nil
}

// Authorize exposes the ownership check to other services (messages).
func (s *BookingService) Authorize(ctx context.Context, actor Actor, id uint64) (model.Booking, error) {
	return s.authorize(ctx, actor, id)
}

func (s *BookingService) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	if f.Status != "" && !model.ValidBookingStatus(f.Status) {
		return nil, apperror.Validation("status", "unknown booking status")
	}
	out, err := s.bookings.List(ctx, f)
	return out, translate(err, "list bookings")
}

func (s *BookingService) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.List(ctx, model.BookingFilter{UserID: userID})
}

// UpdateBookingInput is the admin edit form. Price inputs are absent.
type UpdateBookingInput struct {
	FullName           string  `json:"full_name" validate:"required,max=255"`
	Email              string  `json:"email" validate:"required,email,max=255"`
	Phone              string  `json:"phone" validate:"required,max=30"`
	EventDate          string  `json:"event_date" validate:"required,date"`
	EventTime          string  `json:"event_time" validate:"required,clock"`
	VenueName          string  `json:"venue_name" validate:"required,max=255"`
	SpecialRequests    *string `json:"special_requests" validate:"omitempty,max=2000"`
	PaymentMethod      string  `json:"payment_method" validate:"required,oneof=cash gcash bank_transfer card"`
	Status             string  `json:"status" validate:"omitempty,oneof=pending confirmed ongoing preparing completed cancelled"`
	CancellationReason string  `json:"cancellation_reason" validate:"omitempty,max=500"`
}

// Update corrects event details and optionally moves the status. Both
// writes share one transaction and every check runs before either.
func (s *BookingService) Update(ctx context.Context, actor Actor, id uint64, in UpdateBookingInput) (model.Booking, error) {
	date, err := time.Parse(dateLayout, in.EventDate)
	if err != nil {
		return model.Booking{}, apperror.Validation("event_date", "must be a date formatted as YYYY-MM-DD")
	}
	reason := in.CancellationReason
	if in.Status != "" {
		if reason, err = checkStatus(actor, in.Status, reason); err != nil {
			return model.Booking{}, err
		}
	}
	details := repository.BookingDetails{
		FullName:        strings.TrimSpace(in.FullName),
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:           strings.TrimSpace(in.Phone),
		EventDate:       date,
		EventTime:       in.EventTime,
		VenueName:       strings.TrimSpace(in.VenueName),
		SpecialRequests: in.SpecialRequests,
		PaymentMethod:   in.PaymentMethod,
	}

	var changed bool
	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := s.bookings.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if in.Status != "" {
			if changed, err = s.moveStatusTx(ctx, tx, actor, &b, in.Status, reason); err != nil {
				return err
			}
		}
		return s.bookings.UpdateDetailsTx(ctx, tx, id, details)
	})
	if err != nil {
		return model.Booking{}, translate(err, "update booking")
	}
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return model.Booking{}, translate(err, "reload booking")
	}
	if changed {
		s.statusChanged(ctx, b, reason)
	}
	return b, nil
}

// UpdateStatus applies an explicit transition. Cancelling needs a reason
// and stamps cancelled_at; leaving completed or cancelled is a
// STATE_CONFLICT. Customers may only cancel their own bookings.
func (s *BookingService) UpdateStatus(ctx context.Context, actor Actor, id uint64, status, reason string) (model.Booking, error) {
	reason, err := checkStatus(actor, status, reason)
	if err != nil {
		return model.Booking{}, err
	}

	var (
		b       model.Booking
		changed bool
	)
	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if b, err = s.bookings.GetForUpdateTx(ctx, tx, id); err != nil {
			return err
		}
		changed, err = s.moveStatusTx(ctx, tx, actor, &b, status, reason)
		return err
	})
	if err != nil {
		return model.Booking{}, translate(err, "update booking status")
	}
	if changed {
		s.statusChanged(ctx, b, reason)
	}
	return b, nil
}

// checkStatus validates a requested transition without touching the store
// and returns the trimmed reason.
func checkStatus(actor Actor, status, reason string) (string, error) {
	if !model.ValidBookingStatus(status) {
		return "", apperror.Validation("status", "unknown booking status")
	}
	reason = strings.TrimSpace(reason)
	if status == model.BookingCancelled && reason == "" {
		return "", apperror.Validation("cancellation_reason", "is required when cancelling")
	}
	if !actor.Staff() && status != model.BookingCancelled {
		return "", apperror.Forbidden("customers may only cancel bookings")
	}
	return reason, nil
}

// moveStatusTx writes the transition on a row already locked by the caller.
// It reports false when b is already in status.
func (s *BookingService) moveStatusTx(ctx context.Context, tx *sql.Tx, actor Actor, b *model.Booking, status, reason string) (bool, error) {
	if !actor.Staff() && b.UserID != actor.UserID {
		return false, apperror.Forbidden("booking belongs to another user")
	}
	if b.Status == status {
		return false, nil
	}
	if model.TerminalBookingStatus(b.Status) {
		return false, apperror.New(apperror.CodeStateConflict, fmt.Sprintf("booking is already %s", b.Status)).
			WithDetails(map[string]string{"from": b.Status, "to": status})
	}

	var (
		why *string
		at  *time.Time
	)
	if status == model.BookingCancelled {
		now := s.now().UTC()
		why, at = &reason, &now
	}
	if err := s.bookings.UpdateStatusTx(ctx, tx, b.ID, status, why, at); err != nil {
		return false, err
	}
	b.Status, b.CancellationReason, b.CancelledAt = status, why, at
	return true, nil
}

// statusChanged records the transition and publishes its event. A failed
// balance lookup still publishes, without the balance.
func (s *BookingService) statusChanged(ctx context.Context, b model.Booking, reason string) {
	s.metrics.StatusChanged(b.Status)
	key, ok := statusKeys[b.Status]
	if !ok {
		return
	}
	balance := model.Balance{TotalPrice: b.TotalPrice}
	if paid, err := s.payments.Sum(ctx, b.ID); err != nil {
		s.log.Warn(s.log.WithField(ctx, "booking_id", b.ID), "sum payments for status event", err)
	} else {
		balance = model.NewBalance(b.TotalPrice, paid)
	}
	s.publish(ctx, key, b, balance, reason)
}

var statusKeys = map[string]string{
	model.BookingConfirmed: queue.KeyBookingConfirmed,
	model.BookingCompleted: queue.KeyBookingCompleted,
	model.BookingCancelled: queue.KeyBookingCancelled,
}

// PaymentInput is the body of POST /admin/bookings/:id/payments.
type PaymentInput struct {
	Amount      decimal.Decimal `json:"amount" validate:"required,gt=0"`
	PaymentType string          `json:"payment_type" validate:"omitempty,oneof=cash gcash bank_transfer card"`
	Note        *string         `json:"note" validate:"omitempty,max=500"`
}

// PaymentResult reports a recorded payment and where the booking stands.
type PaymentResult struct {
	Payment model.Payment `json:"payment"`
	Booking model.Booking `json:"booking"`
	model.Balance
}

// StatusAfterPayment derives the booking status once a payment moves the
// cumulative paid amount from before to after.
func StatusAfterPayment(current string, total, before, after decimal.Decimal) string {
	switch {
	case after.GreaterThanOrEqual(total):
		return model.BookingCompleted
	case before.IsZero():
		return model.BookingConfirmed
	default:
		return current
	}
}

// RecordPayment inserts a payment and updates the status in one
// transaction. The booking row is locked before the paid sum is read, so
// concurrent payments on the same booking serialize.
func (s *BookingService) RecordPayment(ctx context.Context, actor Actor, bookingID uint64, in PaymentInput) (PaymentResult, error) {
	if !in.Amount.IsPositive() {
		return PaymentResult{}, apperror.Validation("amount", "must be greater than 0")
	}
	paymentType := in.PaymentType
	if paymentType == "" {
		paymentType = "cash"
	}

	var (
		res    PaymentResult
		before string
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := s.bookings.GetForUpdateTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		prev, err := s.payments.SumTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		p := model.Payment{BookingID: bookingID, Amount: in.Amount.Round(2), PaymentType: paymentType, Note: in.Note}
		if err := s.payments.CreateTx(ctx, tx, &p); err != nil {
			return err
		}
		paid := prev.Add(p.Amount)
		before = b.Status
		next := StatusAfterPayment(b.Status, b.TotalPrice, prev, paid)
		if next != b.Status {
			if err := s.bookings.UpdateStatusTx(ctx, tx, bookingID, next, nil, nil); err != nil {
				return err
			}
			b.Status, b.CancellationReason, b.CancelledAt = next, nil, nil
		}
		res = PaymentResult{Payment: p, Booking: b, Balance: model.NewBalance(b.TotalPrice, paid)}
		return nil
	})
	if err != nil {
		return PaymentResult{}, translate(err, "record payment")
	}

	s.metrics.PaymentRecorded(res.Payment.Amount)
	ev := res.Booking
	s.publishAmount(ctx, queue.KeyPaymentRecorded, ev, res.Balance, res.Payment.Amount)
	if ev.Status != before {
		s.metrics.StatusChanged(ev.Status)
		if key, ok := statusKeys[ev.Status]; ok {
			s.publish(ctx, key, ev, res.Balance, "")
		}
	}
	s.systemMessage(ctx, actor, bookingID, fmt.Sprintf("Payment of %s recorded. Remaining balance: %s.",
		res.Payment.Amount.StringFixed(2), res.Remaining.StringFixed(2)))
	return res, nil
}

// PaymentList is a booking's payment history with totals.
type PaymentList struct {
	Payments []model.Payment `json:"payments"`
	model.Balance
}

func (s *BookingService) ListPayments(ctx context.Context, actor Actor, bookingID uint64) (PaymentList, error) {
	b, err := s.authorize(ctx, actor, bookingID)
	if err != nil {
		return PaymentList{}, err
	}
	payments, err := s.payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return PaymentList{}, translate(err, "list payments")
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return PaymentList{Payments: payments, Balance: model.NewBalance(b.TotalPrice, paid)}, nil
}

// Archive moves the booking and its payments into the archive tables and
// removes them from the live ones. Its messages and ratings are re-pointed
// at the archive entry. It returns the archive id.
func (s *BookingService) Archive(ctx context.Context, id uint64) (uint64, error) {
	var (
		archivedID uint64
		b          model.Booking
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		b, err = s.bookings.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		payments, err := s.payments.ListByBookingTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if archivedID, err = s.archive.InsertTx(ctx, tx, b); err != nil {
			return err
		}
		if err := s.archive.InsertPaymentsTx(ctx, tx, archivedID, payments); err != nil {
			return err
		}
		if err := s.archive.MoveThreadTx(ctx, tx, id, archivedID); err != nil {
			return err
		}
		if err := s.payments.DeleteByBookingTx(ctx, tx, id); err != nil {
			return err
		}
		return s.bookings.DeleteTx(ctx, tx, id)
	})
	if err != nil {
		return 0, translate(err, "archive booking")
	}
	s.publish(ctx, queue.KeyBookingArchived, b, model.Balance{TotalPrice: b.TotalPrice}, "")
	return archivedID, nil
}

// Restore re-creates a live booking (with a new id) with its payments,
// messages and ratings from the archive, then drops the archive entry.
func (s *BookingService) Restore(ctx context.Context, archivedID uint64) (model.Booking, error) {
	var newID uint64
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		a, err := s.archive.GetForUpdateTx(ctx, tx, archivedID)
		if err != nil {
			return err
		}
		if newID, err = s.bookings.InsertSnapshotTx(ctx, tx, a.Snapshot); err != nil {
			return err
		}
		if err := s.payments.RestoreTx(ctx, tx, newID, a.Payments); err != nil {
			return err
		}
		if err := s.archive.RestoreThreadTx(ctx, tx, archivedID, newID); err != nil {
			return err
		}
		return s.archive.DeleteTx(ctx, tx, archivedID)
	})
	if err != nil {
		return model.Booking{}, translate(err, "restore booking")
	}
	b, err := s.bookings.Get(ctx, newID)
	if err != nil {
		return model.Booking{}, translate(err, "reload restored booking")
	}
	s.publish(ctx, queue.KeyBookingRestored, b, model.Balance{TotalPrice: b.TotalPrice}, "")
	return b, nil
}

func (s *BookingService) ListArchived(ctx context.Context) ([]model.ArchivedBooking, error) {
	out, err := s.archive.List(ctx)
	return out, translate(err, "list archived bookings")
}

func (s *BookingService) GetArchived(ctx context.Context, id uint64) (model.ArchivedBooking, error) {
	a, err := s.archive.Get(ctx, id)
	return a, translate(err, "load archived booking")
}

// DeleteArchived permanently removes an archive entry and its payments.
func (s *BookingService) DeleteArchived(ctx context.Context, id uint64) error {
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.archive.DeleteTx(ctx, tx, id)
	})
	return translate(err, "delete archived booking")
}

// Delete removes the booking's payments and then the booking.
func (s *BookingService) Delete(ctx context.Context, id uint64) error {
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.bookings.GetForUpdateTx(ctx, tx, id); err != nil {
			return err
		}
		if err := s.payments.DeleteByBookingTx(ctx, tx, id); err != nil {
			return err
		}
		return s.bookings.DeleteTx(ctx, tx, id)
	})
	return translate(err, "delete booking")
}

// Export loads every booking matching f with its balance.
func (s *BookingService) Export(ctx context.Context, f model.BookingFilter) ([]model.Booking, []model.Balance, error) {
	list, err := s.List(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	balances := make([]model.Balance, len(list))
	for i, b := range list {
		paid, err := s.payments.Sum(ctx, b.ID)
		if err != nil {
			return nil, nil, translate(err, "sum payments")
		}
		balances[i] = model.NewBalance(b.TotalPrice, paid)
	}
	return list, balances, nil
}

// Receipt loads what the PDF receipt needs.
func (s *BookingService) Receipt(ctx context.Context, actor Actor, id uint64) (model.Booking, []model.Payment, error) {
	b, err := s.authorize(ctx, actor, id)
	if err != nil {
		return model.Booking{}, nil, err
	}
	payments, err := s.payments.ListByBooking(ctx, id)
	return b, payments, translate(err, "list payments")
}

func (s *BookingService) publish(ctx context.Context, key string, b model.Booking, bal model.Balance, reason string) {
	s.emit(ctx, key, bookingEvent(b, bal, reason, s.now()))
}

func (s *BookingService) publishAmount(ctx context.Context, key string, b model.Booking, bal model.Balance, amount decimal.Decimal) {
	ev := bookingEvent(b, bal, "", s.now())
	ev.Amount = amount
	s.emit(ctx, key, ev)
}

// emit publishes best effort: failures are logged and counted, never
// returned to the caller.
func (s *BookingService) emit(ctx context.Context, key string, ev queue.BookingEvent) {
	err := s.events.Publish(context.WithoutCancel(ctx), key, ev)
	s.metrics.EventPublished(key, err)
	if err != nil && s.log != nil {
		s.log.Warn(s.log.WithFields(ctx, map[string]any{"routing_key": key, "booking_id": ev.BookingID}),
			"publish booking event failed", err)
	}
}

func bookingEvent(b model.Booking, bal model.Balance, reason string, now time.Time) queue.BookingEvent {
	return queue.BookingEvent{
		BookingID:   b.ID,
		UserID:      b.UserID,
		PackageID:   b.PackageID,
		PackageName: b.PackageName,
		Email:       b.Email,
		FullName:    b.FullName,
		EventDate:   b.EventDate.Format(dateLayout),
		Status:      b.Status,
		TotalPrice:  bal.TotalPrice,
		TotalPaid:   bal.TotalPaid,
		Remaining:   bal.Remaining,
		Reason:      reason,
		OccurredAt:  now.UTC(),
	}
}

// systemMessage posts a server-generated note into the booking thread.
func (s *BookingService) systemMessage(ctx context.Context, actor Actor, bookingID uint64, text string) {
	if s.messages == nil || actor.UserID == 0 {
		return
	}
	m := model.Message{BookingID: &bookingID, SenderID: actor.UserID, Content: text, IsSystem: true}
	if err := s.messages.Create(ctx, &m); err != nil && s.log != nil {
		s.log.Warn(ctx, "post system message failed", err)
	}
}
