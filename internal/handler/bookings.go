package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/report"
	"github.com/iliyamo/event-booking/internal/service"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// BookingHandler serves the customer booking endpoints and the staff
// booking, payment and archive endpoints.
type BookingHandler struct {
	Bookings *service.BookingService
	now      func() time.Time
}

func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	if bookings == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings, now: time.Now}
}

type statusReq struct {
	Status             string `json:"status" validate:"required"`
	CancellationReason string `json:"cancellation_reason" validate:"max=500"`
}

type cancelReq struct {
	CancellationReason string `json:"cancellation_reason" validate:"required,max=500"`
}

// Create prices and stores a booking for the caller.
func (h *BookingHandler) Create(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.CreateBookingInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, quote, err := h.Bookings.Create(ctx, a, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Booking created successfully",
		"booking": b,
		"pricing": quote,
	})
}

func (h *BookingHandler) Mine(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Bookings.ListByUser(ctx, a.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

func (h *BookingHandler) Get(c echo.Context) error {
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
	b, bal, err := h.Bookings.Get(ctx, a, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b, "balance": bal})
}

// Cancel lets the owner (or staff) cancel with a reason.
func (h *BookingHandler) Cancel(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req cancelReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Bookings.UpdateStatus(ctx, a, id, model.BookingCancelled, req.CancellationReason)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Booking cancelled successfully", "booking", b)
}

func (h *BookingHandler) Payments(c echo.Context) error {
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
	out, err := h.Bookings.ListPayments(ctx, a, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// Receipt renders the booking and its payments as a PDF.
func (h *BookingHandler) Receipt(c echo.Context) error {
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
	b, payments, err := h.Bookings.Receipt(ctx, a, id)
	if err != nil {
		return err
	}
	pdf, err := report.BookingReceipt(b, payments, h.now())
	if err != nil {
		return err
	}
	return attachment(c, mimePDF, fmt.Sprintf("receipt-%d.pdf", b.ID), pdf)
}

// List is the staff view; ?status= narrows it.
func (h *BookingHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Bookings.List(ctx, model.BookingFilter{Status: c.QueryParam("status")})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

func (h *BookingHandler) ListForUser(c echo.Context) error {
	userID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Bookings.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

func (h *BookingHandler) Update(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.UpdateBookingInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Bookings.Update(ctx, a, id, req)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Booking updated successfully", "booking", b)
}

func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Bookings.UpdateStatus(ctx, a, id, req.Status, req.CancellationReason)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Booking status updated successfully", "booking", b)
}

func (h *BookingHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Bookings.Delete(ctx, id); err != nil {
		return err
	}
	return done(c, http.StatusOK, "Booking deleted successfully", "", nil)
}

// RecordPayment adds a payment; the response carries the new balance and
// the booking's resulting status.
func (h *BookingHandler) RecordPayment(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.PaymentInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.RecordPayment(ctx, a, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message":           "Payment recorded successfully",
		"payment":           res.Payment,
		"booking":           res.Booking,
		"total_price":       res.TotalPrice,
		"total_paid":        res.TotalPaid,
		"remaining_balance": res.Remaining,
	})
}

func (h *BookingHandler) Archive(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	archivedID, err := h.Bookings.Archive(ctx, id)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Booking archived successfully", "archived_id", archivedID)
}

// Export downloads the (optionally status-filtered) bookings as xlsx.
func (h *BookingHandler) Export(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, balances, err := h.Bookings.Export(ctx, model.BookingFilter{Status: c.QueryParam("status")})
	if err != nil {
		return err
	}
	rows := make([]report.BookingRow, len(list))
	for i := range list {
		rows[i] = report.BookingRow{Booking: list[i], Balance: balances[i]}
	}
	xlsx, err := report.BookingsWorkbook(rows)
	if err != nil {
		return err
	}
	return attachment(c, mimeXLSX, "bookings-"+h.now().Format("20060102")+".xlsx", xlsx)
}

func (h *BookingHandler) ListArchived(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Bookings.ListArchived(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"archived_bookings": out})
}

func (h *BookingHandler) GetArchived(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := h.Bookings.GetArchived(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"archived_booking": a})
}

func (h *BookingHandler) Restore(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Bookings.Restore(ctx, id)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Booking restored successfully", "booking", b)
}

func (h *BookingHandler) DeleteArchived(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Bookings.DeleteArchived(ctx, id); err != nil {
		return err
	}
	return done(c, http.StatusOK, "Archived booking deleted successfully", "", nil)
}
