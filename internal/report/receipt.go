// Package report renders documents derived from bookings: the customer's
// payment receipt (PDF) and the admin bookings export (xlsx).
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-booking/internal/model"
)

// BookingReceipt renders a one-page PDF listing the booking, its payments
// and the remaining balance (floored at zero).
func BookingReceipt(b model.Booking, payments []model.Payment, issuedAt time.Time) ([]byte, error) {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	bal := model.NewBalance(b.TotalPrice, paid)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Receipt #%d", b.ID), false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "PAYMENT RECEIPT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	line := func(label, value string) {
		pdf.CellFormat(45, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
	}
	line("Booking", fmt.Sprintf("#%d", b.ID))
	line("Issued", issuedAt.Format("2006-01-02 15:04"))
	line("Customer", b.FullName)
	line("Email", b.Email)
	line("Package", dash(b.PackageName))
	line("Event date", b.EventDate.Format("2006-01-02")+" "+b.EventTime)
	line("Venue", b.VenueName)
	line("Guests / days", fmt.Sprintf("%d / %d", b.Packs, b.EventDuration))
	line("Status", b.Status)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 236, 245)
	pdf.CellFormat(40, 8, "Date", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 8, "Type", "1", 0, "L", true, 0, "")
	pdf.CellFormat(70, 8, "Note", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 8, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	if len(payments) == 0 {
		pdf.CellFormat(180, 8, "No payments recorded", "1", 1, "C", false, 0, "")
	}
	for _, p := range payments {
		note := ""
		if p.Note != nil {
			note = *p.Note
		}
		pdf.CellFormat(40, 7, p.CreatedAt.Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, p.PaymentType, "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 7, tr(truncate(note, 40)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, p.Amount.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	total := func(label string, v decimal.Decimal) {
		pdf.CellFormat(145, 7, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, v.StringFixed(2), "", 1, "R", false, 0, "")
	}
	total("Total price", bal.TotalPrice)
	total("Total paid", bal.TotalPaid)
	total("Remaining balance", bal.Remaining)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
