package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/event-booking/internal/model"
)

func sampleBooking() model.Booking {
	return model.Booking{
		ID: 12, FullName: "Ana Cruz", Email: "ana@example.com", PackageName: "Gold Wedding",
		PackageType: "wedding", EventDate: time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC), EventTime: "16:00",
		VenueName: "Garden Hall", Packs: 60, EventDuration: 2, Status: model.BookingConfirmed,
		TotalPrice: decimal.NewFromInt(1000),
	}
}

func TestBookingReceiptRendersPDF(t *testing.T) {
	note := "first installment"
	payments := []model.Payment{
		{ID: 1, Amount: decimal.NewFromInt(400), PaymentType: "cash", Note: &note, CreatedAt: time.Now()},
		{ID: 2, Amount: decimal.NewFromInt(700), PaymentType: "gcash", CreatedAt: time.Now()},
	}
	out, err := BookingReceipt(sampleBooking(), payments, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	empty, err := BookingReceipt(sampleBooking(), nil, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, empty)
}

func TestBookingsWorkbook(t *testing.T) {
	rows := []BookingRow{{
		Booking: sampleBooking(),
		Balance: model.NewBalance(decimal.NewFromInt(1000), decimal.NewFromInt(1100)),
	}}
	out, err := BookingsWorkbook(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(bookingsSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Customer", header)

	name, _ := f.GetCellValue(bookingsSheet, "B2")
	assert.Equal(t, "Ana Cruz", name)
	remaining, _ := f.GetCellValue(bookingsSheet, "O2", excelize.Options{RawCellValue: true})
	assert.Equal(t, "0", remaining)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
