package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/event-booking/internal/model"
)

// BookingRow is one line of the admin export.
type BookingRow struct {
	Booking model.Booking
	Balance model.Balance
}

var workbookHeaders = []string{
	"ID", "Customer", "Email", "Phone", "Package", "Type", "Event date", "Time", "Venue",
	"Guests", "Days", "Status", "Total", "Paid", "Remaining", "Created",
}

const bookingsSheet = "Bookings"

// BookingsWorkbook renders rows into a single-sheet xlsx file.
func BookingsWorkbook(rows []BookingRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}

	if err := f.SetSheetRow(bookingsSheet, "A1", &workbookHeaders); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(workbookHeaders), 1)
	_ = f.SetCellStyle(bookingsSheet, "A1", last, header)

	for i, r := range rows {
		b := r.Booking
		values := []any{
			b.ID, b.FullName, b.Email, b.Phone, b.PackageName, b.PackageType,
			b.EventDate.Format("2006-01-02"), b.EventTime, b.VenueName,
			b.Packs, b.EventDuration, b.Status,
			r.Balance.TotalPrice.InexactFloat64(), r.Balance.TotalPaid.InexactFloat64(), r.Balance.Remaining.InexactFloat64(),
			b.CreatedAt.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(bookingsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if len(rows) > 0 {
		_ = f.SetCellStyle(bookingsSheet, "M2", fmt.Sprintf("O%d", len(rows)+1), money)
	}
	_ = f.SetColWidth(bookingsSheet, "A", "A", 8)
	_ = f.SetColWidth(bookingsSheet, "B", "E", 24)
	_ = f.SetColWidth(bookingsSheet, "F", "P", 14)
	_ = f.SetPanes(bookingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
