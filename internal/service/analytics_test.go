package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrend(t *testing.T) {
	cases := []struct {
		name              string
		current, previous float64
		want              float64
	}{
		{"growth from nothing", 5, 0, 100},
		{"nothing at all", 0, 0, 0},
		{"half again", 75, 50, 50},
		{"drop", 30, 40, -25},
		{"rounded", 2, 3, -33.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Trend(tc.current, tc.previous))
		})
	}
}

func newAnalytics(t *testing.T) (*AnalyticsService, sqlmock.Sqlmock) {
	db, m := newMock(t)
	s := NewAnalyticsService(db)
	s.now = func() time.Time { return fixedNow }
	return s, m
}

var (
	today     = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	tomorrow  = today.AddDate(0, 0, 1)
	yesterday = today.AddDate(0, 0, -1)
)

func TestRevenueWindows(t *testing.T) {
	s, m := newAnalytics(t)
	m.ExpectQuery(`FROM payments WHERE created_at >= \? AND created_at < \?`).WithArgs(today, tomorrow).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow("750.00", 3))
	m.ExpectQuery(`FROM payments WHERE created_at >= \? AND created_at < \?`).WithArgs(yesterday, today).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow("500.00", 2))

	got, err := s.Revenue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "750", got.Today.String())
	assert.Equal(t, "250", got.AverageOrderValue.String())
	assert.Equal(t, 3, got.PaymentsToday)
	assert.Equal(t, 50.0, got.Trend)
}

func TestActiveUsersTrend(t *testing.T) {
	s, m := newAnalytics(t)
	m.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE status='active'$`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(40))
	m.ExpectQuery(`created_at >= \? AND created_at < \?`).WithArgs(today, tomorrow).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(5))
	m.ExpectQuery(`created_at >= \? AND created_at < \?`).WithArgs(yesterday, today).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	got, err := s.ActiveUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActiveUsers{TotalActive: 40, NewToday: 5, NewYesterday: 0, Trend: 100}, got)
}

func TestBookingsByTypeTrendsAgainstYesterday(t *testing.T) {
	s, m := newAnalytics(t)
	cols := []string{"type", "bookings", "completed", "revenue"}
	m.ExpectQuery(`FROM bookings b LEFT JOIN packages p`).WithArgs(today, tomorrow).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("wedding", 4, 1, "4000.00").AddRow("debut", 2, 0, "900.00"))
	m.ExpectQuery(`FROM bookings b LEFT JOIN packages p`).WithArgs(yesterday, today).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("wedding", 2, 2, "2000.00"))

	got, err := s.BookingsByType(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 25.0, got[0].CompletionRate)
	assert.Equal(t, 100.0, got[0].Trend)
	assert.Equal(t, 100.0, got[1].Trend)
	assert.Equal(t, 0.0, got[1].CompletionRate)
}

func TestMonthlyRevenueFillsEveryMonth(t *testing.T) {
	s, m := newAnalytics(t)
	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	m.ExpectQuery(`SELECT MONTH\(created_at\)`).WithArgs(jan, jan.AddDate(1, 0, 0)).
		WillReturnRows(sqlmock.NewRows([]string{"month", "sum"}).AddRow(2, "100.50").AddRow(6, "899.50"))

	got, err := s.MonthlyRevenue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2025, got.Year)
	require.Len(t, got.Months, 12)
	assert.Equal(t, "Jan", got.Months[0].Month)
	assert.True(t, got.Months[0].Revenue.IsZero())
	assert.Equal(t, "100.5", got.Months[1].Revenue.String())
	assert.Equal(t, "1000", got.Total.String())
}

func TestSummaryCountsEveryStatus(t *testing.T) {
	s, m := newAnalytics(t)
	m.ExpectQuery(`SELECT \(SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"u", "p", "r"}).AddRow(12, 4, "5300.00"))
	m.ExpectQuery(`SELECT status, COUNT\(\*\) FROM bookings`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).AddRow("completed", 3).AddRow("pending", 2))

	got, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Bookings)
	assert.Len(t, got.BookingsByStatus, 6)
	assert.Equal(t, 0, got.BookingsByStatus["cancelled"])
	assert.Equal(t, "5300", got.TotalRevenue.String())
}
