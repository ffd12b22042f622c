package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/apperror"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var fixedNow = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

var bookingCols = []string{"id", "user_id", "package_id", "full_name", "email", "phone", "event_date", "event_time",
	"venue_name", "special_requests", "event_duration", "packs", "payment_method", "total_price", "terms_accepted",
	"status", "cancellation_reason", "cancelled_at", "created_at", "updated_at", "package_name", "package_type"}

func bookingRows(id, userID uint64, status, total string) *sqlmock.Rows {
	return sqlmock.NewRows(bookingCols).AddRow(id, userID, 3, "Ana Cruz", "ana@example.com", "0917", fixedNow.AddDate(0, 1, 0),
		"14:00", "Grand Hall", nil, 1, 50, "cash", total, true, status, nil, nil, fixedNow, fixedNow, "Gold", "wedding")
}

func paymentRows(id, bookingID uint64, amount string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "booking_id", "amount", "payment_type", "note", "created_at"}).
		AddRow(id, bookingID, amount, "cash", nil, fixedNow)
}

func sumRows(v string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"sum"}).AddRow(v)
}

// recordingPublisher captures routing keys.
type recordingPublisher struct{ mock.Mock }

func (p *recordingPublisher) Publish(_ context.Context, key string, payload any) error {
	return p.Called(key, payload).Error(0)
}

func codeOf(err error) apperror.Code { return apperror.CodeOf(err) }

var packageCols = []string{"id", "package_name", "package_description", "package_price", "price_per_day",
	"price_increase_per_day", "additional_price_percentage", "packs", "package_type", "package_inclusion",
	"package_image", "status", "is_deleted", "rating", "reviews_count", "created_at", "updated_at", "bookings_count"}

func packageRows(id uint64, price string, packs int, image any, status string) *sqlmock.Rows {
	return sqlmock.NewRows(packageCols).AddRow(id, "Gold", "Full service", price, false, "0.00", nil, packs,
		"wedding", []byte(`["Catering","Sound"]`), image, status, false, "4.5", 2, fixedNow, fixedNow, 0)
}
