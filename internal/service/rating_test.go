package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/model"
)

var ratingCols = []string{"id", "user_id", "package_id", "booking_id", "rating", "review", "status", "is_deleted",
	"created_at", "updated_at", "reviewer", "avatar", "package_name"}

func TestAggregate(t *testing.T) {
	cases := []struct {
		sum   int64
		count int
		want  string
	}{
		{0, 0, "0"},
		{9, 2, "4.5"},
		{10, 3, "3.3"},
		{14, 3, "4.7"},
		{5, 1, "5"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Aggregate(tc.sum, tc.count).String(), "sum=%d count=%d", tc.sum, tc.count)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]model.Rating{{Rating: 5}, {Rating: 4}, {Rating: 5}})
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, "4.7", got.Average.String())
	assert.Equal(t, map[int]int{1: 0, 2: 0, 3: 0, 4: 1, 5: 2}, got.Distribution)

	empty := Summarize(nil)
	assert.True(t, empty.Average.IsZero())
	assert.Len(t, empty.Distribution, 5)
}

func expectRatingPrelude(m sqlmock.Sqlmock, owner uint64) {
	m.ExpectBegin()
	m.ExpectQuery(`FROM packages p WHERE p.id = \? AND p.is_deleted = 0 FOR UPDATE`).WithArgs(3).
		WillReturnRows(packageRows(3, "1000.00", 50, nil, model.PackageActive))
	m.ExpectQuery(`FROM bookings b .* FOR UPDATE`).WithArgs(7).
		WillReturnRows(bookingRows(7, owner, model.BookingCompleted, "1000.00"))
}

func TestCreateRatingRecomputesAggregate(t *testing.T) {
	db, m := newMock(t)
	s := NewRatingService(db, logging.Nop())

	expectRatingPrelude(m, 9)
	m.ExpectQuery(`SELECT COUNT\(\*\) FROM ratings WHERE user_id=\? AND booking_id=\?`).WithArgs(9, 7).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	m.ExpectExec(`INSERT INTO ratings`).WithArgs(9, 3, 7, 4, "Lovely", model.RatingActive).
		WillReturnResult(sqlmock.NewResult(12, 1))
	m.ExpectQuery(`SELECT COALESCE\(SUM\(rating\), 0\), COUNT\(\*\) FROM ratings`).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(9, 2))
	m.ExpectExec(`UPDATE packages SET rating=\?, reviews_count=\?`).WithArgs("4.5", 2, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
	m.ExpectQuery(`FROM ratings r .* WHERE r.id=\?`).WithArgs(12).
		WillReturnRows(sqlmock.NewRows(ratingCols).AddRow(12, 9, 3, 7, 4, "Lovely", model.RatingActive, false,
			fixedNow, fixedNow, "Ana Cruz", nil, "Gold"))

	review := "  Lovely "
	got, err := s.Create(context.Background(), Actor{UserID: 9, Role: model.RoleUser},
		CreateRatingInput{BookingID: 7, PackageID: 3, Rating: 4, Review: &review})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), got.ID)
	assert.Equal(t, "Gold", got.PackageName)
}

func TestCreateRatingRejectsDuplicate(t *testing.T) {
	db, m := newMock(t)
	s := NewRatingService(db, logging.Nop())

	expectRatingPrelude(m, 9)
	m.ExpectQuery(`SELECT COUNT\(\*\) FROM ratings WHERE user_id=\? AND booking_id=\?`).WithArgs(9, 7).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	m.ExpectRollback()

	_, err := s.Create(context.Background(), Actor{UserID: 9, Role: model.RoleUser},
		CreateRatingInput{BookingID: 7, PackageID: 3, Rating: 5})
	assert.Equal(t, apperror.CodeConflict, codeOf(err))
}

func TestCreateRatingGuards(t *testing.T) {
	t.Run("out of range", func(t *testing.T) {
		db, _ := newMock(t)
		s := NewRatingService(db, logging.Nop())
		_, err := s.Create(context.Background(), Actor{UserID: 9}, CreateRatingInput{BookingID: 7, PackageID: 3, Rating: 6})
		assert.Equal(t, apperror.CodeValidation, codeOf(err))
	})
	t.Run("someone else's booking", func(t *testing.T) {
		db, m := newMock(t)
		s := NewRatingService(db, logging.Nop())
		expectRatingPrelude(m, 4)
		m.ExpectRollback()
		_, err := s.Create(context.Background(), Actor{UserID: 9}, CreateRatingInput{BookingID: 7, PackageID: 3, Rating: 3})
		assert.Equal(t, apperror.CodeForbidden, codeOf(err))
	})
}

func TestDeleteRatingRecomputes(t *testing.T) {
	db, m := newMock(t)
	s := NewRatingService(db, logging.Nop())

	m.ExpectBegin()
	m.ExpectQuery(`FROM ratings r .* FOR UPDATE`).WithArgs(12).
		WillReturnRows(sqlmock.NewRows(ratingCols).AddRow(12, 9, 3, 7, 2, nil, model.RatingActive, false,
			fixedNow, fixedNow, "Ana Cruz", nil, "Gold"))
	m.ExpectExec(`UPDATE ratings SET is_deleted=1`).WithArgs(12).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectQuery(`SELECT COALESCE\(SUM\(rating\), 0\), COUNT\(\*\) FROM ratings`).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(0, 0))
	m.ExpectExec(`UPDATE packages SET rating=\?, reviews_count=\?`).WithArgs("0", 0, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), 12))
}

func TestFlaggingRatingDropsItFromAggregate(t *testing.T) {
	db, m := newMock(t)
	s := NewRatingService(db, logging.Nop())

	// package 3 had ratings 5, 4 and 2; the 2 gets flagged
	m.ExpectBegin()
	m.ExpectQuery(`FROM ratings r .* FOR UPDATE`).WithArgs(12).
		WillReturnRows(sqlmock.NewRows(ratingCols).AddRow(12, 9, 3, 7, 2, nil, model.RatingActive, false,
			fixedNow, fixedNow, "Ana Cruz", nil, "Gold"))
	m.ExpectExec(`UPDATE ratings SET status=\?`).WithArgs(model.RatingFlagged, 12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectQuery(`SELECT COALESCE\(SUM\(rating\), 0\), COUNT\(\*\) FROM ratings\s+WHERE package_id=\? AND status='active'`).
		WithArgs(3).WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(9, 2))
	m.ExpectExec(`UPDATE packages SET rating=\?, reviews_count=\?`).WithArgs("4.5", 2, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()
	m.ExpectQuery(`FROM ratings r .* WHERE r.id=\?`).WithArgs(12).
		WillReturnRows(sqlmock.NewRows(ratingCols).AddRow(12, 9, 3, 7, 2, nil, model.RatingFlagged, false,
			fixedNow, fixedNow, "Ana Cruz", nil, "Gold"))

	rt, err := s.SetStatus(context.Background(), 12, model.RatingFlagged)
	require.NoError(t, err)
	assert.Equal(t, model.RatingFlagged, rt.Status)
}

func TestSetRatingStatusRejectsUnknown(t *testing.T) {
	db, _ := newMock(t)
	s := NewRatingService(db, logging.Nop())
	_, err := s.SetStatus(context.Background(), 12, "hidden")
	assert.Equal(t, apperror.CodeValidation, codeOf(err))
}
