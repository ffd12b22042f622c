// Package service holds the business operations behind the HTTP handlers.
// Multi-table writes run in one database transaction; repository sentinels
// are translated into apperror codes here so handlers only render.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
)

const dateLayout = "2006-01-02"

// EventPublisher is satisfied by queue.Publisher and queue.NopPublisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uint64
	Role   string
}

// Staff reports whether the actor may act on other users' records.
func (a Actor) Staff() bool { return a.Role == model.RoleAdmin || a.Role == model.RoleStaff }

// inTx runs fn inside a transaction, rolling back unless fn and the commit
// both succeed.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

var sentinels = []struct {
	err  error
	code apperror.Code
	msg  string
}{
	{repository.ErrUserNotFound, apperror.CodeNotFound, "user not found"},
	{repository.ErrPackageNotFound, apperror.CodeNotFound, "package not found"},
	{repository.ErrBookingNotFound, apperror.CodeNotFound, "booking not found"},
	{repository.ErrArchivedBookingNotFound, apperror.CodeNotFound, "archived booking not found"},
	{repository.ErrRatingNotFound, apperror.CodeNotFound, "rating not found"},
	{repository.ErrPortfolioNotFound, apperror.CodeNotFound, "portfolio not found"},
	{repository.ErrContactNotFound, apperror.CodeNotFound, "contact message not found"},
	{repository.ErrEmailExists, apperror.CodeConflict, "email already registered"},
	{repository.ErrInvalidToken, apperror.CodeUnauthorized, "token invalid or expired"},
}

// translate maps repository and driver errors onto the apperror taxonomy.
// Errors already coded pass through untouched.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if apperror.As(err) != nil {
		return err
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return apperror.Wrap(s.code, err, s.msg)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return apperror.Wrap(apperror.CodeDependency, err, op)
	}
	return apperror.Internal(err, op)
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
