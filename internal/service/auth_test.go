package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/utils"
)

var authCfg = config.AuthConfig{Secret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}

var userCols = []string{"id", "first_name", "last_name", "email", "phone", "password_hash", "role", "status", "avatar",
	"reset_token_hash", "reset_token_expires", "created_at", "updated_at"}

func userRows(t *testing.T, id uint64, password, status string) *sqlmock.Rows {
	t.Helper()
	hash, err := utils.HashPassword(password, authCfg.BcryptCost)
	require.NoError(t, err)
	return sqlmock.NewRows(userCols).AddRow(id, "Ana", "Cruz", "ana@example.com", nil, hash, model.RoleUser, status,
		nil, nil, nil, fixedNow, fixedNow)
}

func newAuth(db *sql.DB, pub EventPublisher) *AuthService {
	return NewAuthService(authCfg, db, &fakeFiles{}, pub, logging.Nop())
}

func TestLogin(t *testing.T) {
	t.Run("issues a session", func(t *testing.T) {
		db, m := newMock(t)
		m.ExpectQuery(`FROM users WHERE email=\?`).WithArgs("ana@example.com").
			WillReturnRows(userRows(t, 9, "hunter22!", model.UserActive))
		m.ExpectExec(`INSERT INTO refresh_tokens`).WithArgs(9, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		sess, err := newAuth(db, nil).Login(context.Background(), LoginInput{Email: "Ana@Example.com ", Password: "hunter22!"})
		require.NoError(t, err)
		assert.NotEmpty(t, sess.Refresh.Raw)

		id, err := utils.ParseAccessToken(authCfg.Secret, sess.Access.Token)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), id.UserID)
		assert.Equal(t, model.RoleUser, id.Role)
	})

	t.Run("wrong password", func(t *testing.T) {
		db, m := newMock(t)
		m.ExpectQuery(`FROM users WHERE email=\?`).WillReturnRows(userRows(t, 9, "hunter22!", model.UserActive))
		_, err := newAuth(db, nil).Login(context.Background(), LoginInput{Email: "ana@example.com", Password: "nope"})
		assert.Equal(t, apperror.CodeUnauthorized, codeOf(err))
	})

	t.Run("unknown email looks the same", func(t *testing.T) {
		db, m := newMock(t)
		m.ExpectQuery(`FROM users WHERE email=\?`).WillReturnError(sql.ErrNoRows)
		_, err := newAuth(db, nil).Login(context.Background(), LoginInput{Email: "who@example.com", Password: "x"})
		assert.Equal(t, apperror.CodeUnauthorized, codeOf(err))
	})

	t.Run("inactive account", func(t *testing.T) {
		db, m := newMock(t)
		m.ExpectQuery(`FROM users WHERE email=\?`).WillReturnRows(userRows(t, 9, "hunter22!", model.UserInactive))
		_, err := newAuth(db, nil).Login(context.Background(), LoginInput{Email: "ana@example.com", Password: "hunter22!"})
		assert.Equal(t, apperror.CodeForbidden, codeOf(err))
	})
}

func TestForgotPassword(t *testing.T) {
	t.Run("unknown email succeeds silently", func(t *testing.T) {
		db, m := newMock(t)
		m.ExpectQuery(`FROM users WHERE email=\?`).WillReturnError(sql.ErrNoRows)
		assert.NoError(t, newAuth(db, nil).ForgotPassword(context.Background(), "who@example.com"))
	})

	t.Run("stores hash and publishes raw token", func(t *testing.T) {
		db, m := newMock(t)
		pub := &recordingPublisher{}
		pub.On("Publish", queue.KeyPasswordResetRequested, mock.MatchedBy(func(ev queue.UserEvent) bool {
			return ev.UserID == 9 && ev.ResetToken != ""
		})).Return(nil).Once()

		m.ExpectQuery(`FROM users WHERE email=\?`).WillReturnRows(userRows(t, 9, "hunter22!", model.UserActive))
		m.ExpectExec(`UPDATE users SET reset_token_hash=\?`).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, newAuth(db, pub).ForgotPassword(context.Background(), "ana@example.com"))
		pub.AssertExpectations(t)
	})
}

func TestAdminCannotTargetSelf(t *testing.T) {
	db, _ := newMock(t)
	s := newAuth(db, nil)
	assert.Equal(t, apperror.CodeValidation, codeOf(s.BlockUser(context.Background(), admin, admin.UserID)))
	assert.Equal(t, apperror.CodeValidation, codeOf(s.DeleteUser(context.Background(), admin, admin.UserID)))
}

func TestDeleteUserRecomputesRatedPackages(t *testing.T) {
	db, m := newMock(t)
	s := newAuth(db, nil)

	m.ExpectQuery(`FROM users WHERE id=`).WithArgs(9).WillReturnRows(userRows(t, 9, "secret-pass", model.UserActive))
	m.ExpectBegin()
	m.ExpectQuery(`SELECT DISTINCT package_id FROM ratings WHERE user_id=`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"package_id"}).AddRow(3).AddRow(4))
	m.ExpectExec(`DELETE p FROM payments`).WithArgs(9).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`DELETE FROM bookings WHERE user_id=`).WithArgs(9).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`DELETE FROM users WHERE id=`).WithArgs(9).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectQuery(`SELECT COALESCE\(SUM\(rating\), 0\), COUNT\(\*\) FROM ratings`).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(9, 2))
	m.ExpectExec(`UPDATE packages SET rating=\?, reviews_count=\?`).WithArgs("4.5", 2, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectQuery(`SELECT COALESCE\(SUM\(rating\), 0\), COUNT\(\*\) FROM ratings`).WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(0, 0))
	m.ExpectExec(`UPDATE packages SET rating=\?, reviews_count=\?`).WithArgs("0", 0, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectCommit()

	require.NoError(t, s.DeleteUser(context.Background(), admin, 9))
}

func TestDeleteUserRollsBackWhenRecomputeFails(t *testing.T) {
	db, m := newMock(t)
	s := newAuth(db, nil)

	m.ExpectQuery(`FROM users WHERE id=`).WithArgs(9).WillReturnRows(userRows(t, 9, "secret-pass", model.UserActive))
	m.ExpectBegin()
	m.ExpectQuery(`SELECT DISTINCT package_id`).WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"package_id"}).AddRow(3))
	m.ExpectExec(`DELETE p FROM payments`).WillReturnResult(sqlmock.NewResult(0, 0))
	m.ExpectExec(`DELETE FROM bookings`).WillReturnResult(sqlmock.NewResult(0, 0))
	m.ExpectExec(`DELETE FROM users`).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectQuery(`FROM ratings`).WithArgs(3).WillReturnError(sql.ErrConnDone)
	m.ExpectRollback()

	err := s.DeleteUser(context.Background(), admin, 9)
	assert.Equal(t, apperror.CodeDependency, codeOf(err))
}
