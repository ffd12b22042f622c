package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/utils"
)

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// NewUser is the input for Create. Password is plain text and hashed here.
type NewUser struct {
	FirstName string
	LastName  string
	Email     string
	Phone     *string
	Password  string
	Role      string
	Avatar    *string
}

const userColumns = `id, first_name, last_name, email, phone, password_hash, role, status, avatar,
	reset_token_hash, reset_token_expires, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u       model.User
		phone   sql.NullString
		avatar  sql.NullString
		reset   sql.NullString
		expires sql.NullTime
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &phone, &u.PasswordHash, &u.Role, &u.Status,
		&avatar, &reset, &expires, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Phone = stringPtr(phone)
	u.Avatar = stringPtr(avatar)
	u.ResetTokenHash = stringPtr(reset)
	u.ResetTokenExpires = timePtr(expires)
	return u, nil
}

// Create hashes the password and inserts the user, returning its ID.
func (r *UserRepo) Create(ctx context.Context, in NewUser, cost int) (uint64, error) {
	hash, err := utils.HashPassword(in.Password, cost)
	if err != nil {
		return 0, err
	}
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, email, phone, password_hash, role, status, avatar)
		 VALUES (?,?,?,?,?,?,?,?)`,
		strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), normalizeEmail(in.Email),
		nullString(in.Phone), hash, role, model.UserActive, nullString(in.Avatar))
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
	return u, notFound(err, ErrUserNotFound)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	return u, notFound(err, ErrUserNotFound)
}

// List returns users newest first, optionally filtered by role.
func (r *UserRepo) List(ctx context.Context, role string) ([]model.User, error) {
	q := "SELECT " + userColumns + " FROM users"
	var args []any
	if role != "" {
		q += " WHERE role=?"
		args = append(args, role)
	}
	q += " ORDER BY created_at DESC, id DESC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UserUpdate carries the editable profile fields.
type UserUpdate struct {
	FirstName string
	LastName  string
	Email     string
	Phone     *string
	Role      string // ignored when empty
	Status    string // ignored when empty
}

// Update writes profile fields. Role/status are only changed when provided.
func (r *UserRepo) Update(ctx context.Context, id uint64, in UserUpdate) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET first_name=?, last_name=?, email=?, phone=?,
		        role=COALESCE(NULLIF(?, ''), role), status=COALESCE(NULLIF(?, ''), status)
		 WHERE id=?`,
		strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName), normalizeEmail(in.Email),
		nullString(in.Phone), in.Role, in.Status, id)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	return requireAffected(res, ErrUserNotFound)
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_token_expires=NULL WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrUserNotFound)
}

func (r *UserRepo) UpdateAvatar(ctx context.Context, id uint64, path string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET avatar=? WHERE id=?", path, id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrUserNotFound)
}

func (r *UserRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET status=? WHERE id=?", status, id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrUserNotFound)
}

// SetResetToken stores the hash of a password-reset token.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, tokenHash string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_token_expires=? WHERE id=?", tokenHash, expires, id)
	return err
}

// GetByResetToken returns the user owning an unexpired reset token.
func (r *UserRepo) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token_hash=? AND reset_token_expires > ? LIMIT 1",
		tokenHash, now))
	return u, notFound(err, ErrInvalidToken)
}

// DeleteTx removes the user's payments and bookings, then the user. Ratings,
// messages and refresh tokens go with the user through foreign keys.
func (r *UserRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE p FROM payments p JOIN bookings b ON b.id = p.booking_id WHERE b.user_id=?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM bookings WHERE user_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrUserNotFound)
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// requireAffected turns "zero rows touched" into the given not-found sentinel.
func requireAffected(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
