package model

import "time"

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"

	UserActive   = "active"
	UserInactive = "inactive"
)

// User represents a row of the `users` table.
type User struct {
	ID                uint64     `json:"id"`         // users.id
	FirstName         string     `json:"first_name"` // users.first_name
	LastName          string     `json:"last_name"`  // users.last_name
	Email             string     `json:"email"`      // users.email (unique, lower-cased)
	Phone             *string    `json:"phone"`      // users.phone
	PasswordHash      string     `json:"-"`          // users.password_hash (bcrypt)
	Role              string     `json:"role"`       // users.role
	Status            string     `json:"status"`     // users.status
	Avatar            *string    `json:"avatar"`     // users.avatar, storage path
	ResetTokenHash    *string    `json:"-"`          // users.reset_token_hash
	ResetTokenExpires *time.Time `json:"-"`          // users.reset_token_expires
	CreatedAt         time.Time  `json:"created_at"` // users.created_at
	UpdatedAt         time.Time  `json:"updated_at"` // users.updated_at
}

// FullName joins first and last name.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsStaff reports whether the user works for the company (admin or staff).
func (u User) IsStaff() bool { return u.Role == RoleAdmin || u.Role == RoleStaff }

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at
	CreatedAt time.Time  // refresh_tokens.created_at
}
