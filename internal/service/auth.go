package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/storage"
	"github.com/iliyamo/event-booking/internal/utils"
)

// AuthService issues and rotates tokens and manages accounts.
type AuthService struct {
	cfg      config.AuthConfig
	db       *sql.DB
	users    *repository.UserRepo
	tokens   *repository.TokenRepo
	ratings  *repository.RatingRepo
	packages *repository.PackageRepo
	files    FileStore
	events   EventPublisher
	log      *logging.Logger
	now      func() time.Time
}

func NewAuthService(cfg config.AuthConfig, db *sql.DB, files FileStore, events EventPublisher, log *logging.Logger) *AuthService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &AuthService{
		cfg:      cfg,
		db:       db,
		users:    repository.NewUserRepo(db),
		tokens:   repository.NewTokenRepo(db),
		ratings:  repository.NewRatingRepo(db),
		packages: repository.NewPackageRepo(db),
		files:    files,
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

// Session is returned by register, login and refresh.
type Session struct {
	User    model.User        `json:"user"`
	Access  utils.AccessToken `json:"access"`
	Refresh utils.OpaqueToken `json:"refresh"`
}

type RegisterInput struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates a customer account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	id, err := s.users.Create(ctx, repository.NewUser{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Password:  in.Password,
		Role:      model.RoleUser,
	}, s.cfg.BcryptCost)
	if err != nil {
		return Session{}, translate(err, "create user")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return Session{}, translate(err, "load user")
	}
	s.emit(ctx, queue.KeyUserRegistered, queue.UserEvent{UserID: u.ID, Email: u.Email, FullName: u.FullName()})
	return s.issue(ctx, u)
}

// Login verifies credentials. Unknown emails and wrong passwords are
// indistinguishable; inactive accounts are refused.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (Session, error) {
	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return Session{}, apperror.New(apperror.CodeUnauthorized, "invalid credentials")
		}
		return Session{}, translate(err, "load user")
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) {
		return Session{}, apperror.New(apperror.CodeUnauthorized, "invalid credentials")
	}
	if u.Status != model.UserActive {
		return Session{}, apperror.Forbidden("account is inactive")
	}
	return s.issue(ctx, u)
}

// Refresh validates a refresh token, revokes it and issues a new pair.
func (s *AuthService) Refresh(ctx context.Context, raw string) (Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Session{}, apperror.Validation("refresh_token", "is required")
	}
	hash := utils.HashToken(raw)
	userID, err := s.tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return Session{}, translate(err, "validate refresh token")
	}
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		return Session{}, translate(err, "revoke refresh token")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return Session{}, apperror.New(apperror.CodeUnauthorized, "token invalid or expired")
		}
		return Session{}, translate(err, "load user")
	}
	if u.Status != model.UserActive {
		return Session{}, apperror.Forbidden("account is inactive")
	}
	return s.issue(ctx, u)
}

// Logout revokes one refresh token when given, otherwise every session of
// the user.
func (s *AuthService) Logout(ctx context.Context, userID uint64, refresh string) error {
	if refresh = strings.TrimSpace(refresh); refresh != "" {
		return translate(s.tokens.RevokeByHash(ctx, utils.HashToken(refresh)), "revoke refresh token")
	}
	return translate(s.tokens.RevokeAllForUser(ctx, userID), "revoke sessions")
}

func (s *AuthService) issue(ctx context.Context, u model.User) (Session, error) {
	access, err := utils.NewAccessToken(s.cfg.Secret, u.ID, u.Role, s.cfg.AccessTTLMin)
	if err != nil {
		return Session{}, apperror.Internal(err, "issue access token")
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return Session{}, apperror.Internal(err, "issue refresh token")
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return Session{}, translate(err, "store refresh token")
	}
	return Session{User: u, Access: access, Refresh: refresh}, nil
}

func (s *AuthService) Me(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	return u, translate(err, "load user")
}

type ProfileInput struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
}

// UpdateProfile edits the caller's own fields; role and status stay put.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint64, in ProfileInput) (model.User, error) {
	err := s.users.Update(ctx, userID, repository.UserUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
	})
	if err != nil {
		return model.User{}, translate(err, "update profile")
	}
	return s.Me(ctx, userID)
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// ChangePassword checks the current password and signs out other sessions.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, in ChangePasswordInput) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return translate(err, "load user")
	}
	if !utils.VerifyPassword(u.PasswordHash, in.CurrentPassword) {
		return apperror.Validation("current_password", "is incorrect")
	}
	if err := s.users.UpdatePassword(ctx, userID, in.NewPassword, s.cfg.BcryptCost); err != nil {
		return translate(err, "update password")
	}
	return translate(s.tokens.RevokeAllForUser(ctx, userID), "revoke sessions")
}

// ChangeAvatar stores the new picture and removes the previous file.
func (s *AuthService) ChangeAvatar(ctx context.Context, userID uint64, r io.Reader) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, translate(err, "load user")
	}
	path, err := s.files.Save(ctx, storage.Avatars, r)
	if err != nil {
		return model.User{}, uploadError(err, "avatar")
	}
	if err := s.users.UpdateAvatar(ctx, userID, path); err != nil {
		_ = s.files.Delete(path)
		return model.User{}, translate(err, "update avatar")
	}
	if u.Avatar != nil {
		if err := s.files.Delete(*u.Avatar); err != nil {
			s.log.Warn(s.log.WithField(ctx, "path", *u.Avatar), "remove old avatar failed", err)
		}
	}
	return s.Me(ctx, userID)
}

// ForgotPassword stores a hashed reset token and publishes it for delivery.
// Unknown emails succeed silently.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err == repository.ErrUserNotFound {
		return nil
	}
	if err != nil {
		return translate(err, "load user")
	}
	tok, err := utils.NewResetToken(s.cfg.ResetTokenTTL)
	if err != nil {
		return apperror.Internal(err, "issue reset token")
	}
	if err := s.users.SetResetToken(ctx, u.ID, utils.HashToken(tok.Raw), tok.Exp); err != nil {
		return translate(err, "store reset token")
	}
	s.emit(ctx, queue.KeyPasswordResetRequested, queue.UserEvent{
		UserID:     u.ID,
		Email:      u.Email,
		FullName:   u.FullName(),
		ResetToken: tok.Raw,
		ExpiresAt:  tok.Exp,
	})
	return nil
}

type ResetPasswordInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// ResetPassword consumes a live reset token and revokes all sessions.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	u, err := s.users.GetByResetToken(ctx, utils.HashToken(strings.TrimSpace(in.Token)), s.now().UTC())
	if err != nil {
		return translate(err, "load reset token")
	}
	if err := s.users.UpdatePassword(ctx, u.ID, in.Password, s.cfg.BcryptCost); err != nil {
		return translate(err, "update password")
	}
	return translate(s.tokens.RevokeAllForUser(ctx, u.ID), "revoke sessions")
}

// CreateUserInput is the admin form for accounts of any role.
type CreateUserInput struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	Role      string  `json:"role" validate:"required,oneof=admin staff user"`
}

type UpdateUserInput struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	Role      string  `json:"role" validate:"omitempty,oneof=admin staff user"`
	Status    string  `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (s *AuthService) CreateUser(ctx context.Context, in CreateUserInput) (model.User, error) {
	id, err := s.users.Create(ctx, repository.NewUser{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Password:  in.Password,
		Role:      in.Role,
	}, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, translate(err, "create user")
	}
	return s.Me(ctx, id)
}

func (s *AuthService) ListUsers(ctx context.Context, role string) ([]model.User, error) {
	out, err := s.users.List(ctx, role)
	return out, translate(err, "list users")
}

func (s *AuthService) UpdateUser(ctx context.Context, id uint64, in UpdateUserInput) (model.User, error) {
	err := s.users.Update(ctx, id, repository.UserUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Role:      in.Role,
		Status:    in.Status,
	})
	if err != nil {
		return model.User{}, translate(err, "update user")
	}
	if in.Status == model.UserInactive {
		if err := s.tokens.RevokeAllForUser(ctx, id); err != nil {
			return model.User{}, translate(err, "revoke sessions")
		}
	}
	return s.Me(ctx, id)
}

// BlockUser deactivates an account and ends its sessions. Admins cannot
// block themselves.
func (s *AuthService) BlockUser(ctx context.Context, actor Actor, id uint64) error {
	if actor.UserID == id {
		return apperror.Validation("id", "cannot block your own account")
	}
	if err := s.users.SetStatus(ctx, id, model.UserInactive); err != nil {
		return translate(err, "block user")
	}
	return translate(s.tokens.RevokeAllForUser(ctx, id), "revoke sessions")
}

// DeleteUser removes the account with its payments and bookings in one
// transaction. The user's ratings go with the account, so the packages they
// rated are recomputed before commit.
func (s *AuthService) DeleteUser(ctx context.Context, actor Actor, id uint64) error {
	if actor.UserID == id {
		return apperror.Validation("id", "cannot delete your own account")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return translate(err, "load user")
	}
	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		rated, err := s.ratings.RatedPackagesTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.users.DeleteTx(ctx, tx, id); err != nil {
			return err
		}
		for _, pkg := range rated {
			if err := recomputeRating(ctx, tx, s.ratings, s.packages, pkg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate(err, "delete user")
	}
	if u.Avatar != nil {
		_ = s.files.Delete(*u.Avatar)
	}
	return nil
}

func (s *AuthService) emit(ctx context.Context, key string, ev queue.UserEvent) {
	ev.OccurredAt = s.now().UTC()
	if err := s.events.Publish(context.WithoutCancel(ctx), key, ev); err != nil {
		s.log.Warn(s.log.WithField(ctx, "routing_key", key), "publish user event failed", err)
	}
}
