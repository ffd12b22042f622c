package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/service"
)

// AuthHandler serves account, session and profile endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	if auth == nil {
		panic("nil auth service passed to NewAuthHandler")
	}
	return &AuthHandler{Auth: auth}
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required,email"`
}

// Register: create a customer account and return a session immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Auth.Register(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req service.LoginInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

// Logout revokes the given refresh token, or every session without one.
func (h *AuthHandler) Logout(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, a.UserID, req.RefreshToken); err != nil {
		return err
	}
	return done(c, http.StatusOK, "Logged out successfully", "", nil)
}

func (h *AuthHandler) Me(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Auth.Me(ctx, a.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

// ForgotPassword always answers the same way so emails cannot be enumerated.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.ForgotPassword(ctx, req.Email); err != nil {
		return err
	}
	return done(c, http.StatusOK, "If the email is registered, a reset link has been sent", "", nil)
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req service.ResetPasswordInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req); err != nil {
		return err
	}
	return done(c, http.StatusOK, "Password has been reset", "", nil)
}

func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.ProfileInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Auth.UpdateProfile(ctx, a.UserID, req)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Profile updated successfully", "user", u)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.ChangePasswordInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, a.UserID, req); err != nil {
		return err
	}
	return done(c, http.StatusOK, "Password changed successfully", "", nil)
}

// ChangeAvatar expects a multipart "avatar" file.
func (h *AuthHandler) ChangeAvatar(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	f, err := formFile(c, "avatar")
	if err != nil {
		return err
	}
	if f == nil {
		return apperror.Validation("avatar", "is required")
	}
	defer f.Close()

	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Auth.ChangeAvatar(ctx, a.UserID, f)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "Avatar updated successfully", "user", u)
}
