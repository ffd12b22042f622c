package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/middleware"
)

// RegisterAuth registers session routes under /api/auth and the caller's
// profile under /api/me. Register, login, refresh and the password reset
// pair need no token.
func RegisterAuth(api *echo.Group, a *handler.AuthHandler, jwtSecret string, log *logging.Logger) {
	jwt := middleware.JWTAuth(jwtSecret, log)

	g := api.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)
	g.POST("/logout", a.Logout, jwt)
	g.GET("/me", a.Me, jwt)

	me := api.Group("/me", jwt)
	me.PUT("", a.UpdateProfile)
	me.PUT("/password", a.ChangePassword)
	me.POST("/avatar", a.ChangeAvatar)
}
