package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/apperror"
)

// RequireRole aborts with FORBIDDEN unless the caller's role is one of roles.
// It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return apperror.Forbidden("insufficient role for this action")
			}
			return next(c)
		}
	}
}
