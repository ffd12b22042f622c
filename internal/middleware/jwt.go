package middleware // package middleware holds the echo middleware shared by the API routes

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/utils"
)

// JWTAuth validates a Bearer access token and stores the caller's id and
// role on the echo context (see UserID and Role). The user id is also
// attached to the request logger.
func JWTAuth(secret string, log *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperror.New(apperror.CodeUnauthorized, "missing bearer token")
			}
			id, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return apperror.Wrap(apperror.CodeUnauthorized, err, "invalid or expired token")
			}
			c.Set(ctxUserID, id.UserID)
			c.Set(ctxRole, id.Role)
			if log != nil {
				req := c.Request()
				c.SetRequest(req.WithContext(log.WithUserID(req.Context(), id.UserID)))
			}
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}
