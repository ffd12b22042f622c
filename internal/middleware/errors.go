package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/logging"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// ErrorHandler renders errors as {"error":{code,message,details}}. Echo's
// own HTTP errors (unknown route, bad bind, oversized body) are mapped onto
// the same codes. Server-side failures are logged with their full chain.
func ErrorHandler(log *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		typed, status := classify(err)
		meta := apperror.MetadataFor(typed.Code())
		payload := ErrorEnvelope{Error: APIError{
			Code:    string(typed.Code()),
			Message: apperror.PublicMessage(typed),
		}}
		if meta.DetailsAllowed {
			payload.Error.Details = typed.Details()
		}
		if status >= http.StatusInternalServerError {
			ctx := log.WithFields(c.Request().Context(), map[string]any{
				"error_code": string(typed.Code()),
				"path":       c.Request().URL.Path,
			})
			log.Error(ctx, "request.error", err)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, payload)
		}
		if werr != nil {
			log.Error(c.Request().Context(), "write error response failed", werr)
		}
	}
}

// classify resolves err to a coded error and the status to send.
func classify(err error) (*apperror.Error, int) {
	if typed := apperror.As(err); typed != nil {
		return typed, apperror.MetadataFor(typed.Code()).HTTPStatus
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		var code apperror.Code
		switch he.Code {
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
			code = apperror.CodeValidation
		case http.StatusUnauthorized:
			code = apperror.CodeUnauthorized
		case http.StatusForbidden:
			code = apperror.CodeForbidden
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			code = apperror.CodeNotFound
		case http.StatusTooManyRequests:
			code = apperror.CodeRateLimit
		case http.StatusServiceUnavailable:
			code = apperror.CodeDependency
		default:
			code = apperror.CodeInternal
		}
		typed := apperror.Wrap(code, err, msg)
		if he.Code >= 400 && he.Code < 600 {
			return typed, he.Code
		}
		return typed, apperror.MetadataFor(code).HTTPStatus
	}
	return apperror.Internal(err, "unexpected error"), http.StatusInternalServerError
}
