package handler // handler defines the http handlers of the booking API

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/service"
)

// requestTimeout bounds the database work of a single request.
const requestTimeout = 5 * time.Second

// CachePurger drops cached public responses after a mutation.
// *middleware.ResponseCache implements it.
type CachePurger interface {
	Purge(ctx context.Context, group string)
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// actor builds the service caller from the identity JWTAuth stored.
func actor(c echo.Context) (service.Actor, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return service.Actor{}, apperror.New(apperror.CodeUnauthorized, "authentication required")
	}
	return service.Actor{UserID: id, Role: middleware.Role(c)}, nil
}

func paramID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validation(name, "must be a positive integer")
	}
	return id, nil
}

// bind decodes the body (JSON or form) into v and validates it.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperror.Wrap(apperror.CodeValidation, err, "invalid request body")
	}
	return c.Validate(v)
}

// formFile opens an optional upload. A missing field yields a nil reader.
func formFile(c echo.Context, field string) (multipart.File, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperror.Wrap(apperror.CodeValidation, err, "invalid upload")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperror.Internal(err, "open upload")
	}
	return f, nil
}

// formFiles opens every upload under field.
func formFiles(c echo.Context, field string) ([]multipart.File, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperror.Wrap(apperror.CodeValidation, err, "invalid upload")
	}
	var out []multipart.File
	for _, fh := range form.File[field] {
		f, err := fh.Open()
		if err != nil {
			closeAll(out)
			return nil, apperror.Internal(err, "open upload")
		}
		out = append(out, f)
	}
	return out, nil
}

func closeAll(files []multipart.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func readers(files []multipart.File) []io.Reader {
	out := make([]io.Reader, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	return out
}

// done writes a mutation response: {"message": msg, key: payload}.
func done(c echo.Context, status int, msg, key string, payload any) error {
	body := echo.Map{"message": msg}
	if key != "" {
		body[key] = payload
	}
	return c.JSON(status, body)
}

func attachment(c echo.Context, contentType, filename string, data []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, contentType, data)
}
