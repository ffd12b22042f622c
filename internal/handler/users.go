package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/service"
)

// UserHandler is the admin account management surface.
type UserHandler struct {
	Auth  *service.AuthService
	Cache CachePurger
}

func NewUserHandler(auth *service.AuthService, cache CachePurger) *UserHandler {
	if auth == nil {
		panic("nil auth service passed to NewUserHandler")
	}
	return &UserHandler{Auth: auth, Cache: cache}
}

// List accepts ?role=admin|staff|user.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Auth.ListUsers(ctx, c.QueryParam("role"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Auth.Me(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

func (h *UserHandler) Create(c echo.Context) error {
	var req service.CreateUserInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Auth.CreateUser(ctx, req)
	if err != nil {
		return err
	}
	return done(c, http.StatusCreated, "User created successfully", "user", u)
}

func (h *UserHandler) Update(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.UpdateUserInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Auth.UpdateUser(ctx, id, req)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, "User updated successfully", "user", u)
}

func (h *UserHandler) Block(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Auth.BlockUser(ctx, a, id); err != nil {
		return err
	}
	return done(c, http.StatusOK, "User blocked successfully", "", nil)
}

func (h *UserHandler) Delete(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Auth.DeleteUser(ctx, a, id); err != nil {
		return err
	}
	// the user's ratings are gone, so cached package ratings are stale
	if h.Cache != nil {
		h.Cache.Purge(c.Request().Context(), "packages")
	}
	return done(c, http.StatusOK, "User deleted successfully", "", nil)
}
