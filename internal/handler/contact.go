package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/service"
)

// ContactHandler takes public contact-form messages and lists them for admins.
type ContactHandler struct {
	Contact *service.ContactService
}

func NewContactHandler(s *service.ContactService) *ContactHandler {
	if s == nil {
		panic("nil contact service passed to NewContactHandler")
	}
	return &ContactHandler{Contact: s}
}

func (h *ContactHandler) Submit(c echo.Context) error {
	var req service.ContactInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Contact.Submit(ctx, req)
	if err != nil {
		return err
	}
	return done(c, http.StatusCreated, "Thank you for reaching out. We will get back to you soon.", "contact", m)
}

func (h *ContactHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Contact.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": out})
}

func (h *ContactHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Contact.Delete(ctx, id); err != nil {
		return err
	}
	return done(c, http.StatusOK, "Message deleted successfully", "", nil)
}
