package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/service"
)

// RatingHandler serves reviews. Every write changes a package aggregate,
// so cached package responses are purged.
type RatingHandler struct {
	Ratings *service.RatingService
	Cache   CachePurger
}

func NewRatingHandler(ratings *service.RatingService, cache CachePurger) *RatingHandler {
	if ratings == nil {
		panic("nil rating service passed to NewRatingHandler")
	}
	return &RatingHandler{Ratings: ratings, Cache: cache}
}

type ratingStatusReq struct {
	Status string `json:"status" validate:"required,oneof=active flagged"`
}

func (h *RatingHandler) purge(c echo.Context) {
	if h.Cache != nil {
		h.Cache.Purge(c.Request().Context(), "packages")
	}
}

func (h *RatingHandler) Create(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req service.CreateRatingInput
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Ratings.Create(ctx, a, req)
	if err != nil {
		return err
	}
	h.purge(c)
	return done(c, http.StatusCreated, "Rating submitted successfully", "rating", r)
}

func (h *RatingHandler) Mine(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Ratings.ListMine(ctx, a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"ratings": out})
}

// List is the moderation view; ?status=active|flagged narrows it.
func (h *RatingHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Ratings.ListAll(ctx, c.QueryParam("status"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"ratings": out})
}

func (h *RatingHandler) SetStatus(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req ratingStatusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Ratings.SetStatus(ctx, id, req.Status)
	if err != nil {
		return err
	}
	h.purge(c)
	return done(c, http.StatusOK, "Rating status updated successfully", "rating", r)
}

func (h *RatingHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Ratings.Delete(ctx, id); err != nil {
		return err
	}
	h.purge(c)
	return done(c, http.StatusOK, "Rating deleted successfully", "", nil)
}
