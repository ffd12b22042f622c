package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/pricing"
	"github.com/iliyamo/event-booking/internal/service"
)

// CatalogHandler serves packages and portfolios. Public reads only see
// active entries; staff reads include inactive ones.
type CatalogHandler struct {
	Catalog  *service.CatalogService
	Bookings *service.BookingService
	Ratings  *service.RatingService
	Cache    CachePurger
}

func NewCatalogHandler(catalog *service.CatalogService, bookings *service.BookingService, ratings *service.RatingService, cache CachePurger) *CatalogHandler {
	if catalog == nil || bookings == nil || ratings == nil {
		panic("nil service passed to NewCatalogHandler")
	}
	return &CatalogHandler{Catalog: catalog, Bookings: bookings, Ratings: ratings, Cache: cache}
}

type quoteReq struct {
	Packs         int `json:"packs" validate:"required,min=1"`
	EventDuration int `json:"event_duration" validate:"required,min=1"`
}

func (h *CatalogHandler) purge(c echo.Context, group string) {
	if h.Cache != nil {
		h.Cache.Purge(c.Request().Context(), group)
	}
}

func (h *CatalogHandler) ListPackages(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Catalog.ListPackages(ctx, middleware.IsStaff(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"packages": out})
}

func (h *CatalogHandler) GetPackage(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Catalog.GetPackage(ctx, id, middleware.IsStaff(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"package": p})
}

// Quote previews the booking price for a headcount and duration.
func (h *CatalogHandler) Quote(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req quoteReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	q, err := h.Bookings.Quote(ctx, id, pricing.Request{Headcount: req.Packs, EventDuration: req.EventDuration})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"quote": q})
}

// PackageRatings returns the public reviews with average and distribution.
func (h *CatalogHandler) PackageRatings(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	sum, err := h.Ratings.ListForPackage(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

// CreatePackage takes a multipart form with an optional "package_image".
func (h *CatalogHandler) CreatePackage(c echo.Context) error {
	var form service.PackageForm
	if err := bind(c, &form); err != nil {
		return err
	}
	img, err := formFile(c, "package_image")
	if err != nil {
		return err
	}
	if img != nil {
		defer img.Close()
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.Catalog.CreatePackage(ctx, form, img)
	if err != nil {
		return err
	}
	h.purge(c, "packages")
	return done(c, http.StatusCreated, "Package created successfully", "package", p)
}

func (h *CatalogHandler) UpdatePackage(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var form service.PackageForm
	if err := bind(c, &form); err != nil {
		return err
	}
	img, err := formFile(c, "package_image")
	if err != nil {
		return err
	}
	if img != nil {
		defer img.Close()
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.Catalog.UpdatePackage(ctx, id, form, img)
	if err != nil {
		return err
	}
	h.purge(c, "packages")
	return done(c, http.StatusOK, "Package updated successfully", "package", p)
}

func (h *CatalogHandler) DeletePackage(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Catalog.DeletePackage(ctx, id); err != nil {
		return err
	}
	h.purge(c, "packages")
	return done(c, http.StatusOK, "Package deleted successfully", "", nil)
}

func (h *CatalogHandler) ListPortfolios(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Catalog.ListPortfolios(ctx, middleware.IsStaff(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"portfolios": out})
}

func (h *CatalogHandler) GetPortfolio(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Catalog.GetPortfolio(ctx, id, middleware.IsStaff(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"portfolio": p})
}

// CreatePortfolio needs a "main_image" and takes any number of "images".
func (h *CatalogHandler) CreatePortfolio(c echo.Context) error {
	var form service.PortfolioForm
	if err := bind(c, &form); err != nil {
		return err
	}
	cover, err := formFile(c, "main_image")
	if err != nil {
		return err
	}
	if cover == nil {
		return apperror.Validation("main_image", "is required")
	}
	defer cover.Close()
	album, err := formFiles(c, "images")
	if err != nil {
		return err
	}
	defer closeAll(album)

	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Catalog.CreatePortfolio(ctx, form, cover, readers(album))
	if err != nil {
		return err
	}
	h.purge(c, "portfolios")
	return done(c, http.StatusCreated, "Portfolio created successfully", "portfolio", p)
}

// UpdatePortfolio keeps "existing_images", drops "removed_images" and adds
// new "images"; a new "main_image" replaces the old one.
func (h *CatalogHandler) UpdatePortfolio(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var form service.PortfolioForm
	if err := bind(c, &form); err != nil {
		return err
	}
	cover, err := formFile(c, "main_image")
	if err != nil {
		return err
	}
	if cover != nil {
		defer cover.Close()
	}
	album, err := formFiles(c, "images")
	if err != nil {
		return err
	}
	defer closeAll(album)

	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Catalog.UpdatePortfolio(ctx, id, form, cover, readers(album))
	if err != nil {
		return err
	}
	h.purge(c, "portfolios")
	return done(c, http.StatusOK, "Portfolio updated successfully", "portfolio", p)
}

func (h *CatalogHandler) DeletePortfolio(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Catalog.DeletePortfolio(ctx, id); err != nil {
		return err
	}
	h.purge(c, "portfolios")
	return done(c, http.StatusOK, "Portfolio deleted successfully", "", nil)
}
