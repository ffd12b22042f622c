package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
)

// RegisterPublic registers the unauthenticated catalog and contact routes.
// Catalog reads go through the response cache; mutations elsewhere purge it.
func RegisterPublic(api *echo.Group, h *handler.CatalogHandler, contact *handler.ContactHandler, cache echo.MiddlewareFunc) {
	api.GET("/packages", h.ListPackages, cache)
	api.GET("/packages/:id", h.GetPackage, cache)
	api.GET("/packages/:id/ratings", h.PackageRatings, cache)
	api.POST("/packages/:id/quote", h.Quote)

	api.GET("/portfolios", h.ListPortfolios, cache)
	api.GET("/portfolios/:id", h.GetPortfolio, cache)

	api.POST("/contact", contact.Submit)
}
