package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
)

// AdminHandlers groups the handlers served under /api/admin.
type AdminHandlers struct {
	Catalog   *handler.CatalogHandler
	Bookings  *handler.BookingHandler
	Ratings   *handler.RatingHandler
	Users     *handler.UserHandler
	Analytics *handler.AnalyticsHandler
	Contact   *handler.ContactHandler
}

// RegisterAdmin registers the staff back office. Admin and staff share the
// booking, payment, moderation and analytics routes; catalog writes, hard
// deletes and account management are admin only.
func RegisterAdmin(api *echo.Group, h AdminHandlers, jwtSecret string, log *logging.Logger) {
	jwt := middleware.JWTAuth(jwtSecret, log)
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	// catalog writes live next to the public reads
	api.POST("/packages", h.Catalog.CreatePackage, jwt, adminOnly)
	api.PUT("/packages/:id", h.Catalog.UpdatePackage, jwt, adminOnly)
	api.DELETE("/packages/:id", h.Catalog.DeletePackage, jwt, adminOnly)
	api.POST("/portfolios", h.Catalog.CreatePortfolio, jwt, adminOnly)
	api.PUT("/portfolios/:id", h.Catalog.UpdatePortfolio, jwt, adminOnly)
	api.DELETE("/portfolios/:id", h.Catalog.DeletePortfolio, jwt, adminOnly)

	g := api.Group("/admin", jwt, middleware.RequireRole(model.RoleAdmin, model.RoleStaff))

	// ---- Catalog (including inactive entries) ----
	g.GET("/packages", h.Catalog.ListPackages)
	g.GET("/portfolios", h.Catalog.ListPortfolios)

	// ---- Bookings ----
	g.GET("/bookings", h.Bookings.List)
	g.GET("/bookings/export", h.Bookings.Export)
	g.GET("/bookings/user/:userId", h.Bookings.ListForUser)
	g.PUT("/bookings/:id", h.Bookings.Update)
	g.PATCH("/bookings/:id/status", h.Bookings.UpdateStatus)
	g.DELETE("/bookings/:id", h.Bookings.Delete, adminOnly)
	g.POST("/bookings/:id/payments", h.Bookings.RecordPayment)
	g.POST("/bookings/:id/archive", h.Bookings.Archive)

	// ---- Archive ----
	g.GET("/archived-bookings", h.Bookings.ListArchived)
	g.GET("/archived-bookings/:id", h.Bookings.GetArchived)
	g.POST("/archived-bookings/:id/restore", h.Bookings.Restore)
	g.DELETE("/archived-bookings/:id", h.Bookings.DeleteArchived, adminOnly)

	// ---- Ratings ----
	g.GET("/ratings", h.Ratings.List)
	g.PATCH("/ratings/:id/status", h.Ratings.SetStatus)
	g.DELETE("/ratings/:id", h.Ratings.Delete)

	// ---- Users ----
	u := g.Group("/users", adminOnly)
	u.GET("", h.Users.List)
	u.POST("", h.Users.Create)
	u.GET("/:id", h.Users.Get)
	u.PUT("/:id", h.Users.Update)
	u.POST("/:id/block", h.Users.Block)
	u.DELETE("/:id", h.Users.Delete)

	// ---- Analytics ----
	a := g.Group("/analytics")
	a.GET("/active-users", h.Analytics.ActiveUsers())
	a.GET("/satisfaction", h.Analytics.Satisfaction())
	a.GET("/satisfaction/monthly", h.Analytics.MonthlySatisfaction())
	a.GET("/revenue", h.Analytics.Revenue())
	a.GET("/bookings-by-type", h.Analytics.BookingsByType())
	a.GET("/monthly-revenue", h.Analytics.MonthlyRevenue())
	a.GET("/popular-packages", h.Analytics.PopularPackages())
	a.GET("/event-types", h.Analytics.EventTypes())
	a.GET("/summary", h.Analytics.Summary())

	// ---- Contact ----
	g.GET("/contact", h.Contact.List)
	g.DELETE("/contact/:id", h.Contact.Delete, adminOnly)
}
