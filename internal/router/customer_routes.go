package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/middleware"
)

// RegisterCustomer registers the routes any signed-in user may call.
// Ownership of a booking is checked by the services, so staff reach the
// same endpoints for any booking.
func RegisterCustomer(api *echo.Group, b *handler.BookingHandler, m *handler.MessageHandler, r *handler.RatingHandler, jwtSecret string, log *logging.Logger) {
	jwt := middleware.JWTAuth(jwtSecret, log)

	g := api.Group("/bookings", jwt)
	g.POST("", b.Create)
	g.GET("/mine", b.Mine)
	g.GET("/:id", b.Get)
	g.POST("/:id/cancel", b.Cancel)
	g.GET("/:id/payments", b.Payments)
	g.GET("/:id/receipt", b.Receipt)
	g.GET("/:id/messages", m.BookingThread)
	g.POST("/:id/messages", m.SendToBooking)
	g.POST("/:id/messages/read", m.MarkBookingRead)
	g.GET("/:id/messages/unread-count", m.BookingUnread)

	chat := api.Group("/chat", jwt)
	chat.GET("/unread-count", m.UnreadDirect)
	chat.POST("/messages", m.SendDirect)
	chat.GET("/:userId/messages", m.Conversation)
	chat.POST("/:userId/read", m.MarkConversationRead)

	ratings := api.Group("/ratings", jwt)
	ratings.POST("", r.Create)
	ratings.GET("/mine", r.Mine)
}
