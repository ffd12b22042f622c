package relay

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/apperror"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/utils"
)

// Server exposes the relay over HTTP: /ws, /health and /metrics.
type Server struct {
	cfg      config.RelayConfig
	secret   string
	hub      *Hub
	access   RoomAccess
	upgrader websocket.Upgrader
	log      *logging.Logger
}

func NewServer(cfg config.RelayConfig, secret string, hub *Hub, access RoomAccess, log *logging.Logger) *Server {
	s := &Server{cfg: cfg, secret: secret, hub: hub, access: access, log: log}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Register mounts the relay routes. metricsHandler may be nil.
func (s *Server) Register(e *echo.Echo, metricsHandler http.Handler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "healthy"})
	})
	e.GET("/ws", s.serveWS)
	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}
}

// serveWS verifies the bearer token before upgrading the connection.
func (s *Server) serveWS(c echo.Context) error {
	raw := tokenFrom(c.Request())
	if raw == "" {
		return apperror.New(apperror.CodeUnauthorized, "missing token")
	}
	id, err := utils.ParseAccessToken(s.secret, raw)
	if err != nil {
		return apperror.New(apperror.CodeUnauthorized, "invalid token")
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		return nil
	}
	ctx := s.log.WithUserID(c.Request().Context(), id.UserID)
	client := NewClient(s.hub, conn, id.UserID, id.Role, ClientOptions{
		SendBuffer:     s.cfg.SendBuffer,
		MessagesPerSec: s.cfg.MessagesPerSec,
		Burst:          s.cfg.Burst,
		Access:         s.access,
	}, s.log)
	if !s.hub.Register(client) {
		_ = conn.Close()
		return nil
	}
	s.log.Info(ctx, "relay client connected")
	go client.WriteLoop()
	client.ReadLoop(ctx)
	s.log.Info(ctx, "relay client disconnected")
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// tokenFrom reads a bearer token from the Authorization header, falling
// back to the token query parameter for browser clients.
func tokenFrom(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
