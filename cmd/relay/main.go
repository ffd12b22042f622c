// Command relay runs the realtime chat relay: a websocket server that fans
// room events out to connected clients and, through Redis, to every other
// relay process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/relay"
	"github.com/iliyamo/event-booking/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadRelay()
	if err != nil {
		logging.New(logging.Options{ServiceName: "event-booking-relay"}).Fatal(context.Background(), "config", err)
	}
	log := logging.New(logging.Options{
		ServiceName: "event-booking-relay",
		Level:       logging.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bc relay.Broadcaster
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		bc = relay.NewRedisBroadcaster(rdb, log)
	} else {
		log.Warn(log.WithField(ctx, "addr", cfg.Redis.Address()), "redis unreachable; relaying within this process only", nil)
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatal(ctx, "database connection failed", err)
	}

	reg := prometheus.NewRegistry()
	hub := relay.NewHub(bc, log, metrics.NewRelayMetrics(reg))
	hubDone := make(chan error, 1)
	go func() { hubDone <- hub.Run(ctx) }()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(middleware.AssignRequestID(log))
	access := relay.OwnerAccess(repository.NewBookingRepo(db))
	relay.NewServer(cfg.Relay, cfg.JWTSecret, hub, access, log).Register(e, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := ":" + cfg.Relay.Port
	go func() {
		log.Info(log.WithField(ctx, "addr", addr), "relay listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "relay server stopped", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = e.Shutdown(shutdownCtx)
	if hubErr := <-hubDone; hubErr != nil && !errors.Is(hubErr, context.Canceled) {
		err = multierr.Append(err, hubErr)
	}
	if rdb != nil {
		err = multierr.Append(err, rdb.Close())
	}
	err = multierr.Append(err, db.Close())
	if err != nil {
		log.Error(shutdownCtx, "shutdown", err)
		os.Exit(1)
	}
	log.Info(shutdownCtx, "relay stopped")
}
