package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/relay"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/service"
	"github.com/iliyamo/event-booking/internal/storage"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine outside development

	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Options{ServiceName: "event-booking-api"}).Fatal(context.Background(), "config", err)
	}
	log := logging.New(logging.Options{
		ServiceName: "event-booking-api",
		Level:       logging.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatal(ctx, "database connection failed", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, "up"); err != nil {
			log.Fatal(ctx, "migrations failed", err)
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn(log.WithField(ctx, "addr", cfg.Redis.Address()), "redis unreachable; cache, rate limit and relay fan-out disabled", nil)
	}

	var events service.EventPublisher = queue.NopPublisher{}
	var publisher *queue.Publisher
	if cfg.RabbitMQ.Enabled {
		publisher = queue.NewPublisher(cfg.RabbitMQ, log)
		events = publisher
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	files := storage.NewLocalStore(cfg.Upload.Root, cfg.Upload.BaseURL, cfg.Upload.MaxBytes)
	cache := middleware.NewResponseCache(cfg.Cache, rdb, log)

	bookings := service.NewBookingService(db, events, log, metrics.NewBookingMetrics(reg))
	auth := service.NewAuthService(cfg.Auth, db, files, events, log)
	catalog := service.NewCatalogService(db, files, log)
	ratings := service.NewRatingService(db, log)
	var rooms service.RoomPublisher
	if rdb != nil {
		rooms = relay.NewRedisBroadcaster(rdb, log)
	}
	messages := service.NewMessageService(db, bookings, files, rooms, log)

	catalogH := handler.NewCatalogHandler(catalog, bookings, ratings, cache)
	bookingH := handler.NewBookingHandler(bookings)
	ratingH := handler.NewRatingHandler(ratings, cache)
	contactH := handler.NewContactHandler(service.NewContactService(db))

	e := router.New(log, metrics.NewHTTPMetrics(reg))
	router.RegisterRoutes(e, db, metricsHandler, cfg.Upload)
	api := router.API(e, cfg.RateLimit, rdb, log)
	router.RegisterAuth(api, handler.NewAuthHandler(auth), cfg.Auth.Secret, log)
	router.RegisterPublic(api, catalogH, contactH, cache.Middleware())
	router.RegisterCustomer(api, bookingH, handler.NewMessageHandler(messages), ratingH, cfg.Auth.Secret, log)
	router.RegisterAdmin(api, router.AdminHandlers{
		Catalog:   catalogH,
		Bookings:  bookingH,
		Ratings:   ratingH,
		Users:     handler.NewUserHandler(auth, cache),
		Analytics: handler.NewAnalyticsHandler(service.NewAnalyticsService(db)),
		Contact:   contactH,
	}, cfg.Auth.Secret, log)

	addr := ":" + cfg.Port
	go func() {
		log.Info(log.WithFields(ctx, map[string]any{"addr": addr, "env": cfg.Env}), "listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server stopped", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = multierr.Combine(e.Shutdown(shutdownCtx), db.Close(), closeRedis(rdb))
	if publisher != nil {
		err = multierr.Append(err, publisher.Close())
	}
	if err != nil {
		log.Error(shutdownCtx, "shutdown", err)
		os.Exit(1)
	}
	log.Info(shutdownCtx, "shutdown complete")
}

func closeRedis(rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}
