// Command worker consumes booking and account events from RabbitMQ and
// records them in the audit log.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/logging"
	"github.com/iliyamo/event-booking/internal/metrics"
	"github.com/iliyamo/event-booking/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadWorker()
	if err != nil {
		logging.New(logging.Options{ServiceName: "event-booking-worker"}).Fatal(context.Background(), "config", err)
	}
	log := logging.New(logging.Options{
		ServiceName: "event-booking-worker",
		Level:       logging.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(cfg.RabbitMQ, queue.NewAuditHandler(cfg.AuditLog, log), log,
		metrics.NewWorkerMetrics(prometheus.DefaultRegisterer))
	log.Info(log.WithField(ctx, "queue", cfg.RabbitMQ.Queue), "worker started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(ctx, "worker stopped", err)
	}
	log.Info(context.Background(), "worker stopped")
}
