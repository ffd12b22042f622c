// Command migrate applies the embedded goose migrations.
//
//	migrate [up|down|status|version|redo|reset|up-to N|down-to N]
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/logging"
)

func main() {
	_ = godotenv.Load()
	log := logging.New(logging.Options{ServiceName: "event-booking-migrate", Format: "console"})
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(ctx, "config", err)
	}
	command, args := "up", []string(nil)
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatal(ctx, "database connection failed", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, command, args...); err != nil {
		log.Fatal(log.WithField(ctx, "command", command), "migration failed", err)
	}
	log.Info(log.WithField(ctx, "command", command), "migration finished")
}
