// Command migrate brings the MySQL schema up to date and can seed a fresh
// facility with its slots and the default owner and user cards.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parking-gate/internal/config"
	"github.com/iliyamo/parking-gate/internal/database"
	"github.com/iliyamo/parking-gate/internal/repository"
	mysqlstore "github.com/iliyamo/parking-gate/internal/repository/mysql"
)

func main() {
	seed := flag.Bool("seed", false, "provision slots and default credentials after migrating")
	capacity := flag.Int("slots", 8, "number of slots to provision with -seed")
	flag.Parse()

	logger := log.New("migrate")
	logger.SetHeader(`${time_rfc3339} ${level} ${prefix}`)

	cfg := config.LoadDatabase()
	db, err := database.Open(cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	applied, err := database.Migrate(ctx, db)
	for _, name := range applied {
		logger.Infof("applied %s", name)
	}
	if err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	if len(applied) == 0 {
		logger.Info("schema up to date")
	}

	if *seed {
		if *capacity < 1 {
			logger.Fatalf("-slots must be positive, got %d", *capacity)
		}
		if err := repository.Seed(ctx, mysqlstore.New(db), *capacity); err != nil {
			logger.Fatalf("seed: %v", err)
		}
		logger.Infof("seeded %d slots and %d credentials", *capacity, len(repository.DefaultCredentials))
	}
}
