package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/parking-gate/internal/billing"
	"github.com/iliyamo/parking-gate/internal/config"
	"github.com/iliyamo/parking-gate/internal/database"
	"github.com/iliyamo/parking-gate/internal/gate"
	"github.com/iliyamo/parking-gate/internal/handler"
	"github.com/iliyamo/parking-gate/internal/ledger"
	"github.com/iliyamo/parking-gate/internal/lock"
	"github.com/iliyamo/parking-gate/internal/metrics"
	"github.com/iliyamo/parking-gate/internal/middleware"
	"github.com/iliyamo/parking-gate/internal/queue"
	"github.com/iliyamo/parking-gate/internal/repository"
	boltstore "github.com/iliyamo/parking-gate/internal/repository/bolt"
	"github.com/iliyamo/parking-gate/internal/repository/memory"
	mysqlstore "github.com/iliyamo/parking-gate/internal/repository/mysql"
	"github.com/iliyamo/parking-gate/internal/router"
	"github.com/iliyamo/parking-gate/internal/slot"
)

func main() {
	cfg := config.Load()

	logger := log.New("parking-gate")
	logger.SetLevel(cfg.Level())
	logger.SetHeader(`${time_rfc3339} ${level} ${prefix} ${short_file}:${line}`)

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("open %s store: %v", cfg.StoreDriver, err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Embedded stores have no migrate step; provision them on start.
	if cfg.StoreDriver != config.DriverMySQL {
		if err := repository.Seed(ctx, store, cfg.SlotCapacity); err != nil {
			logger.Fatalf("seed store: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unreachable: local locking, no rate limit, no report cache")
	} else {
		defer rdb.Close()
	}

	slots := slot.NewRegistry(store.Slots(), cfg.SlotCapacity, cfg.StoreTimeout, logger, m)
	if err := slots.Provision(ctx); err != nil {
		logger.Fatalf("provision slots: %v", err)
	}
	sessions := ledger.New(store, ledger.Options{
		Locker:  newLocker(cfg, rdb, logger),
		Policy:  billing.NewPolicy(cfg.RatePerHour),
		Timeout: cfg.StoreTimeout,
		Logger:  logger,
		Metrics: m,
	})
	engine := gate.NewEngine(store.Credentials(), slots, sessions, gate.Options{
		OccupyOnEntry: cfg.OccupyOnEntry,
		Timeout:       cfg.StoreTimeout,
		Logger:        logger,
		Metrics:       m,
	})

	busCfg := config.LoadBusConfig()
	var (
		publisher *queue.Publisher
		wg        sync.WaitGroup
	)
	if busCfg.Enabled {
		publisher = queue.NewPublisher(busCfg, logger, m)
		defer publisher.Close()

		dispatcher := queue.NewDispatcher(engine, slots, publisher, busCfg.SlotTopic, busCfg.RFIDTopic, logger, m)
		subscriber := queue.NewSubscriber(busCfg, dispatcher, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subscriber.Run(ctx); err != nil {
				logger.Errorf("bus subscriber stopped: %v", err)
			}
		}()
	} else {
		logger.Warn("BUS_ENABLED=false: sensors and readers on the bus are ignored")
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	e.Use(echomw.Recover(), echomw.RequestID())

	var httpPublisher handler.DecisionPublisher
	if cfg.PublishHTTP && publisher != nil {
		httpPublisher = publisher
	}
	router.RegisterRoutes(e, handler.NewHealthHandler(store), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	credentials := repository.WithTimeout(store.Credentials(), cfg.StoreTimeout)
	router.RegisterGate(e, handler.NewGateHandler(engine, httpPublisher, busCfg.PublishTimeout), middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterAuth(e, handler.NewAuthHandler(credentials, cfg.JWTSecret, cfg.AccessTTLMin))
	router.RegisterUser(e, handler.NewAccountHandler(sessions), cfg.JWTSecret)
	router.RegisterOwner(e, handler.NewAdminHandler(slots, sessions, credentials), cfg.JWTSecret, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	go func() {
		addr := ":" + cfg.Port
		logger.Infof("listening on %s (env=%s, store=%s, capacity=%d)", addr, cfg.Env, cfg.StoreDriver, cfg.SlotCapacity)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("bus subscriber did not stop in time")
	}
}

func openStore(cfg config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, err
		}
		return mysqlstore.New(db), nil
	case config.DriverBolt:
		return boltstore.Open(cfg.BoltPath)
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newLocker(cfg config.Config, rdb *redis.Client, logger *log.Logger) lock.Locker {
	if cfg.LockBackend != config.LockRedis {
		return lock.NewKeyedMutex()
	}
	if rdb == nil {
		logger.Warn("LOCK_BACKEND=redis but redis is unreachable; using a local lock")
		return lock.NewKeyedMutex()
	}
	return lock.NewRedisLocker(rdb, "parking:lock", cfg.LockTTL)
}
